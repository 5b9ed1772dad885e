// Package schema keeps warehouse tables in step with the schemas declared by
// the input streams. Evolution is additive only: columns are created or
// added, and a column type may only change through a permitted widening.
// Nothing is ever dropped.
package schema

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/juju/errors"
	"go.uber.org/zap"

	"target-snowflake/internal/ddl"
	"target-snowflake/internal/metrics"
	"target-snowflake/internal/storage"
	"target-snowflake/internal/typemap"
)

// ErrIncompatibleTypeTransition is the kind of every
// IncompatibleTypeTransitionError.
const ErrIncompatibleTypeTransition = errors.ConstError("incompatible type transition")

// IncompatibleTypeTransitionError reports a column whose warehouse type cannot
// be widened to the desired type.
type IncompatibleTypeTransitionError struct {
	Stream   string
	Column   string
	Existing typemap.ColumnType
	Desired  typemap.ColumnType
}

func (e *IncompatibleTypeTransitionError) Error() string {
	return fmt.Sprintf("stream %q: column %q: %s: cannot change %s to %s",
		e.Stream, e.Column, ErrIncompatibleTypeTransition, e.Existing, e.Desired)
}

func (e *IncompatibleTypeTransitionError) Unwrap() error { return ErrIncompatibleTypeTransition }

// AppliedChanges lists the actions that were applied, in order.
type AppliedChanges struct {
	Table   ddl.Table
	Actions []ddl.Action
}

// Created reports whether the table was created.
func (c AppliedChanges) Created() bool {
	return len(c.Actions) > 0 && c.Actions[0].Kind == ddl.CreateTable
}

// Diff computes the actions that bring existing to desired. It is pure.
//
//   - no existing columns: one create-table action
//   - desired column missing: add-column (always nullable, never a key)
//   - same type: nothing
//   - different type: alter-column-type when typemap.IsWideningAllowed,
//     otherwise an *IncompatibleTypeTransitionError and no actions at all
//
// Add actions precede alter actions. Existing columns that are not desired
// are left alone. Column names compare case-insensitively because the
// warehouse folds identifiers to upper case.
func Diff(stream string, desired ddl.TableDef, existing []ddl.ColumnDef) ([]ddl.Action, error) {
	if len(existing) == 0 {
		return []ddl.Action{{Kind: ddl.CreateTable, Def: desired}}, nil
	}

	byName := make(map[string]ddl.ColumnDef, len(existing))
	for _, c := range existing {
		byName[strings.ToUpper(c.Name)] = c
	}
	target := ddl.TableDef{Table: desired.Table}

	var adds, alters []ddl.Action
	for _, want := range desired.Columns {
		have, ok := byName[strings.ToUpper(want.Name)]
		if !ok {
			col := want
			col.Nullable = true
			col.PrimaryKey = false
			col.Default = ""
			adds = append(adds, ddl.Action{Kind: ddl.AddColumn, Def: target, Column: col})
			continue
		}
		if have.Type.Equal(want.Type) {
			continue
		}
		if !typemap.IsWideningAllowed(have.Type, want.Type) {
			return nil, &IncompatibleTypeTransitionError{
				Stream:   stream,
				Column:   want.Name,
				Existing: have.Type,
				Desired:  want.Type,
			}
		}
		col := have
		col.Name = want.Name
		col.Type = want.Type
		alters = append(alters, ddl.Action{Kind: ddl.AlterColumnType, Def: target, Column: col, From: have.Type})
	}
	return append(adds, alters...), nil
}

// Synchronizer applies Diff results through a DDL executor.
type Synchronizer struct {
	meta storage.MetadataReader
	exec storage.DDLExecutor
	log  *zap.Logger
	job  string
}

// NewSynchronizer returns a Synchronizer. job labels the metrics it records.
func NewSynchronizer(meta storage.MetadataReader, exec storage.DDLExecutor, log *zap.Logger, job string) *Synchronizer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Synchronizer{meta: meta, exec: exec, log: log.Named("sync"), job: job}
}

// Sync brings the table of desired in line with it. The current columns are
// read from the warehouse on every call.
//
// Actions are applied one at a time in Diff order. The first failing action
// stops the sync; the returned AppliedChanges then lists what was applied
// before it. An incompatible type change is detected before anything is
// applied.
func (s *Synchronizer) Sync(ctx context.Context, stream string, desired ddl.TableDef) (AppliedChanges, error) {
	start := time.Now()
	applied := AppliedChanges{Table: desired.Table}

	existing, err := s.meta.ColumnsOf(ctx, desired.Table)
	if err != nil {
		err = errors.Annotatef(err, "read columns of %s", desired.Table)
		metrics.RecordStep(s.job, "sync", err, time.Since(start))
		return applied, err
	}

	actions, err := Diff(stream, desired, existing)
	if err != nil {
		metrics.RecordStep(s.job, "sync", err, time.Since(start))
		return applied, err
	}

	for _, a := range actions {
		err := s.exec.ExecuteDDL(ctx, a)
		metrics.RecordDDL(s.job, a.Kind.String(), err)
		if err != nil {
			s.log.Error("ddl action failed",
				zap.String("stream", stream),
				zap.Stringer("action", a),
				zap.Int("applied", len(applied.Actions)),
				zap.Error(err))
			err = fmt.Errorf("stream %q: %s: %w", stream, a, err)
			metrics.RecordStep(s.job, "sync", err, time.Since(start))
			return applied, err
		}
		applied.Actions = append(applied.Actions, a)
		s.log.Info("ddl action applied",
			zap.String("stream", stream),
			zap.Stringer("table", desired.Table),
			zap.Stringer("action", a))
	}

	if len(actions) == 0 {
		s.log.Debug("table up to date", zap.String("stream", stream), zap.Stringer("table", desired.Table))
	}
	metrics.RecordStep(s.job, "sync", nil, time.Since(start))
	return applied, nil
}
