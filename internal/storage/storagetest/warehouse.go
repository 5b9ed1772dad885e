// Package storagetest provides an in-memory storage.Warehouse for tests.
// It follows the same rules as the Snowflake backend: missing tables read as
// no columns, columns are never dropped, only widening type changes are
// accepted, and upserts merge on the key columns.
package storagetest

import (
	"context"
	"fmt"
	"sync"

	"target-snowflake/internal/ddl"
	"target-snowflake/internal/storage"
	"target-snowflake/internal/typemap"
)

var _ storage.Warehouse = (*Warehouse)(nil)

type table struct {
	def  ddl.TableDef
	rows []map[string]any
}

// Warehouse is a concurrency-safe in-memory warehouse.
type Warehouse struct {
	mu       sync.Mutex
	tables   map[string]*table
	applied  []ddl.Action
	loads    int
	closed   bool
	failDDL  func(ddl.Action) error
	failLoad func(ddl.Table) error
}

// New returns an empty Warehouse.
func New() *Warehouse {
	return &Warehouse{tables: map[string]*table{}}
}

// FailDDL makes ExecuteDDL return fn's non-nil result instead of applying the
// action. A nil fn clears the hook.
func (w *Warehouse) FailDDL(fn func(ddl.Action) error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failDDL = fn
}

// FailLoad makes Insert and Upsert return fn's non-nil result without
// writing anything. A nil fn clears the hook.
func (w *Warehouse) FailLoad(fn func(ddl.Table) error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failLoad = fn
}

// Seed installs a table definition directly, as if created out of band.
func (w *Warehouse) Seed(def ddl.TableDef) {
	w.mu.Lock()
	defer w.mu.Unlock()
	def.Columns = append([]ddl.ColumnDef(nil), def.Columns...)
	w.tables[def.Table.String()] = &table{def: def}
}

// Applied returns the DDL actions applied so far, in order.
func (w *Warehouse) Applied() []ddl.Action {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]ddl.Action(nil), w.applied...)
}

// Loads returns how many Insert/Upsert calls succeeded.
func (w *Warehouse) Loads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.loads
}

// Rows returns a copy of the rows stored in t.
func (w *Warehouse) Rows(t ddl.Table) []map[string]any {
	w.mu.Lock()
	defer w.mu.Unlock()
	tb, ok := w.tables[t.String()]
	if !ok {
		return nil
	}
	out := make([]map[string]any, len(tb.rows))
	for i, r := range tb.rows {
		cp := make(map[string]any, len(r))
		for k, v := range r {
			cp[k] = v
		}
		out[i] = cp
	}
	return out
}

// Closed reports whether Close was called.
func (w *Warehouse) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

func (w *Warehouse) ColumnsOf(_ context.Context, t ddl.Table) ([]ddl.ColumnDef, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	tb, ok := w.tables[t.String()]
	if !ok {
		return nil, nil
	}
	return append([]ddl.ColumnDef(nil), tb.def.Columns...), nil
}

func (w *Warehouse) ExecuteDDL(_ context.Context, a ddl.Action) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failDDL != nil {
		if err := w.failDDL(a); err != nil {
			return err
		}
	}

	key := a.Def.Table.String()
	tb, exists := w.tables[key]
	switch a.Kind {
	case ddl.CreateTable:
		if !exists {
			def := a.Def
			def.Columns = append([]ddl.ColumnDef(nil), a.Def.Columns...)
			w.tables[key] = &table{def: def}
		}
	case ddl.AddColumn:
		if !exists {
			return fmt.Errorf("table %s does not exist", key)
		}
		if _, dup := tb.def.Column(a.Column.Name); dup {
			return fmt.Errorf("column %s already exists in %s", a.Column.Name, key)
		}
		tb.def.Columns = append(tb.def.Columns, a.Column)
		for _, r := range tb.rows {
			r[a.Column.Name] = nil
		}
	case ddl.AlterColumnType:
		if !exists {
			return fmt.Errorf("table %s does not exist", key)
		}
		i := columnIndex(tb.def, a.Column.Name)
		if i < 0 {
			return fmt.Errorf("column %s does not exist in %s", a.Column.Name, key)
		}
		cur := tb.def.Columns[i].Type
		if !typemap.IsWideningAllowed(cur, a.Column.Type) {
			return fmt.Errorf("cannot change column %s from %s to %s", a.Column.Name, cur, a.Column.Type)
		}
		tb.def.Columns[i].Type = a.Column.Type
	default:
		return fmt.Errorf("unsupported action %s", a.Kind)
	}
	w.applied = append(w.applied, a)
	return nil
}

func (w *Warehouse) Insert(_ context.Context, t ddl.Table, columns []string, rows [][]any) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	tb, err := w.loadTarget(t, columns)
	if err != nil {
		return 0, err
	}
	for _, row := range rows {
		tb.rows = append(tb.rows, w.newRow(tb, columns, row))
	}
	w.loads++
	return int64(len(rows)), nil
}

func (w *Warehouse) Upsert(_ context.Context, t ddl.Table, columns, keys []string, rows [][]any) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	tb, err := w.loadTarget(t, columns)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, fmt.Errorf("upsert into %s without key columns", t)
	}

	keyIdx := make([]int, len(keys))
	for i, k := range keys {
		keyIdx[i] = indexOf(columns, k)
		if keyIdx[i] < 0 {
			return 0, fmt.Errorf("key column %s not among loaded columns", k)
		}
	}

	seen := map[string]bool{}
	for _, row := range rows {
		sig := fmt.Sprint(pick(row, keyIdx))
		if seen[sig] {
			return 0, fmt.Errorf("duplicate key %s in one upsert into %s", sig, t)
		}
		seen[sig] = true
	}

	for _, row := range rows {
		match := -1
		for i, existing := range tb.rows {
			if sameKey(existing, keys, row, keyIdx) {
				match = i
				break
			}
		}
		if match < 0 {
			tb.rows = append(tb.rows, w.newRow(tb, columns, row))
			continue
		}
		for i, c := range columns {
			tb.rows[match][c] = row[i]
		}
	}
	w.loads++
	return int64(len(rows)), nil
}

func (w *Warehouse) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
}

func (w *Warehouse) loadTarget(t ddl.Table, columns []string) (*table, error) {
	if w.failLoad != nil {
		if err := w.failLoad(t); err != nil {
			return nil, err
		}
	}
	tb, ok := w.tables[t.String()]
	if !ok {
		return nil, fmt.Errorf("table %s does not exist", t)
	}
	for _, c := range columns {
		if columnIndex(tb.def, c) < 0 {
			return nil, fmt.Errorf("invalid identifier %s in %s", c, t)
		}
	}
	return tb, nil
}

func (w *Warehouse) newRow(tb *table, columns []string, row []any) map[string]any {
	m := make(map[string]any, len(tb.def.Columns))
	for _, c := range tb.def.Columns {
		m[c.Name] = nil
	}
	for i, c := range columns {
		m[c] = row[i]
	}
	return m
}

func sameKey(existing map[string]any, keys []string, row []any, keyIdx []int) bool {
	for i, k := range keys {
		if existing[k] != row[keyIdx[i]] {
			return false
		}
	}
	return true
}

func pick(row []any, idx []int) []any {
	out := make([]any, len(idx))
	for i, j := range idx {
		out[i] = row[j]
	}
	return out
}

func columnIndex(def ddl.TableDef, name string) int {
	for i, c := range def.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

func indexOf(xs []string, s string) int {
	for i, x := range xs {
		if x == s {
			return i
		}
	}
	return -1
}
