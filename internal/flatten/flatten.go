// Package flatten turns nested Singer schemas and records into the flat
// column namespace of a warehouse table. Nested object paths are joined with
// "__"; arrays and objects without declared properties are terminal and are
// stored as canonical JSON text.
package flatten

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/juju/errors"

	"target-snowflake/internal/singer"
	"target-snowflake/pkg/records"
)

const (
	// ErrSchemaConflict is returned when two distinct nested paths flatten to
	// the same column name.
	ErrSchemaConflict = errors.ConstError("schema conflict")

	// ErrInvalidRecord is returned when a record value cannot be stored in
	// its declared column.
	ErrInvalidRecord = errors.ConstError("invalid record")
)

// Schema flattens the root object property of a SCHEMA message. The
// timestamp column is always present in the result as a non-null date-time
// column, replacing a same-named source property.
func Schema(root *singer.Property, timestampColumn string) (*records.Schema, error) {
	out, err := records.NewSchema()
	if err != nil {
		return nil, err
	}
	if err := walkSchema(out, root, nil, false); err != nil {
		return nil, err
	}
	out.Replace(records.Column{
		Name:     timestampColumn,
		Type:     records.LogicalType{Kind: records.LogicalDateTime},
		Nullable: false,
		Path:     []string{timestampColumn},
	})
	return out, nil
}

func walkSchema(out *records.Schema, p *singer.Property, path []string, parentNullable bool) error {
	for _, np := range p.Properties {
		child := np.Property
		childPath := append(append([]string(nil), path...), np.Name)
		nullable := parentNullable || child.Nullable()

		if isNested(child) {
			if err := walkSchema(out, child, childPath, nullable); err != nil {
				return err
			}
			continue
		}

		col := records.Column{
			Name:     JoinPath(childPath...),
			Type:     logicalType(child),
			Nullable: nullable,
			Path:     childPath,
			Required: p.IsRequired(np.Name),
		}
		if err := out.Add(col); err != nil {
			return fmt.Errorf("%w: %v", ErrSchemaConflict, err)
		}
	}
	return nil
}

// isNested reports whether p is an object that is recursed into rather than
// stored as a single column.
func isNested(p *singer.Property) bool {
	if len(p.Properties) == 0 {
		return false
	}
	types := p.NonNullTypes()
	return len(types) == 0 || (len(types) == 1 && types[0] == "object")
}

func logicalType(p *singer.Property) records.LogicalType {
	if len(p.Types) == 0 && len(p.AnyOf) > 0 {
		var alts []*singer.Property
		for _, a := range p.AnyOf {
			if len(a.NonNullTypes()) > 0 {
				alts = append(alts, a)
			}
		}
		if len(alts) == 1 {
			return logicalType(alts[0])
		}
		return records.LogicalType{Kind: records.LogicalString}
	}

	types := p.NonNullTypes()
	if len(types) != 1 {
		// Unknown or mixed types are kept as text.
		return records.LogicalType{Kind: records.LogicalString}
	}
	switch types[0] {
	case "string":
		switch p.Format {
		case "date-time":
			return records.LogicalType{Kind: records.LogicalDateTime}
		case "date":
			return records.LogicalType{Kind: records.LogicalDate}
		}
		return records.LogicalType{Kind: records.LogicalString, MaxLength: p.MaxLength}
	case "integer":
		return records.LogicalType{Kind: records.LogicalInteger}
	case "number":
		return records.LogicalType{
			Kind:       records.LogicalNumber,
			MultipleOf: p.MultipleOf,
			Minimum:    p.Minimum,
			Maximum:    p.Maximum,
		}
	case "boolean":
		return records.LogicalType{Kind: records.LogicalBoolean}
	case "array", "object":
		return records.LogicalType{Kind: records.LogicalJSON}
	default:
		return records.LogicalType{Kind: records.LogicalString}
	}
}

// Record flattens a nested record onto schema. Every schema column is present
// in the result (nil when the record has no value for it); fields the schema
// does not declare are dropped. A required field missing from an object that
// is present fails with ErrInvalidRecord. The timestamp column is set to
// acceptedAt.
func Record(v records.Value, schema *records.Schema, timestampColumn string, acceptedAt time.Time) (records.Record, error) {
	if v.Kind() != records.KindObject {
		return nil, fmt.Errorf("%w: record must be an object, got %s", ErrInvalidRecord, v.Kind())
	}
	out := make(records.Record, schema.Len())
	for _, c := range schema.Columns() {
		out[c.Name] = nil
	}
	seen := make(map[string]string, schema.Len())
	walked := map[string]bool{}
	if err := walkRecord(out, seen, walked, schema, timestampColumn, v, nil); err != nil {
		return nil, err
	}
	for _, c := range schema.Columns() {
		if !c.Required || c.Name == timestampColumn {
			continue
		}
		if _, ok := seen[c.Name]; ok || !walked[JoinPath(c.Path[:len(c.Path)-1]...)] {
			continue
		}
		return nil, fmt.Errorf("%w: required field %s is missing", ErrInvalidRecord, strings.Join(c.Path, "."))
	}
	out[timestampColumn] = acceptedAt.UTC()
	return out, nil
}

func walkRecord(out records.Record, seen map[string]string, walked map[string]bool, schema *records.Schema, tsCol string, v records.Value, path []string) error {
	walked[JoinPath(path...)] = true
	for _, f := range v.Fields() {
		childPath := append(append([]string(nil), path...), f.Name)
		name := JoinPath(childPath...)

		col, ok := schema.Lookup(name)
		if !ok {
			if f.Value.Kind() == records.KindObject {
				if err := walkRecord(out, seen, walked, schema, tsCol, f.Value, childPath); err != nil {
					return err
				}
			}
			continue
		}
		if name == tsCol {
			continue
		}

		dotted := strings.Join(childPath, ".")
		if prev, dup := seen[name]; dup {
			return fmt.Errorf("%w: fields %s and %s both map to column %q", ErrSchemaConflict, prev, dotted, name)
		}
		seen[name] = dotted

		val, err := Coerce(f.Value, col.Type)
		if err != nil {
			return fmt.Errorf("%w: column %q: %v", ErrInvalidRecord, name, err)
		}
		out[name] = val
	}
	return nil
}

// Coerce converts v into the scalar stored for a column of type t.
func Coerce(v records.Value, t records.LogicalType) (any, error) {
	if v.IsNull() {
		return nil, nil
	}
	switch t.Kind {
	case records.LogicalJSON:
		return v.CanonicalJSON()

	case records.LogicalString:
		if v.Kind() == records.KindText {
			return v.Text(), nil
		}
		return v.CanonicalJSON()

	case records.LogicalInteger:
		switch v.Kind() {
		case records.KindInt:
			return v.Int(), nil
		case records.KindNumber:
			if n, ok := v.IntegerText(); ok {
				return n, nil
			}
			if i, ok := integral(v.Float()); ok {
				return i, nil
			}
			return nil, errors.Errorf("%v is not an integer", v.Float())
		}

	case records.LogicalNumber:
		// Integral values are always int64 (or exact text beyond int64), so
		// 1 and 1.0 buffer and merge as the same key.
		switch v.Kind() {
		case records.KindInt:
			return v.Int(), nil
		case records.KindNumber:
			if n, ok := v.IntegerText(); ok {
				return n, nil
			}
			if i, ok := integral(v.Float()); ok {
				return i, nil
			}
			return v.Float(), nil
		}

	case records.LogicalBoolean:
		if v.Kind() == records.KindBool {
			return v.Bool(), nil
		}

	case records.LogicalDateTime:
		if v.Kind() == records.KindText {
			ts, err := parseTimestamp(v.Text())
			if err != nil {
				return nil, err
			}
			return ts, nil
		}

	case records.LogicalDate:
		if v.Kind() == records.KindText {
			if d, err := time.Parse(time.DateOnly, v.Text()); err == nil {
				return d, nil
			}
			ts, err := parseTimestamp(v.Text())
			if err != nil {
				return nil, err
			}
			y, m, d := ts.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return nil, errors.Errorf("cannot store %s value as %s", v.Kind(), t.Kind)
}

func integral(f float64) (int64, bool) {
	if f != math.Trunc(f) || f < -(1<<63) || f >= 1<<63 {
		return 0, false
	}
	return int64(f), true
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// parseTimestamp accepts RFC 3339 and its common zone-less variants and
// returns the instant in UTC.
func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, errors.Errorf("%q is not a date-time", s)
}
