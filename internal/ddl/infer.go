package ddl

import (
	"fmt"

	"target-snowflake/internal/typemap"
	"target-snowflake/pkg/records"
)

// InferTableDef derives the desired TableDef of a stream from its flat
// schema:
//
//   - columns keep the schema order and take their type from typemap.Map
//   - key columns are part of the primary key and are NOT NULL
//   - every other column keeps the nullability declared by the schema
//
// Every key column must exist in the schema.
func InferTableDef(t Table, s *records.Schema, keys []string) (TableDef, error) {
	isKey := make(map[string]bool, len(keys))
	for _, k := range keys {
		if !s.Has(k) {
			return TableDef{}, fmt.Errorf("key property %q is not a column of %s", k, t)
		}
		isKey[k] = true
	}

	def := TableDef{Table: t, Columns: make([]ColumnDef, 0, s.Len())}
	for _, c := range s.Columns() {
		def.Columns = append(def.Columns, ColumnDef{
			Name:       c.Name,
			Type:       typemap.Map(c.Type),
			Nullable:   c.Nullable && !isKey[c.Name],
			PrimaryKey: isKey[c.Name],
		})
	}
	return def, nil
}
