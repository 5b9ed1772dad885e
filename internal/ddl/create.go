// Package ddl defines a small, dialect-agnostic model for SQL DDL: table and
// column definitions, the structural actions applied to a warehouse, and
// helpers to render the statements that are common to most dialects.
//
// Identifier quoting is delegated to a Quoter so that dialect packages
// (e.g. internal/storage/snowflake/ddl) can reuse the builders while keeping
// their own quoting and case rules.
package ddl

import (
	"fmt"
	"strings"
)

// Quoter renders identifiers for a SQL dialect.
type Quoter interface {
	// Ident quotes a single identifier segment.
	Ident(name string) string
	// Table quotes a schema-qualified table name.
	Table(t Table) string
}

// BuildCreateTableSQL renders a CREATE TABLE statement from a TableDef.
//
// Rules:
//
//   - t.Table.Name must be non-empty and at least one column is required.
//
//   - Each column is rendered as
//
//     <Name> <Type> [NOT NULL] [DEFAULT <Default>]
//
//     where NOT NULL is added when Nullable == false.
//
//   - Columns with PrimaryKey == true are collected into a trailing
//     PRIMARY KEY (<col1>, <col2>, ...) clause.
//
//   - ifNotExists adds IF NOT EXISTS after CREATE TABLE.
func BuildCreateTableSQL(q Quoter, t TableDef, ifNotExists bool) (string, error) {
	if strings.TrimSpace(t.Table.Name) == "" {
		return "", fmt.Errorf("ddl: table name must not be empty")
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("ddl: at least one column is required")
	}

	cols := make([]string, 0, len(t.Columns)+1)
	pks := make([]string, 0, len(t.Columns))

	for _, c := range t.Columns {
		def, err := columnSQL(q, t.Table, c)
		if err != nil {
			return "", err
		}
		cols = append(cols, def)
		if c.PrimaryKey {
			pks = append(pks, q.Ident(c.Name))
		}
	}
	if len(pks) > 0 {
		cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(pks, ", ")))
	}

	verb := "CREATE TABLE "
	if ifNotExists {
		verb += "IF NOT EXISTS "
	}
	return fmt.Sprintf("%s%s (\n  %s\n)", verb, q.Table(t.Table), strings.Join(cols, ",\n  ")), nil
}

// BuildAddColumnSQL renders ALTER TABLE ... ADD COLUMN for one column.
func BuildAddColumnSQL(q Quoter, t Table, c ColumnDef) (string, error) {
	def, err := columnSQL(q, t, c)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", q.Table(t), def), nil
}

func columnSQL(q Quoter, t Table, c ColumnDef) (string, error) {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return "", fmt.Errorf("ddl: column with empty name in table %s", t)
	}
	typ := c.Type.String()
	if typ == "" {
		return "", fmt.Errorf("ddl: column %s missing type", name)
	}

	var sb strings.Builder
	sb.WriteString(q.Ident(name))
	sb.WriteByte(' ')
	sb.WriteString(typ)
	if !c.Nullable {
		sb.WriteString(" NOT NULL")
	}
	if def := strings.TrimSpace(c.Default); def != "" {
		sb.WriteString(" DEFAULT ")
		sb.WriteString(def)
	}
	return sb.String(), nil
}
