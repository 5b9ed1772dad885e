// Package ddl renders Snowflake statements for the generic ddl.Action model.
//
// Identifiers are folded to upper case and double-quoted, so a column
// declared as "first_name" is stored as FIRST_NAME and can be queried without
// quotes. Creating a table also creates its schema and, when a role is
// configured, grants that role read access to it.
package ddl

import (
	"fmt"
	"strings"

	gddl "target-snowflake/internal/ddl"
)

// Quoter implements gddl.Quoter with Snowflake's rules.
type Quoter struct{}

var _ gddl.Quoter = Quoter{}

// Ident quotes one identifier segment:
//
//	first_name -> "FIRST_NAME"
//	we"ird     -> "WE""IRD"
func (Quoter) Ident(name string) string {
	return `"` + strings.ReplaceAll(strings.ToUpper(name), `"`, `""`) + `"`
}

// Table quotes a schema-qualified table name.
func (q Quoter) Table(t gddl.Table) string {
	if t.Schema == "" {
		return q.Ident(t.Name)
	}
	return q.Ident(t.Schema) + "." + q.Ident(t.Name)
}

// Render returns the statements that apply a, in execution order. role may
// be empty, in which case no grants are issued.
func Render(a gddl.Action, role string) ([]string, error) {
	var q Quoter
	switch a.Kind {
	case gddl.CreateTable:
		create, err := gddl.BuildCreateTableSQL(q, a.Def, true)
		if err != nil {
			return nil, err
		}
		var stmts []string
		if a.Def.Table.Schema != "" {
			stmts = append(stmts, "CREATE SCHEMA IF NOT EXISTS "+q.Ident(a.Def.Table.Schema))
		}
		stmts = append(stmts, create)
		return append(stmts, Grants(a.Def.Table.Schema, role)...), nil

	case gddl.AddColumn:
		stmt, err := gddl.BuildAddColumnSQL(q, a.Def.Table, a.Column)
		if err != nil {
			return nil, err
		}
		return []string{stmt}, nil

	case gddl.AlterColumnType:
		stmt, err := BuildAlterColumnTypeSQL(a.Def.Table, a.Column)
		if err != nil {
			return nil, err
		}
		return []string{stmt}, nil

	default:
		return nil, fmt.Errorf("snowflake ddl: unsupported action %s", a.Kind)
	}
}

// BuildAlterColumnTypeSQL renders an in-place type change.
func BuildAlterColumnTypeSQL(t gddl.Table, c gddl.ColumnDef) (string, error) {
	var q Quoter
	typ := c.Type.String()
	if strings.TrimSpace(c.Name) == "" || typ == "" {
		return "", fmt.Errorf("snowflake ddl: alter on %s needs a column name and type", t)
	}
	return fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET DATA TYPE %s", q.Table(t), q.Ident(c.Name), typ), nil
}

// Grants returns the statements giving role read access to schema.
func Grants(schema, role string) []string {
	if schema == "" || role == "" {
		return nil
	}
	var q Quoter
	s, r := q.Ident(schema), q.Ident(role)
	return []string{
		fmt.Sprintf("GRANT USAGE ON SCHEMA %s TO ROLE %s", s, r),
		fmt.Sprintf("GRANT SELECT ON ALL TABLES IN SCHEMA %s TO ROLE %s", s, r),
	}
}
