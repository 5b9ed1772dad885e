package ddl

import (
	"fmt"

	"target-snowflake/internal/typemap"
)

// Table names a warehouse table inside a schema (namespace).
type Table struct {
	Schema string
	Name   string
}

// String returns the unquoted dotted name, e.g. "ANALYTICS.USERS".
func (t Table) String() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

// ColumnDef describes a single column of a table.
//
// Fields:
//   - Name: column name (unquoted; quoting happens at render time)
//   - Type: physical column type
//   - Nullable: whether NULL is allowed
//   - PrimaryKey: whether the column is part of the primary key
//   - Default: raw default expression, emitted verbatim when non-empty
type ColumnDef struct {
	Name       string
	Type       typemap.ColumnType
	Nullable   bool
	PrimaryKey bool
	Default    string
}

// TableDef holds a table name and an ordered list of columns.
type TableDef struct {
	Table   Table
	Columns []ColumnDef
}

// Column returns the definition of the column called name.
func (t TableDef) Column(name string) (ColumnDef, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnDef{}, false
}

// ActionKind enumerates the structural changes the synchronizer emits.
// Dropping a column is deliberately not representable.
type ActionKind uint8

const (
	CreateTable ActionKind = iota + 1
	AddColumn
	AlterColumnType
)

func (k ActionKind) String() string {
	switch k {
	case CreateTable:
		return "create-table"
	case AddColumn:
		return "add-column"
	case AlterColumnType:
		return "alter-column-type"
	default:
		return fmt.Sprintf("action(%d)", uint8(k))
	}
}

// Action is one DDL statement to apply.
//
// CreateTable uses Def; AddColumn and AlterColumnType use Def.Table and
// Column, and AlterColumnType additionally records the type it replaces.
type Action struct {
	Kind   ActionKind
	Def    TableDef
	Column ColumnDef
	From   typemap.ColumnType
}

func (a Action) String() string {
	switch a.Kind {
	case CreateTable:
		return fmt.Sprintf("%s %s (%d columns)", a.Kind, a.Def.Table, len(a.Def.Columns))
	case AddColumn:
		return fmt.Sprintf("%s %s.%s %s", a.Kind, a.Def.Table, a.Column.Name, a.Column.Type)
	case AlterColumnType:
		return fmt.Sprintf("%s %s.%s %s -> %s", a.Kind, a.Def.Table, a.Column.Name, a.From, a.Column.Type)
	default:
		return a.Kind.String()
	}
}
