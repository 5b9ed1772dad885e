// Package storage defines the warehouse collaborators used by the loader and
// a small registry that lets the CLI open a backend by kind without importing
// it directly.
package storage

import (
	"context"

	"target-snowflake/internal/ddl"
)

// MetadataReader reads the materialized structure of a table.
type MetadataReader interface {
	// ColumnsOf returns the columns of t in ordinal order. It returns an empty
	// slice (and no error) when the table or its schema does not exist.
	ColumnsOf(ctx context.Context, t ddl.Table) ([]ddl.ColumnDef, error)
}

// DDLExecutor applies one structural action. Each call either fully applies
// or returns an error.
type DDLExecutor interface {
	ExecuteDDL(ctx context.Context, a ddl.Action) error
}

// Loader writes buffered rows. rows are aligned to columns.
type Loader interface {
	// Insert appends every row.
	Insert(ctx context.Context, t ddl.Table, columns []string, rows [][]any) (int64, error)
	// Upsert inserts rows whose key is new and updates every non-key column
	// of rows whose key already exists. rows must not repeat a key.
	Upsert(ctx context.Context, t ddl.Table, columns, keys []string, rows [][]any) (int64, error)
}

// Warehouse is the full set of collaborators a backend provides.
type Warehouse interface {
	MetadataReader
	DDLExecutor
	Loader
	Close()
}
