// Package snowflake implements storage.Warehouse on Snowflake through
// database/sql and the gosnowflake driver.
//
// Appends are chunked multi-row INSERTs in one transaction. Upserts load a
// temporary staging table created LIKE the target and MERGE it on the key
// columns, all on one session so the staging table stays visible.
package snowflake

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/snowflakedb/gosnowflake"
	"go.uber.org/zap"

	gddl "target-snowflake/internal/ddl"
	"target-snowflake/internal/storage"
	sfddl "target-snowflake/internal/storage/snowflake/ddl"
	"target-snowflake/internal/typemap"
)

// Config holds the connection settings of a Repository.
type Config struct {
	Account   string
	User      string
	Password  string
	Role      string
	Database  string
	Warehouse string
	Schema    string

	MaxOpenConns int
}

// DSN renders cfg as a gosnowflake data source name.
func (cfg Config) DSN() (string, error) {
	return gosnowflake.DSN(&gosnowflake.Config{
		Account:     cfg.Account,
		User:        cfg.User,
		Password:    cfg.Password,
		Role:        cfg.Role,
		Database:    cfg.Database,
		Schema:      cfg.Schema,
		Warehouse:   cfg.Warehouse,
		Application: "target-snowflake",
	})
}

// Repository is a Snowflake-backed storage.Warehouse.
type Repository struct {
	db  *sql.DB
	cfg Config
	log *zap.Logger
}

var _ storage.Warehouse = (*Repository)(nil)

// NewRepository opens and pings a connection pool and returns a Close
// function for cleanup.
func NewRepository(ctx context.Context, cfg Config, log *zap.Logger) (*Repository, func(), error) {
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, nil, fmt.Errorf("snowflake dsn: %w", err)
	}
	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("sql.Open: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping: %w", err)
	}
	r := newWithDB(db, cfg, log)
	return r, r.Close, nil
}

func newWithDB(db *sql.DB, cfg Config, log *zap.Logger) *Repository {
	if log == nil {
		log = zap.NewNop()
	}
	return &Repository{db: db, cfg: cfg, log: log.Named("snowflake")}
}

func (r *Repository) Close() { _ = r.db.Close() }

const columnsQuery = `SELECT column_name, data_type, is_nullable,
       character_maximum_length, numeric_precision, numeric_scale
  FROM %s.information_schema.columns
 WHERE table_schema = ? AND table_name = ?
 ORDER BY ordinal_position`

// ColumnsOf reads the columns of t from information_schema. A missing table
// or schema yields no rows and therefore no columns.
func (r *Repository) ColumnsOf(ctx context.Context, t gddl.Table) ([]gddl.ColumnDef, error) {
	q := fmt.Sprintf(columnsQuery, quote.Ident(r.cfg.Database))
	rows, err := r.db.QueryContext(ctx, q, strings.ToUpper(t.Schema), strings.ToUpper(t.Name))
	if err != nil {
		return nil, fmt.Errorf("query columns of %s: %w", t, err)
	}
	defer rows.Close()

	var out []gddl.ColumnDef
	for rows.Next() {
		var (
			name, dataType, nullable string
			charLen, prec, scale     sql.NullInt64
		)
		if err := rows.Scan(&name, &dataType, &nullable, &charLen, &prec, &scale); err != nil {
			return nil, fmt.Errorf("scan columns of %s: %w", t, err)
		}
		out = append(out, gddl.ColumnDef{
			Name:     name,
			Type:     typemap.ParseWarehouse(dataType, charLen.Int64, prec.Int64, scale.Int64),
			Nullable: strings.EqualFold(nullable, "YES"),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read columns of %s: %w", t, err)
	}
	return out, nil
}

// ExecuteDDL runs the statements of a in order on one session.
func (r *Repository) ExecuteDDL(ctx context.Context, a gddl.Action) error {
	stmts, err := sfddl.Render(a, r.cfg.Role)
	if err != nil {
		return err
	}
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	for _, s := range stmts {
		start := time.Now()
		if _, err := conn.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("%s: %w", a, err)
		}
		r.log.Debug("ddl executed", zap.String("sql", s), zap.Duration("duration", time.Since(start)))
	}
	return nil
}

// Insert appends rows to t in one transaction.
func (r *Repository) Insert(ctx context.Context, t gddl.Table, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	n, err := r.insertChunks(ctx, tx, t, columns, rows)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

// Upsert merges rows into t on keys through a staging table.
func (r *Repository) Upsert(ctx context.Context, t gddl.Table, columns, keys []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(keys) == 0 {
		return 0, fmt.Errorf("upsert into %s without key columns", t)
	}
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	staging := stagingTable(t)
	// DDL commits implicitly in Snowflake, so the staging table is created
	// outside the load transaction.
	if _, err := conn.ExecContext(ctx, buildCreateStagingSQL(staging, t)); err != nil {
		return 0, fmt.Errorf("create staging %s: %w", staging, err)
	}
	defer func() {
		if _, err := conn.ExecContext(context.WithoutCancel(ctx), buildDropSQL(staging)); err != nil {
			r.log.Warn("drop staging table failed", zap.Stringer("table", staging), zap.Error(err))
		}
	}()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	if _, err := r.insertChunks(ctx, tx, staging, columns, rows); err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	res, err := tx.ExecContext(ctx, buildMergeSQL(t, staging, columns, keys))
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("merge into %s: %w", t, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return int64(len(rows)), nil
	}
	return n, nil
}

func (r *Repository) insertChunks(ctx context.Context, tx *sql.Tx, t gddl.Table, columns []string, rows [][]any) (int64, error) {
	chunk := storage.ChunkSize(len(columns), maxBindVars, maxRowsPerInsert)
	return storage.LoadChunks(ctx, r.log.With(zap.Stringer("table", t)), columns, rows, chunk,
		func(ctx context.Context, columns []string, rows [][]any) (int64, error) {
			res, err := tx.ExecContext(ctx, buildInsertSQL(t, columns, len(rows)), flatArgs(rows)...)
			if err != nil {
				return 0, fmt.Errorf("insert into %s: %w", t, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return int64(len(rows)), nil
			}
			return n, nil
		})
}
