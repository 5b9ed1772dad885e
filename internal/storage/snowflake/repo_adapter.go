package snowflake

import (
	"context"

	"target-snowflake/internal/storage"
)

// Kind is the storage kind this package registers.
const Kind = "snowflake"

// newRepository points to NewRepository by default. Tests replace it to
// avoid real connections.
var newRepository = NewRepository

var _ storage.Warehouse = (*wrappedRepo)(nil)

func init() {
	storage.Register(Kind, func(ctx context.Context, cfg storage.Config) (storage.Warehouse, error) {
		r, closeFn, err := newRepository(ctx, Config{
			Account:      cfg.Account,
			User:         cfg.User,
			Password:     cfg.Password,
			Role:         cfg.Role,
			Database:     cfg.Database,
			Warehouse:    cfg.Warehouse,
			Schema:       cfg.Schema,
			MaxOpenConns: cfg.MaxOpenConns,
		}, cfg.Logger)
		if err != nil {
			return nil, err
		}
		return &wrappedRepo{Repository: r, closeFn: closeFn}, nil
	})
}

// wrappedRepo routes Close through the function returned by NewRepository.
type wrappedRepo struct {
	*Repository
	closeFn func()
}

func (w *wrappedRepo) Close() { w.closeFn() }
