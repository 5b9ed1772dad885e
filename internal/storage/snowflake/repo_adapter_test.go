package snowflake

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"target-snowflake/internal/storage"
)

// Tests in this file swap the package-level hook and must not run in
// parallel with each other.

func TestRegistrationUsesNewRepositoryHook(t *testing.T) {
	ctx := context.Background()

	orig := newRepository
	defer func() { newRepository = orig }()

	var (
		gotCfg   Config
		closed   bool
		fakeRepo = &Repository{}
	)
	newRepository = func(_ context.Context, cfg Config, _ *zap.Logger) (*Repository, func(), error) {
		gotCfg = cfg
		return fakeRepo, func() { closed = true }, nil
	}

	wh, err := storage.New(ctx, storage.Config{
		Kind:         Kind,
		Account:      "acme-xy12345",
		User:         "loader",
		Database:     "RAW",
		Schema:       "ANALYTICS",
		Role:         "REPORTER",
		MaxOpenConns: 8,
	})
	if err != nil {
		t.Fatalf("storage.New() error = %v", err)
	}
	if gotCfg.Account != "acme-xy12345" || gotCfg.Schema != "ANALYTICS" || gotCfg.Role != "REPORTER" || gotCfg.MaxOpenConns != 8 {
		t.Fatalf("hook cfg = %+v", gotCfg)
	}
	w, ok := wh.(*wrappedRepo)
	if !ok || w.Repository != fakeRepo {
		t.Fatalf("storage.New() = %T, want *wrappedRepo around the hook's repository", wh)
	}
	wh.Close()
	if !closed {
		t.Fatal("Close did not call closeFn")
	}
}

func TestRegistrationPropagatesErrors(t *testing.T) {
	orig := newRepository
	defer func() { newRepository = orig }()

	boom := errors.New("ping: 390100 incorrect username or password")
	newRepository = func(context.Context, Config, *zap.Logger) (*Repository, func(), error) {
		return nil, nil, boom
	}
	if _, err := storage.New(context.Background(), storage.Config{Kind: Kind}); !errors.Is(err, boom) {
		t.Fatalf("want %v, got %v", boom, err)
	}
}

func TestKindIsListed(t *testing.T) {
	t.Parallel()

	for _, k := range storage.ListKinds() {
		if k == Kind {
			return
		}
	}
	t.Fatalf("%s not registered: %v", Kind, storage.ListKinds())
}

func TestConfigDSN(t *testing.T) {
	t.Parallel()

	dsn, err := Config{Account: "acme-xy12345", User: "loader", Password: "secret", Database: "RAW", Warehouse: "LOAD_WH"}.DSN()
	if err != nil {
		t.Fatal(err)
	}
	for _, part := range []string{"loader", "acme-xy12345", "RAW", "LOAD_WH"} {
		if !strings.Contains(dsn, part) {
			t.Errorf("dsn %q does not mention %s", dsn, part)
		}
	}
}
