package storage

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func rowsOf(n int) [][]any {
	rows := make([][]any, n)
	for i := range rows {
		rows[i] = []any{i, "x"}
	}
	return rows
}

// TestLoadChunks_Basic verifies rows are split into chunks and copyFn is
// called with the expected counts. The total equals the sum of all copyFn
// returns.
func TestLoadChunks_Basic(t *testing.T) {
	t.Parallel()

	var calls int32
	var sizes []int
	copyFn := func(_ context.Context, _ []string, rows [][]any) (int64, error) {
		atomic.AddInt32(&calls, 1)
		sizes = append(sizes, len(rows))
		return int64(len(rows)), nil
	}

	total, err := LoadChunks(context.Background(), nil, []string{"c1", "c2"}, rowsOf(7), 3, copyFn)
	if err != nil {
		t.Fatalf("LoadChunks error: %v", err)
	}
	if total != 7 {
		t.Fatalf("total rows %d, want 7", total)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("copyFn calls %d, want 3 (3+3+1)", got)
	}
	if sizes[2] != 1 {
		t.Fatalf("last chunk size %d, want 1", sizes[2])
	}
}

// TestLoadChunks_ErrorPropagation ensures the first copy error is propagated
// and processing stops after that chunk.
func TestLoadChunks_ErrorPropagation(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.WarnLevel)
	wantErr := errors.New("copy failed")
	var chunks int
	copyFn := func(_ context.Context, _ []string, rows [][]any) (int64, error) {
		chunks++
		if chunks == 2 {
			return 0, wantErr
		}
		return int64(len(rows)), nil
	}

	total, err := LoadChunks(context.Background(), zap.New(core), []string{"c"}, rowsOf(5), 2, copyFn)
	if !errors.Is(err, wantErr) {
		t.Fatalf("want error %v, got %v", wantErr, err)
	}
	if total != 2 {
		t.Fatalf("total rows %d, want 2", total)
	}
	if chunks != 2 {
		t.Fatalf("copyFn calls %d, want 2", chunks)
	}
	if logs.FilterMessage("chunk copy failed").Len() != 1 {
		t.Fatalf("expected one failure log, got %v", logs.All())
	}
}

// TestLoadChunks_ContextCancel checks the loader stops before the next chunk
// once the context is canceled.
func TestLoadChunks_ContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	copyFn := func(_ context.Context, _ []string, rows [][]any) (int64, error) {
		cancel()
		return int64(len(rows)), nil
	}
	total, err := LoadChunks(ctx, zap.NewNop(), []string{"c"}, rowsOf(4), 2, copyFn)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
	if total != 2 {
		t.Fatalf("total rows %d, want 2", total)
	}
}

func TestLoadChunks_ArgValidation(t *testing.T) {
	t.Parallel()

	if _, err := LoadChunks(context.Background(), nil, nil, nil, 0, func(context.Context, []string, [][]any) (int64, error) { return 0, nil }); err == nil {
		t.Error("expected error for chunkSize 0")
	}
	if _, err := LoadChunks(context.Background(), nil, nil, nil, 1, nil); err == nil {
		t.Error("expected error for nil copyFn")
	}
}

func TestChunkSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		columns, maxBinds, maxRows, want int
	}{
		{3, 100, 1000, 33},
		{3, 100, 10, 10},
		{500, 100, 1000, 1},
		{0, 100, 50, 50},
	}
	for _, tt := range tests {
		if got := ChunkSize(tt.columns, tt.maxBinds, tt.maxRows); got != tt.want {
			t.Errorf("ChunkSize(%d, %d, %d) = %d, want %d", tt.columns, tt.maxBinds, tt.maxRows, got, tt.want)
		}
	}
}
