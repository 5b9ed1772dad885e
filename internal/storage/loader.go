package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// CopyFn abstracts a backend's bulk insert primitive. Implementations insert
// the provided rows (aligned to columns) and return the number of rows
// reported as inserted.
type CopyFn func(ctx context.Context, columns []string, rows [][]any) (int64, error)

// LoadChunks splits rows into chunks of at most chunkSize rows and calls
// copyFn for each of them in order. It returns the total reported by copyFn
// and stops at the first error.
//
// Backends use it to keep every statement under their bind-parameter limit.
// Progress is logged at debug level after each chunk.
func LoadChunks(
	ctx context.Context,
	log *zap.Logger,
	columns []string,
	rows [][]any,
	chunkSize int,
	copyFn CopyFn,
) (int64, error) {
	if chunkSize <= 0 {
		return 0, fmt.Errorf("chunkSize must be > 0")
	}
	if copyFn == nil {
		return 0, fmt.Errorf("copyFn must not be nil")
	}
	if log == nil {
		log = zap.NewNop()
	}

	var (
		total  int64
		chunks int
		start  = time.Now()
	)
	for lo := 0; lo < len(rows); lo += chunkSize {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		hi := lo + chunkSize
		if hi > len(rows) {
			hi = len(rows)
		}

		n, err := copyFn(ctx, columns, rows[lo:hi])
		total += n
		if err != nil {
			log.Warn("chunk copy failed",
				zap.Int("chunk", chunks+1),
				zap.Int64("copied", n),
				zap.Int64("total", total),
				zap.Error(err))
			return total, err
		}
		chunks++

		if ce := log.Check(zap.DebugLevel, "chunk copied"); ce != nil {
			elapsed := time.Since(start)
			rps := float64(0)
			if elapsed > 0 {
				rps = float64(total) / elapsed.Seconds()
			}
			ce.Write(
				zap.Int("chunk", chunks),
				zap.Int64("rows", n),
				zap.String("total", humanize.Comma(total)),
				zap.Float64("rows_per_sec", rps),
				zap.Duration("elapsed", elapsed.Truncate(time.Millisecond)),
			)
		}
	}
	return total, nil
}

// ChunkSize returns how many rows of width columns fit under maxBinds bind
// parameters, capped at maxRows.
func ChunkSize(columns, maxBinds, maxRows int) int {
	if columns <= 0 {
		return maxRows
	}
	n := maxBinds / columns
	if n < 1 {
		n = 1
	}
	if maxRows > 0 && n > maxRows {
		n = maxRows
	}
	return n
}
