package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/juju/errors"
	"go.uber.org/zap"

	"target-snowflake/internal/ddl"
	"target-snowflake/internal/metrics"
	"target-snowflake/internal/storage"
)

// ErrFlushFailed is the kind of every FlushError.
const ErrFlushFailed = errors.ConstError("flush failed")

// FlushError reports a failed write. The buffer it came from is untouched.
type FlushError struct {
	Stream string
	Table  ddl.Table
	Rows   int
	Err    error
}

func (e *FlushError) Error() string {
	return fmt.Sprintf("stream %q: %s: %d rows into %s: %v", e.Stream, ErrFlushFailed, e.Rows, e.Table, e.Err)
}

// Unwrap exposes both ErrFlushFailed and the warehouse error.
func (e *FlushError) Unwrap() []error { return []error{ErrFlushFailed, e.Err} }

// Mode is the write strategy of a stream.
type Mode string

const (
	ModeAppend Mode = "append"
	ModeUpsert Mode = "upsert"
)

// FlushResult describes a completed flush.
type FlushResult struct {
	Stream   string
	Table    ddl.Table
	Mode     Mode
	Rows     int
	Written  int64
	Duration time.Duration
}

// Controller writes buffers through a storage.Loader. It never retries.
type Controller struct {
	loader storage.Loader
	log    *zap.Logger
	job    string
}

// NewController returns a Controller. job labels the metrics it records.
func NewController(loader storage.Loader, log *zap.Logger, job string) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{loader: loader, log: log.Named("flush"), job: job}
}

// Flush writes every record of buf into table, projected onto columns.
//
// An empty buffer is a successful no-op. In upsert mode the rows are merged
// on buf.Keys(); otherwise they are appended. On success buf is reset; on
// failure buf is left as it was and a *FlushError is returned.
func (c *Controller) Flush(ctx context.Context, table ddl.Table, columns []string, buf *Buffer) (FlushResult, error) {
	res := FlushResult{Stream: buf.Stream(), Table: table, Mode: ModeAppend}
	if buf.IsUpsert() {
		res.Mode = ModeUpsert
	}
	if buf.Empty() {
		return res, nil
	}

	start := time.Now()
	rows := make([][]any, 0, buf.Len())
	for _, rec := range buf.Records() {
		rows = append(rows, rec.Row(columns))
	}
	res.Rows = len(rows)

	var (
		n   int64
		err error
	)
	if res.Mode == ModeUpsert {
		n, err = c.loader.Upsert(ctx, table, columns, buf.Keys(), rows)
	} else {
		n, err = c.loader.Insert(ctx, table, columns, rows)
	}
	res.Duration = time.Since(start)
	metrics.RecordStep(c.job, "flush", err, res.Duration)

	if err != nil {
		c.log.Warn("flush failed",
			zap.String("stream", res.Stream),
			zap.Stringer("table", table),
			zap.String("mode", string(res.Mode)),
			zap.Int("rows", res.Rows),
			zap.Error(err))
		return res, &FlushError{Stream: res.Stream, Table: table, Rows: res.Rows, Err: err}
	}

	res.Written = n
	buf.Reset()
	metrics.RecordRow(c.job, "loaded", int64(res.Rows))
	metrics.RecordBatches(c.job, 1)
	c.log.Info("flushed",
		zap.String("stream", res.Stream),
		zap.Stringer("table", table),
		zap.String("mode", string(res.Mode)),
		zap.String("rows", humanize.Comma(int64(res.Rows))),
		zap.Duration("duration", res.Duration))
	return res, nil
}
