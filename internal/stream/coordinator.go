// Package stream routes Singer messages to the flattener, the schema
// synchronizer and the per-stream batch buffers, and releases STATE messages
// once the records they cover are written.
//
// Messages are handled one at a time by the caller's goroutine. Only the
// flushes triggered by one event may run in parallel, each on its own
// stream's buffer.
package stream

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/retry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"target-snowflake/internal/batch"
	"target-snowflake/internal/checkpoint"
	"target-snowflake/internal/ddl"
	"target-snowflake/internal/flatten"
	"target-snowflake/internal/metrics"
	"target-snowflake/internal/schema"
	"target-snowflake/internal/singer"
	"target-snowflake/internal/storage"
	"target-snowflake/pkg/records"
)

// ErrRecordBeforeSchema is returned for a RECORD whose stream has no SCHEMA
// yet.
const ErrRecordBeforeSchema = errors.ConstError("record before schema")

// Phase is the lifecycle state of one stream.
type Phase int

const (
	Unseen Phase = iota
	SchemaKnown
	Loading
)

func (p Phase) String() string {
	switch p {
	case SchemaKnown:
		return "SCHEMA_KNOWN"
	case Loading:
		return "LOADING"
	default:
		return "UNSEEN"
	}
}

// Retry bounds how often a failed flush is resubmitted before the run
// gives up. Attempts of 1 or less disables retrying.
type Retry struct {
	Attempts int
	Delay    time.Duration
	MaxDelay time.Duration
}

// Options configures a Coordinator. Zero values take the defaults noted.
type Options struct {
	Schema           string        // warehouse schema holding the tables
	TimestampColumn  string        // default "__loaded_at"
	BatchSize        int           // default 5000
	BufferTTL        time.Duration // zero disables time-based flushes
	FlushParallelism int           // default 4
	Retry            Retry
	Job              string
	Clock            clock.Clock // default clock.WallClock
}

const (
	DefaultTimestampColumn  = "__loaded_at"
	DefaultBatchSize        = 5000
	DefaultFlushParallelism = 4
)

func (o Options) withDefaults() Options {
	if o.TimestampColumn == "" {
		o.TimestampColumn = DefaultTimestampColumn
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.FlushParallelism <= 0 {
		o.FlushParallelism = DefaultFlushParallelism
	}
	if o.Clock == nil {
		o.Clock = clock.WallClock
	}
	return o
}

type streamState struct {
	name    string
	phase   Phase
	schema  *records.Schema
	columns []string
	keys    []string
	def     ddl.TableDef
	buf     *batch.Buffer
}

// Coordinator is the per-run state machine over all streams.
type Coordinator struct {
	opts    Options
	syncer  *schema.Synchronizer
	flusher *batch.Controller
	tracker *checkpoint.Tracker
	sink    checkpoint.Sink
	log     *zap.Logger

	streams map[string]*streamState
	order   []string // first-seen
}

// New returns a Coordinator writing to wh and emitting states to sink.
func New(wh storage.Warehouse, sink checkpoint.Sink, opts Options, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	opts = opts.withDefaults()
	return &Coordinator{
		opts:    opts,
		syncer:  schema.NewSynchronizer(wh, wh, log, opts.Job),
		flusher: batch.NewController(wh, log, opts.Job),
		tracker: checkpoint.NewTracker(),
		sink:    sink,
		log:     log.Named("coordinator"),
		streams: map[string]*streamState{},
	}
}

// Phase reports the lifecycle state of stream.
func (c *Coordinator) Phase(stream string) Phase {
	if st, ok := c.streams[stream]; ok {
		return st.phase
	}
	return Unseen
}

// Buffered returns how many records of stream await a flush.
func (c *Coordinator) Buffered(stream string) int {
	if st, ok := c.streams[stream]; ok && st.buf != nil {
		return st.buf.Len()
	}
	return 0
}

// Streams returns the stream names in first-seen order.
func (c *Coordinator) Streams() []string { return slices.Clone(c.order) }

// Handle dispatches one message.
func (c *Coordinator) Handle(ctx context.Context, msg singer.Message) error {
	switch m := msg.(type) {
	case *singer.SchemaMessage:
		return c.HandleSchema(ctx, m)
	case *singer.RecordMessage:
		return c.HandleRecord(ctx, m)
	case *singer.StateMessage:
		return c.HandleState(ctx, m)
	case *singer.ActivateVersionMessage:
		c.ActivateVersion(m)
		return nil
	default:
		return fmt.Errorf("%w: unsupported message %T", singer.ErrInvalidMessage, msg)
	}
}

// HandleSchema declares or redeclares a stream and brings its table in line.
// Records already buffered are kept. When the key properties change, or a
// previously declared column disappears, the buffer is flushed first under
// the old definition.
func (c *Coordinator) HandleSchema(ctx context.Context, m *singer.SchemaMessage) error {
	flat, err := flatten.Schema(m.Schema, c.opts.TimestampColumn)
	if err != nil {
		return fmt.Errorf("stream %q: %w", m.Stream, err)
	}
	keys := make([]string, len(m.KeyProperties))
	for i, k := range m.KeyProperties {
		keys[i] = flatten.Key(k)
	}
	table := ddl.Table{Schema: c.opts.Schema, Name: flatten.TableName(m.Stream)}
	def, err := ddl.InferTableDef(table, flat, keys)
	if err != nil {
		return fmt.Errorf("%w: stream %q: %v", singer.ErrInvalidSchema, m.Stream, err)
	}

	st, known := c.streams[m.Stream]
	if known && !st.buf.Empty() && !compatibleBuffer(st, flat, keys) {
		c.log.Info("flushing before redefinition", zap.String("stream", m.Stream), zap.Int("rows", st.buf.Len()))
		if err := c.flushStreams(ctx, []*streamState{st}); err != nil {
			return err
		}
	}

	changes, err := c.syncer.Sync(ctx, m.Stream, def)
	if err != nil {
		return err
	}

	if !known {
		st = &streamState{name: m.Stream}
		c.streams[m.Stream] = st
		c.order = append(c.order, m.Stream)
	}
	if st.buf == nil || !slices.Equal(st.keys, keys) {
		st.buf = batch.NewBuffer(m.Stream, keys, c.opts.BufferTTL)
	}
	st.schema = flat
	st.columns = flat.Names()
	st.keys = keys
	st.def = def
	if st.phase == Unseen {
		st.phase = SchemaKnown
	}

	c.log.Debug("schema accepted",
		zap.String("stream", m.Stream),
		zap.Stringer("table", table),
		zap.Stringer("phase", st.phase),
		zap.Int("columns", len(st.columns)),
		zap.Int("actions", len(changes.Actions)))
	return nil
}

// compatibleBuffer reports whether records buffered under st can be written
// with the new flat schema and keys.
func compatibleBuffer(st *streamState, flat *records.Schema, keys []string) bool {
	if !slices.Equal(st.keys, keys) {
		return false
	}
	for _, name := range st.columns {
		if !flat.Has(name) {
			return false
		}
	}
	return true
}

// HandleRecord flattens and buffers one record, flushing the stream when its
// buffer reaches the batch size.
func (c *Coordinator) HandleRecord(ctx context.Context, m *singer.RecordMessage) error {
	st, ok := c.streams[m.Stream]
	if !ok || st.phase == Unseen {
		return fmt.Errorf("%w: stream %q", ErrRecordBeforeSchema, m.Stream)
	}

	now := c.opts.Clock.Now()
	rec, err := flatten.Record(m.Record, st.schema, c.opts.TimestampColumn, now)
	if err != nil {
		return fmt.Errorf("stream %q: %w", m.Stream, err)
	}
	if err := st.buf.Append(rec, now); err != nil {
		return err
	}
	st.phase = Loading
	metrics.RecordRow(c.opts.Job, "received", 1)

	if st.buf.Len() < c.opts.BatchSize {
		return nil
	}
	if err := c.flushStreams(ctx, []*streamState{st}); err != nil {
		return err
	}
	return c.emitReady(ctx)
}

// HandleState holds the state until every stream with buffered records is
// flushed, flushes them, and emits the state only if all flushes succeed.
func (c *Coordinator) HandleState(ctx context.Context, m *singer.StateMessage) error {
	dirty := c.dirty(func(*streamState) bool { return true })
	names := make([]string, len(dirty))
	for i, st := range dirty {
		names[i] = st.name
	}
	c.tracker.Add(m.Value, names)

	if err := c.flushStreams(ctx, dirty); err != nil {
		return err
	}
	return c.emitReady(ctx)
}

// FlushExpired flushes the streams whose buffer outlived the buffer TTL.
func (c *Coordinator) FlushExpired(ctx context.Context) error {
	now := c.opts.Clock.Now()
	expired := c.dirty(func(st *streamState) bool { return st.buf.Expired(now) })
	if len(expired) == 0 {
		return nil
	}
	if err := c.flushStreams(ctx, expired); err != nil {
		return err
	}
	return c.emitReady(ctx)
}

// Finish flushes every remaining buffer and emits the last ready state.
func (c *Coordinator) Finish(ctx context.Context) error {
	if err := c.flushStreams(ctx, c.dirty(func(*streamState) bool { return true })); err != nil {
		return err
	}
	if err := c.emitReady(ctx); err != nil {
		return err
	}
	if n := c.tracker.Pending(); n > 0 {
		return errors.Errorf("%d state messages still pending at end of input", n)
	}
	return nil
}

// ActivateVersion is accepted for compatibility and has no effect.
func (c *Coordinator) ActivateVersion(m *singer.ActivateVersionMessage) {
	c.log.Debug("ignoring ACTIVATE_VERSION", zap.String("stream", m.Stream), zap.Int64("version", m.Version))
}

// dirty returns the streams with buffered records that match, in first-seen
// order.
func (c *Coordinator) dirty(match func(*streamState) bool) []*streamState {
	var out []*streamState
	for _, name := range c.order {
		st := c.streams[name]
		if st.buf != nil && !st.buf.Empty() && match(st) {
			out = append(out, st)
		}
	}
	return out
}

// flushStreams flushes the given streams, at most FlushParallelism at a
// time, and waits for all of them. Each stream that succeeds is marked
// flushed in the tracker; the first failure is returned.
func (c *Coordinator) flushStreams(ctx context.Context, streams []*streamState) error {
	if len(streams) == 0 {
		return nil
	}
	var g errgroup.Group
	g.SetLimit(c.opts.FlushParallelism)
	for _, st := range streams {
		st := st
		g.Go(func() error {
			if err := c.flushWithRetry(ctx, st); err != nil {
				return err
			}
			c.tracker.MarkFlushed(st.name)
			return nil
		})
	}
	return g.Wait()
}

func (c *Coordinator) flushWithRetry(ctx context.Context, st *streamState) error {
	call := func() error {
		_, err := c.flusher.Flush(ctx, st.def.Table, st.columns, st.buf)
		return err
	}
	r := c.opts.Retry
	if r.Attempts <= 1 {
		return call()
	}
	delay := r.Delay
	if delay <= 0 {
		delay = time.Second
	}

	var lastErr error
	err := retry.Call(retry.CallArgs{
		Func: call,
		IsFatalError: func(err error) bool {
			return !errors.Is(err, batch.ErrFlushFailed) || ctx.Err() != nil
		},
		NotifyFunc: func(err error, attempt int) {
			lastErr = err
			c.log.Warn("flush attempt failed",
				zap.String("stream", st.name),
				zap.Int("attempt", attempt),
				zap.Int("attempts", r.Attempts),
				zap.Error(err))
		},
		Attempts:    r.Attempts,
		Delay:       delay,
		MaxDelay:    r.MaxDelay,
		BackoffFunc: retry.DoubleDelay,
		Clock:       c.opts.Clock,
		Stop:        ctx.Done(),
	})
	switch {
	case err == nil:
		return nil
	case retry.IsAttemptsExceeded(err):
		return fmt.Errorf("stream %q: giving up after %d attempts: %w", st.name, r.Attempts, lastErr)
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		return err
	}
}

func (c *Coordinator) emitReady(ctx context.Context) error {
	state, ok := c.tracker.PopReady()
	if !ok {
		return nil
	}
	if checkpoint.IsEmpty(state) {
		c.log.Debug("empty state not emitted")
		return nil
	}
	if err := c.sink.Emit(ctx, state); err != nil {
		return errors.Annotate(err, "emit state")
	}
	metrics.RecordCheckpoint(c.opts.Job)
	c.log.Debug("state emitted", zap.Int("bytes", len(state)))
	return nil
}
