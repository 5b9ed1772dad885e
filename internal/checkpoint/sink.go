package checkpoint

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/juju/errors"
)

// Sink receives states whose data is durably written.
type Sink interface {
	Emit(ctx context.Context, state json.RawMessage) error
}

// WriterSink writes each state as one line and flushes it immediately, so
// that the tap runner sees it as soon as it is safe.
type WriterSink struct {
	mu sync.Mutex
	w  *bufio.Writer
}

// NewWriterSink returns a Sink writing to w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: bufio.NewWriter(w)}
}

// IsEmpty reports whether state carries no value: absent, blank or JSON
// null. Such states are never written.
func IsEmpty(state json.RawMessage) bool {
	b := bytes.TrimSpace(state)
	return len(b) == 0 || bytes.Equal(b, []byte("null"))
}

// Emit writes state as one line. Empty states are skipped.
func (s *WriterSink) Emit(ctx context.Context, state json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if IsEmpty(state) {
		return nil
	}
	line, err := compact(state)
	if err != nil {
		return errors.Annotate(err, "checkpoint: encode state")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(line); err != nil {
		return errors.Annotate(err, "checkpoint: write state")
	}
	if err := s.w.WriteByte('\n'); err != nil {
		return errors.Annotate(err, "checkpoint: write state")
	}
	return errors.Annotate(s.w.Flush(), "checkpoint: flush state")
}

// compact strips insignificant whitespace so a state always fits on one line.
func compact(state json.RawMessage) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, state); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
