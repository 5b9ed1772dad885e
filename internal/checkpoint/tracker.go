// Package checkpoint holds STATE messages until the data they cover is
// durably written, then hands them to a Sink.
package checkpoint

import (
	"sync"

	json "github.com/goccy/go-json"
)

type pending struct {
	state   json.RawMessage
	waiting map[string]struct{}
}

// Tracker orders received states and releases them once every stream that
// was dirty when a state arrived has been flushed.
type Tracker struct {
	mu      sync.Mutex
	pending []*pending
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker { return &Tracker{} }

// Add records state as covering the streams in dirty. A state with no dirty
// streams is ready at once.
func (t *Tracker) Add(state json.RawMessage, dirty []string) {
	p := &pending{state: append(json.RawMessage(nil), state...), waiting: make(map[string]struct{}, len(dirty))}
	for _, s := range dirty {
		p.waiting[s] = struct{}{}
	}
	t.mu.Lock()
	t.pending = append(t.pending, p)
	t.mu.Unlock()
}

// MarkFlushed records that stream has no unwritten records.
func (t *Tracker) MarkFlushed(stream string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.pending {
		delete(p.waiting, stream)
	}
}

// PopReady returns the most recent state that may be emitted. A state is
// ready when it and every state before it have no waiting streams; older
// ready states are dropped since the latest one supersedes them.
func (t *Tracker) PopReady() (json.RawMessage, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for n < len(t.pending) && len(t.pending[n].waiting) == 0 {
		n++
	}
	if n == 0 {
		return nil, false
	}
	state := t.pending[n-1].state
	t.pending = append(t.pending[:0], t.pending[n:]...)
	return state, true
}

// Pending returns how many states are held back.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
