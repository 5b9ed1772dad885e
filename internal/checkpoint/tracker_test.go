package checkpoint

import (
	"bytes"
	"context"
	"testing"

	json "github.com/goccy/go-json"
)

func state(s string) json.RawMessage { return json.RawMessage(s) }

func TestTracker_ReadyWithoutDirtyStreams(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	tr.Add(state(`{"a":1}`), nil)
	got, ok := tr.PopReady()
	if !ok || string(got) != `{"a":1}` {
		t.Fatalf("PopReady = %s, %v", got, ok)
	}
	if _, ok := tr.PopReady(); ok {
		t.Fatal("state popped twice")
	}
}

func TestTracker_WaitsForEveryStream(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	tr.Add(state(`1`), []string{"users", "orders"})
	tr.MarkFlushed("users")
	if _, ok := tr.PopReady(); ok {
		t.Fatal("state released while orders is unflushed")
	}
	tr.MarkFlushed("orders")
	if got, ok := tr.PopReady(); !ok || string(got) != `1` {
		t.Fatalf("PopReady = %s, %v", got, ok)
	}
}

func TestTracker_LatestReadyWins(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	tr.Add(state(`1`), []string{"users"})
	tr.Add(state(`2`), []string{"users"})
	tr.Add(state(`3`), []string{"users", "orders"})
	tr.MarkFlushed("users")

	got, ok := tr.PopReady()
	if !ok || string(got) != `2` {
		t.Fatalf("PopReady = %s, want 2", got)
	}
	if tr.Pending() != 1 {
		t.Fatalf("Pending = %d, want 1", tr.Pending())
	}
}

func TestTracker_OlderBlockerHoldsNewer(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	tr.Add(state(`1`), []string{"orders"})
	tr.Add(state(`2`), nil)
	if _, ok := tr.PopReady(); ok {
		t.Fatal("a later state must not overtake an unflushed earlier one")
	}
}

func TestWriterSink_OneLinePerState(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	s := NewWriterSink(&out)
	ctx := context.Background()
	if err := s.Emit(ctx, state("{\n  \"bookmarks\": {\"users\": 3}\n}")); err != nil {
		t.Fatal(err)
	}
	if err := s.Emit(ctx, state(`{"bookmarks":{"users":4}}`)); err != nil {
		t.Fatal(err)
	}

	want := "{\"bookmarks\":{\"users\":3}}\n{\"bookmarks\":{\"users\":4}}\n"
	if out.String() != want {
		t.Fatalf("output = %q, want %q", out.String(), want)
	}
}

func TestWriterSink_CanceledContext(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewWriterSink(&out).Emit(ctx, state(`1`)); err == nil {
		t.Fatal("want error on canceled context")
	}
	if out.Len() != 0 {
		t.Fatalf("wrote %q after cancel", out.String())
	}
}

func TestWriterSink_SkipsEmptyStates(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	s := NewWriterSink(&out)
	for _, st := range []string{``, `null`, " null\n", `  `} {
		if err := s.Emit(context.Background(), state(st)); err != nil {
			t.Fatalf("Emit(%q): %v", st, err)
		}
	}
	if out.Len() != 0 {
		t.Fatalf("wrote %q for empty states", out.String())
	}
}
