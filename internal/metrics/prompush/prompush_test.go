package prompush

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	dto "github.com/prometheus/client_model/go"

	"target-snowflake/internal/metrics"
)

// sample returns the value of the series name{labels} from the registry, or
// -1 when it has not been recorded.
func sample(t *testing.T, b *Backend, name string, labels map[string]string) float64 {
	t.Helper()

	families, err := b.reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, m := range fam.GetMetric() {
			if !hasLabels(m, labels) {
				continue
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue()
			case m.GetSummary() != nil:
				return float64(m.GetSummary().GetSampleCount())
			}
		}
	}
	return -1
}

func hasLabels(m *dto.Metric, want map[string]string) bool {
	got := map[string]string{}
	for _, lp := range m.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

func TestNewBackend(t *testing.T) {
	t.Parallel()

	if _, err := NewBackend("job", ""); err == nil {
		t.Fatal("want error without a gateway URL")
	}
	b, err := NewBackend("", "http://pushgateway:9091")
	if err != nil {
		t.Fatal(err)
	}
	if b.jobName != DefaultJob {
		t.Fatalf("jobName = %q, want %q", b.jobName, DefaultJob)
	}
}

func TestBackend_SyncAndFlushSteps(t *testing.T) {
	t.Parallel()

	b, err := NewBackend("loader", "http://pushgateway:9091")
	if err != nil {
		t.Fatal(err)
	}
	b.IncCounter(metrics.StepTotal, 1, metrics.Labels{"step": "sync", "status": "ok"})
	b.IncCounter(metrics.StepTotal, 1, metrics.Labels{"step": "flush", "status": "ok"})
	b.IncCounter(metrics.StepTotal, 1, metrics.Labels{"step": "flush", "status": "error"})
	b.ObserveHistogram(metrics.StepDuration, 0.25, metrics.Labels{"step": "flush", "status": "ok"})
	b.ObserveHistogram(metrics.StepDuration, 0.75, metrics.Labels{"step": "flush", "status": "ok"})
	b.IncCounter(metrics.RecordsTotal, 500, metrics.Labels{"kind": "received"})
	b.IncCounter(metrics.RecordsTotal, 480, metrics.Labels{"kind": "loaded"})
	b.IncCounter(metrics.BatchesTotal, 2, nil)

	tests := []struct {
		name   string
		labels map[string]string
		want   float64
	}{
		{metrics.StepTotal, map[string]string{"step": "sync", "status": "ok"}, 1},
		{metrics.StepTotal, map[string]string{"step": "flush", "status": "error"}, 1},
		{metrics.StepDuration, map[string]string{"step": "flush", "status": "ok"}, 2},
		{metrics.RecordsTotal, map[string]string{"kind": "received"}, 500},
		{metrics.RecordsTotal, map[string]string{"kind": "loaded"}, 480},
		{metrics.BatchesTotal, nil, 2},
	}
	for _, tt := range tests {
		if got := sample(t, b, tt.name, tt.labels); got != tt.want {
			t.Errorf("%s%v = %v, want %v", tt.name, tt.labels, got, tt.want)
		}
	}
}

func TestBackend_DDLAndCheckpoints(t *testing.T) {
	t.Parallel()

	b, err := NewBackend("loader", "http://pushgateway:9091")
	if err != nil {
		t.Fatal(err)
	}
	b.IncCounter(metrics.DDLActionsTotal, 1, metrics.Labels{"action": "create_table", "status": "ok"})
	b.IncCounter(metrics.DDLActionsTotal, 2, metrics.Labels{"action": "add_column", "status": "ok"})
	b.IncCounter(metrics.CheckpointTotal, 3, nil)
	b.IncCounter("unknown_total", 1, nil)

	if got := sample(t, b, metrics.DDLActionsTotal, map[string]string{"action": "add_column"}); got != 2 {
		t.Errorf("add_column = %v, want 2", got)
	}
	if got := sample(t, b, metrics.CheckpointTotal, nil); got != 3 {
		t.Errorf("checkpoints = %v, want 3", got)
	}
	if got := sample(t, b, "unknown_total", nil); got != -1 {
		t.Errorf("unknown metric recorded: %v", got)
	}
}

func TestBackend_FlushPushesRegistry(t *testing.T) {
	t.Parallel()

	type push struct{ path, body string }
	pushes := make(chan push, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		pushes <- push{r.URL.Path, string(b)}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	b, err := NewBackend("loader", srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	b.IncCounter(metrics.CheckpointTotal, 1, nil)
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	var got push
	select {
	case got = <-pushes:
	default:
		t.Fatal("Flush sent nothing to the gateway")
	}
	if !strings.HasSuffix(got.path, "/job/loader") {
		t.Errorf("push path = %q", got.path)
	}
	if !strings.Contains(got.body, metrics.CheckpointTotal) {
		t.Errorf("pushed body lacks %s", metrics.CheckpointTotal)
	}
}
