// Package metrics provides a small, backend-agnostic abstraction for recording
// operational metrics from the loader.
//
//   - It exposes a narrow interface (Backend) focused on counters and timing
//     data.
//   - It provides a global, pluggable backend that defaults to a no-op
//     implementation, so metrics are always safe to call even when no real
//     backend is configured.
//   - Concrete metric systems live in subpackages (prompush, datadog).
//
// Instrumented stages: schema synchronization, DDL actions, flushes, records
// received and loaded, and checkpoints emitted.
package metrics

import "time"

// Metric names shared by every backend.
const (
	StepTotal       = "target_step_total"
	StepDuration    = "target_step_duration_seconds"
	RecordsTotal    = "target_records_total"
	BatchesTotal    = "target_batches_total"
	DDLActionsTotal = "target_ddl_actions_total"
	CheckpointTotal = "target_checkpoints_total"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing
// backend. Call it before any stage starts recording.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

func status(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// RecordStep measures latency and success/failure of one stage run, e.g.
// step "sync" or "flush".
func RecordStep(job, step string, err error, d time.Duration) {
	lbls := Labels{
		"job":    job,
		"step":   step,
		"status": status(err),
	}
	backend.IncCounter(StepTotal, 1, lbls)
	backend.ObserveHistogram(StepDuration, d.Seconds(), lbls)
}

// RecordRow increments a record-level counter. Kinds in use:
//   - "received"
//   - "loaded"
func RecordRow(job, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(RecordsTotal, float64(delta), Labels{
		"job":  job,
		"kind": kind,
	})
}

// RecordBatches increments the flushed batch counter.
func RecordBatches(job string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(BatchesTotal, float64(delta), Labels{
		"job": job,
	})
}

// RecordDDL counts one applied (or failed) DDL action of the given kind.
func RecordDDL(job, action string, err error) {
	backend.IncCounter(DDLActionsTotal, 1, Labels{
		"job":    job,
		"action": action,
		"status": status(err),
	})
}

// RecordCheckpoint counts one STATE message emitted downstream.
func RecordCheckpoint(job string) {
	backend.IncCounter(CheckpointTotal, 1, Labels{"job": job})
}
