// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package.
//
// The backend maps the generic metric names onto client_golang collectors and
// pushes the registry to a Pushgateway on Flush. The loader is a batch
// process reading stdin, so there is no scrape endpoint to expose.
package prompush

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"target-snowflake/internal/metrics"
)

// DefaultJob is the Pushgateway job used when none is configured.
const DefaultJob = "target-snowflake"

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string // e.g. http://pushgateway:9091
	jobName    string // Pushgateway "job" group
	reg        *prometheus.Registry

	stepCounter  *prometheus.CounterVec // step, status
	stepDuration *prometheus.SummaryVec // step, status

	recordCounter     *prometheus.CounterVec // kind
	batchCounter      prometheus.Counter
	ddlCounter        *prometheus.CounterVec // action, status
	checkpointCounter prometheus.Counter
}

// NewBackend constructs a Prometheus Pushgateway backend.
// jobName is the Pushgateway "job" grouping key; gatewayURL is the base URL
// of the Pushgateway server.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = DefaultJob
	}

	b := &Backend{
		gatewayURL: gatewayURL,
		jobName:    jobName,
		reg:        prometheus.NewRegistry(),
		stepCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metrics.StepTotal,
				Help: "Stage executions, partitioned by step and status.",
			},
			[]string{"step", "status"},
		),
		stepDuration: prometheus.NewSummaryVec(
			prometheus.SummaryOpts{
				Name:       metrics.StepDuration,
				Help:       "Stage duration in seconds, partitioned by step and status.",
				Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
			},
			[]string{"step", "status"},
		),
		recordCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metrics.RecordsTotal,
				Help: "Records per kind (received, loaded).",
			},
			[]string{"kind"},
		),
		batchCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metrics.BatchesTotal,
			Help: "Buffers flushed to the warehouse.",
		}),
		ddlCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metrics.DDLActionsTotal,
				Help: "DDL actions applied, partitioned by action and status.",
			},
			[]string{"action", "status"},
		),
		checkpointCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metrics.CheckpointTotal,
			Help: "STATE messages emitted after a durable flush.",
		}),
	}

	for name, c := range map[string]prometheus.Collector{
		"step counter":       b.stepCounter,
		"step summary":       b.stepDuration,
		"record counter":     b.recordCounter,
		"batch counter":      b.batchCounter,
		"ddl counter":        b.ddlCounter,
		"checkpoint counter": b.checkpointCounter,
	} {
		if err := b.reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register %s: %w", name, err)
		}
	}
	return b, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case metrics.StepTotal:
		if b.stepCounter == nil {
			return
		}
		b.stepCounter.WithLabelValues(labels["step"], labels["status"]).Add(delta)

	case metrics.RecordsTotal:
		if b.recordCounter == nil {
			return
		}
		b.recordCounter.WithLabelValues(labels["kind"]).Add(delta)

	case metrics.BatchesTotal:
		if b.batchCounter == nil {
			return
		}
		b.batchCounter.Add(delta)

	case metrics.DDLActionsTotal:
		if b.ddlCounter == nil {
			return
		}
		b.ddlCounter.WithLabelValues(labels["action"], labels["status"]).Add(delta)

	case metrics.CheckpointTotal:
		if b.checkpointCounter == nil {
			return
		}
		b.checkpointCounter.Add(delta)

	default:
		// unknown metric name: ignore
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != metrics.StepDuration || b.stepDuration == nil {
		return
	}
	b.stepDuration.WithLabelValues(labels["step"], labels["status"]).Observe(value)
}

// Flush pushes the current registry to the Pushgateway.
func (b *Backend) Flush() error {
	return push.New(b.gatewayURL, b.jobName).
		Gatherer(b.reg).
		Push()
}
