package config

import (
	"fmt"
	"strings"

	"target-snowflake/internal/flatten"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced to users but does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding.
//
// Path is the config key (e.g. "flush_retry.attempts"). Message is
// human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether issues contains a SeverityError.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Validate performs static checks over a completed Config. It does not
// mutate cfg.
func Validate(cfg Config) []Issue {
	var issues []Issue
	issues = append(issues, validateConnection(cfg)...)
	issues = append(issues, validateLoading(cfg)...)
	issues = append(issues, validateMetrics(cfg.Metrics)...)
	return issues
}

func validateConnection(cfg Config) []Issue {
	var issues []Issue
	for _, f := range []struct{ path, value, env string }{
		{"account", cfg.Account, "SF_ACCOUNT"},
		{"username", cfg.Username, "SF_USER"},
		{"password", cfg.Password, "SF_PASSWORD"},
		{"database", cfg.Database, "SF_DATABASE"},
		{"schema", cfg.Schema, "SF_SCHEMA"},
		{"warehouse", cfg.Warehouse, "SF_WAREHOUSE"},
	} {
		if strings.TrimSpace(f.value) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     f.path,
				Message:  fmt.Sprintf("%s is required (or set %s)", f.path, f.env),
			})
		}
	}

	if strings.Contains(strings.ToLower(cfg.Account), "snowflakecomputing.com") {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "account",
			Message:  "account must be the account identifier, not the host name",
		})
	}
	if strings.TrimSpace(cfg.Role) == "" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "role",
			Message:  "no role configured; the user's default role is used and no grants are issued",
		})
	}
	return issues
}

func validateLoading(cfg Config) []Issue {
	var issues []Issue
	if cfg.BatchSize <= 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "batch_size",
			Message:  "batch_size must be > 0",
		})
	}

	ts := cfg.TimestampColumn
	switch {
	case strings.TrimSpace(ts) == "":
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "timestamp_column",
			Message:  "timestamp_column must not be empty",
		})
	case flatten.NormalizeName(ts) != ts:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "timestamp_column",
			Message:  fmt.Sprintf("timestamp_column %q is not a normalized column name (want %q)", ts, flatten.NormalizeName(ts)),
		})
	}

	if cfg.BufferTTL.Duration < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "buffer_ttl",
			Message:  "buffer_ttl must not be negative",
		})
	}
	if cfg.FlushParallelism < 1 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "flush_parallelism",
			Message:  "flush_parallelism must be >= 1",
		})
	}
	if cfg.MaxOpenConns > 0 && cfg.MaxOpenConns <= cfg.FlushParallelism {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "max_open_conns",
			Message:  "max_open_conns should exceed flush_parallelism; parallel flushes will queue for connections",
		})
	}

	r := cfg.FlushRetry
	if r.Attempts < 1 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "flush_retry.attempts",
			Message:  "flush_retry.attempts must be >= 1",
		})
	}
	if r.MaxDelay.Duration > 0 && r.MaxDelay.Duration < r.Delay.Duration {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "flush_retry.max_delay",
			Message:  "flush_retry.max_delay is below flush_retry.delay",
		})
	}
	return issues
}

func validateMetrics(m Metrics) []Issue {
	var issues []Issue
	switch m.Backend {
	case "", "none":
	case "prometheus":
		if strings.TrimSpace(m.PushgatewayURL) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "metrics.pushgateway_url",
				Message:  "prometheus backend requires metrics.pushgateway_url",
			})
		}
	case "datadog":
		if strings.TrimSpace(m.DatadogAddr) == "" {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "metrics.datadog_addr",
				Message:  "no datadog_addr; the statsd client default is used",
			})
		}
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "metrics.backend",
			Message:  fmt.Sprintf("unknown metrics backend %q (want none, prometheus or datadog)", m.Backend),
		})
	}
	return issues
}
