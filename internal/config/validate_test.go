package config

import (
	"strings"
	"testing"
)

// hasIssue reports whether issues contains an Issue with the given severity,
// path, and a Message containing msgSubstr.
func hasIssue(t *testing.T, issues []Issue, sev IssueSeverity, path, msgSubstr string) bool {
	t.Helper()
	for _, iss := range issues {
		if iss.Severity == sev && iss.Path == path && strings.Contains(iss.Message, msgSubstr) {
			return true
		}
	}
	return false
}

func valid() Config {
	cfg := Config{
		Account:   "acme-xy12345",
		Username:  "loader",
		Password:  "secret",
		Role:      "LOADER",
		Database:  "RAW",
		Schema:    "ANALYTICS",
		Warehouse: "LOAD_WH",
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestValidate_ValidMinimal(t *testing.T) {
	t.Parallel()

	if issues := Validate(valid()); len(issues) != 0 {
		t.Fatalf("expected no issues, got %+v", issues)
	}
}

func TestValidate_MissingConnection(t *testing.T) {
	t.Parallel()

	cfg := valid()
	cfg.Password = ""
	cfg.Warehouse = " "
	issues := Validate(cfg)

	if !hasIssue(t, issues, SeverityError, "password", "SF_PASSWORD") {
		t.Errorf("missing password not reported: %+v", issues)
	}
	if !hasIssue(t, issues, SeverityError, "warehouse", "required") {
		t.Errorf("blank warehouse not reported: %+v", issues)
	}
	if !HasErrors(issues) {
		t.Error("HasErrors = false")
	}
}

func TestValidate_Cases(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		sev    IssueSeverity
		path   string
		msg    string
	}{
		{"account host name", func(c *Config) { c.Account = "acme.eu-west-1.snowflakecomputing.com" }, SeverityError, "account", "not the host name"},
		{"no role", func(c *Config) { c.Role = "" }, SeverityWarning, "role", "no grants"},
		{"batch size", func(c *Config) { c.BatchSize = -1 }, SeverityError, "batch_size", "> 0"},
		{"timestamp empty", func(c *Config) { c.TimestampColumn = "" }, SeverityError, "timestamp_column", "must not be empty"},
		{"timestamp not normalized", func(c *Config) { c.TimestampColumn = "LoadedAt" }, SeverityError, "timestamp_column", "loaded_at"},
		{"parallelism", func(c *Config) { c.FlushParallelism = 0 }, SeverityError, "flush_parallelism", ">= 1"},
		{"pool too small", func(c *Config) { c.MaxOpenConns = 2 }, SeverityWarning, "max_open_conns", "queue"},
		{"retry attempts", func(c *Config) { c.FlushRetry.Attempts = -1 }, SeverityError, "flush_retry.attempts", ">= 1"},
		{"retry max below delay", func(c *Config) { c.FlushRetry.MaxDelay.Duration = 1 }, SeverityWarning, "flush_retry.max_delay", "below"},
		{"prometheus without url", func(c *Config) { c.Metrics.Backend = "prometheus" }, SeverityError, "metrics.pushgateway_url", "requires"},
		{"datadog without addr", func(c *Config) { c.Metrics.Backend = "datadog" }, SeverityWarning, "metrics.datadog_addr", "default"},
		{"unknown backend", func(c *Config) { c.Metrics.Backend = "graphite" }, SeverityError, "metrics.backend", "graphite"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid()
			tt.mutate(&cfg)
			issues := Validate(cfg)
			if !hasIssue(t, issues, tt.sev, tt.path, tt.msg) {
				t.Fatalf("want %s at %s containing %q; got %+v", tt.sev, tt.path, tt.msg, issues)
			}
		})
	}
}

func TestIssue_Error(t *testing.T) {
	t.Parallel()

	got := Issue{Severity: SeverityError, Path: "batch_size", Message: "batch_size must be > 0"}.Error()
	if got != "error at batch_size: batch_size must be > 0" {
		t.Fatalf("Error() = %q", got)
	}
}
