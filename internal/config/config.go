// Package config defines the configuration of a target-snowflake run.
//
// The file is the usual Singer config JSON. It is decoded with a YAML
// decoder, so YAML files work as well:
//
//	{
//	  "account": "acme-xy12345",
//	  "username": "loader",
//	  "password": "...",
//	  "database": "RAW",
//	  "schema": "ANALYTICS",
//	  "warehouse": "LOAD_WH",
//	  "batch_size": 5000,
//	  "buffer_ttl": "60s",
//	  "flush_retry": {"attempts": 3, "delay": 1, "max_delay": "30s"}
//	}
//
// Connection fields left empty are taken from SF_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultJob              = "target-snowflake"
	DefaultBatchSize        = 5000
	DefaultTimestampColumn  = "__loaded_at"
	DefaultBufferTTL        = 60 * time.Second
	DefaultFlushParallelism = 4
	DefaultRetryAttempts    = 3
	DefaultRetryDelay       = time.Second
	DefaultRetryMaxDelay    = 30 * time.Second
	DefaultMetricsBackend   = "none"
)

// Config is the top-level configuration.
type Config struct {
	Account   string `yaml:"account"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	Role      string `yaml:"role"`
	Database  string `yaml:"database"`
	Schema    string `yaml:"schema"`
	Warehouse string `yaml:"warehouse"`

	// BatchSize is the buffered record count that triggers a flush.
	BatchSize int `yaml:"batch_size"`
	// TimestampColumn receives the capture time of every row.
	TimestampColumn string `yaml:"timestamp_column"`
	// BufferTTL flushes a stream whose buffer has not grown for this long.
	BufferTTL Duration `yaml:"buffer_ttl"`
	// FlushParallelism bounds concurrent flushes at a checkpoint.
	FlushParallelism int   `yaml:"flush_parallelism"`
	FlushRetry       Retry `yaml:"flush_retry"`
	// MaxOpenConns bounds the warehouse connection pool. Zero means one
	// connection per parallel flush plus one for DDL.
	MaxOpenConns int `yaml:"max_open_conns"`

	Job     string  `yaml:"job"`
	Metrics Metrics `yaml:"metrics"`
}

// Retry configures resubmission of failed flushes.
type Retry struct {
	Attempts int      `yaml:"attempts"`
	Delay    Duration `yaml:"delay"`
	MaxDelay Duration `yaml:"max_delay"`
}

// Metrics selects and configures the metrics backend.
type Metrics struct {
	Backend        string `yaml:"backend"` // none | prometheus | datadog
	PushgatewayURL string `yaml:"pushgateway_url"`
	DatadogAddr    string `yaml:"datadog_addr"`
}

// Duration decodes either a number of seconds or a Go duration string.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", n.Line)
	}
	var secs float64
	if err := n.Decode(&secs); err == nil {
		d.Duration = time.Duration(secs * float64(time.Second))
		return nil
	}
	v, err := time.ParseDuration(n.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	d.Duration = v
	return nil
}

// Load reads, decodes and completes the configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := Parse(data, os.LookupEnv)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data, fills empty connection fields from lookup and applies
// defaults.
func Parse(data []byte, lookup func(string) (string, bool)) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if lookup != nil {
		cfg.ApplyEnv(lookup)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyEnv fills empty connection fields from SF_* variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	for _, f := range []struct {
		env string
		dst *string
	}{
		{"SF_ACCOUNT", &c.Account},
		{"SF_USER", &c.Username},
		{"SF_PASSWORD", &c.Password},
		{"SF_ROLE", &c.Role},
		{"SF_DATABASE", &c.Database},
		{"SF_SCHEMA", &c.Schema},
		{"SF_WAREHOUSE", &c.Warehouse},
	} {
		if strings.TrimSpace(*f.dst) != "" {
			continue
		}
		if v, ok := lookup(f.env); ok {
			*f.dst = v
		}
	}
}

// ApplyDefaults fills every zero-valued tunable.
func (c *Config) ApplyDefaults() {
	if c.Job == "" {
		c.Job = DefaultJob
	}
	if c.BatchSize == 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.TimestampColumn == "" {
		c.TimestampColumn = DefaultTimestampColumn
	}
	if c.BufferTTL.Duration == 0 {
		c.BufferTTL.Duration = DefaultBufferTTL
	}
	if c.FlushParallelism == 0 {
		c.FlushParallelism = DefaultFlushParallelism
	}
	if c.MaxOpenConns == 0 && c.FlushParallelism > 0 {
		c.MaxOpenConns = c.FlushParallelism + 1
	}
	if c.FlushRetry.Attempts == 0 {
		c.FlushRetry.Attempts = DefaultRetryAttempts
	}
	if c.FlushRetry.Delay.Duration == 0 {
		c.FlushRetry.Delay.Duration = DefaultRetryDelay
	}
	if c.FlushRetry.MaxDelay.Duration == 0 {
		c.FlushRetry.MaxDelay.Duration = DefaultRetryMaxDelay
	}
	if c.Metrics.Backend == "" {
		c.Metrics.Backend = DefaultMetricsBackend
	}
}
