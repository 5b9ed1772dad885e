package main

import (
	"context"
	"flag"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"target-snowflake/internal/checkpoint"
	"target-snowflake/internal/config"
	"target-snowflake/internal/metrics"
	"target-snowflake/internal/metrics/datadog"
	"target-snowflake/internal/metrics/prompush"
	"target-snowflake/internal/singer"
	"target-snowflake/internal/storage"
	"target-snowflake/internal/stream"
)

// Exit codes.
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

const defaultDatadogAddr = "127.0.0.1:8125"

// openWarehouse is replaced in tests.
var openWarehouse = storage.New

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("target-snowflake", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		cfgPath        = fs.String("config", "", "Singer config JSON path")
		validate       = fs.Bool("validate", false, "validate the configuration and exit")
		verbose        = fs.Bool("v", false, "enable verbose logs")
		metricsBackend = fs.String("metrics-backend", "", "metrics backend (none, prometheus, datadog); overrides the config")
		pushGatewayURL = fs.String("pushgateway-url", "", "Pushgateway base URL; overrides the config")
	)
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *cfgPath == "" {
		fs.Usage()
		return exitUsage
	}

	log := newLogger(*verbose, stderr)
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Error("load config", zap.Error(err))
		return exitError
	}
	if *metricsBackend != "" {
		cfg.Metrics.Backend = *metricsBackend
	}
	if *pushGatewayURL != "" {
		cfg.Metrics.PushgatewayURL = *pushGatewayURL
	}

	issues := config.Validate(*cfg)
	for _, iss := range issues {
		lvl := zap.WarnLevel
		if iss.Severity == config.SeverityError {
			lvl = zap.ErrorLevel
		}
		log.Log(lvl, iss.Message, zap.String("path", iss.Path))
	}
	if config.HasErrors(issues) {
		log.Error("configuration is invalid", zap.String("config", *cfgPath))
		return exitError
	}
	if *validate {
		log.Info("configuration is valid", zap.String("config", *cfgPath))
		return exitOK
	}

	flushMetrics := setupMetrics(cfg, log)
	defer flushMetrics()

	log = log.With(zap.String("run_id", uuid.NewString()))
	wh, err := openWarehouse(ctx, storage.Config{
		Kind:         "snowflake",
		Account:      cfg.Account,
		User:         cfg.Username,
		Password:     cfg.Password,
		Role:         cfg.Role,
		Database:     cfg.Database,
		Schema:       cfg.Schema,
		Warehouse:    cfg.Warehouse,
		MaxOpenConns: cfg.MaxOpenConns,
		Logger:       log,
	})
	if err != nil {
		log.Error("open warehouse", zap.Error(err))
		return exitError
	}
	defer wh.Close()

	coord := stream.New(wh, checkpoint.NewWriterSink(stdout), stream.Options{
		Schema:           cfg.Schema,
		TimestampColumn:  cfg.TimestampColumn,
		BatchSize:        cfg.BatchSize,
		BufferTTL:        cfg.BufferTTL.Duration,
		FlushParallelism: cfg.FlushParallelism,
		Retry: stream.Retry{
			Attempts: cfg.FlushRetry.Attempts,
			Delay:    cfg.FlushRetry.Delay.Duration,
			MaxDelay: cfg.FlushRetry.MaxDelay.Duration,
		},
		Job: cfg.Job,
	}, log)

	start := time.Now()
	stats, err := stream.Run(ctx, singer.NewReader(stdin), coord)
	if err != nil {
		log.Error("run failed", zap.Error(err), zap.Int("messages", stats.Messages))
		return exitError
	}
	log.Info("run complete",
		zap.Int("messages", stats.Messages),
		zap.Int("records", stats.Records),
		zap.Int("states", stats.States),
		zap.Duration("duration", time.Since(start).Truncate(time.Millisecond)))
	return exitOK
}

// newLogger logs JSON to w, or human-readable debug output when verbose.
// stdout is reserved for STATE lines.
func newLogger(verbose bool, w io.Writer) *zap.Logger {
	var (
		enc   zapcore.Encoder
		level = zap.InfoLevel
	)
	if verbose {
		enc = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
		level = zap.DebugLevel
	} else {
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		enc = zapcore.NewJSONEncoder(encCfg)
	}
	return zap.New(zapcore.NewCore(enc, zapcore.AddSync(w), level)).Named("target-snowflake")
}

// setupMetrics installs the configured backend and returns the function that
// pushes its final values. A backend that fails to initialize is logged and
// replaced by the no-op default.
func setupMetrics(cfg *config.Config, log *zap.Logger) func() {
	var (
		b   metrics.Backend
		err error
	)
	switch cfg.Metrics.Backend {
	case "prometheus":
		b, err = prompush.NewBackend(cfg.Job, cfg.Metrics.PushgatewayURL)
	case "datadog":
		addr := cfg.Metrics.DatadogAddr
		if addr == "" {
			addr = defaultDatadogAddr
		}
		b, err = datadog.NewBackend(datadog.Config{
			Addr:       addr,
			Namespace:  "singer.",
			GlobalTags: []string{"job:" + cfg.Job},
		})
	default:
		log.Debug("metrics disabled", zap.String("backend", cfg.Metrics.Backend))
		return func() {}
	}
	if err != nil {
		log.Warn("metrics backend unavailable; using nop", zap.String("backend", cfg.Metrics.Backend), zap.Error(err))
		return func() {}
	}

	metrics.SetBackend(b)
	log.Info("metrics enabled", zap.String("backend", cfg.Metrics.Backend), zap.String("job", cfg.Job))
	return func() {
		if err := metrics.Flush(); err != nil {
			log.Warn("metrics flush failed", zap.Error(err))
		}
	}
}
