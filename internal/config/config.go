// Package config handles environment variable loading for the orchestrator:
// connection strings, the window parameters, phase tuning and the HTTP port.
// Compound durations ("1d2h30m") go through the timeparse package.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"driveplane/internal/timeparse"
)

// Config holds all configuration values for the application.
type Config struct {
	// Record store
	DatabaseURL string

	// HTTP server port for the inspection API
	HTTPPort int

	// InternalSecret guards the mutating internal endpoints.
	InternalSecret string

	// Window parameters
	Timezone          string
	XTimeBack         time.Duration
	Granularity       time.Duration
	GranularityOffset time.Duration

	// Identity of the (source, stage, target) triple
	SourceName        string
	SourceCategory    string
	SourceSubCategory string
	StageName         string
	StageBucket       string
	StagePrefix       string
	TargetName        string
	TargetTable       string

	PipelinePriority float64

	// Source cluster
	ESAddresses      []string
	ESUsername       string
	ESPassword       string
	ESTimestampField string
	ESRateLimit      float64

	// Warehouse
	WarehouseURL             string
	WarehouseTimestampColumn string
	WarehouseLoadFunction    string

	// Audit reconciliation budget
	AuditMaxWait      time.Duration
	AuditInitialDelay time.Duration
	AuditMaxDelay     time.Duration
	AuditMultiplier   float64

	SettleInterval time.Duration

	// Adapter retry policy
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryMultiplier  float64

	StaleThreshold time.Duration

	// Scheduling
	Schedule       string
	LockOwner      string
	HostRetries    int
	HostRetryDelay time.Duration
	DrainPending   bool

	// Transfer
	TransferBatchSize int
	TransferTimeout   time.Duration

	// Observability
	OTELEndpoint string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.HTTPPort, err = intFromEnv("PORT", 8161); err != nil {
		return nil, err
	}
	cfg.InternalSecret = os.Getenv("INTERNAL_SECRET")

	cfg.Timezone = envOr("TIMEZONE", "UTC")
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}

	if cfg.XTimeBack, err = compoundFromEnv("X_TIME_BACK", "2h"); err != nil {
		return nil, err
	}
	if cfg.Granularity, err = compoundFromEnv("GRANULARITY", "30m"); err != nil {
		return nil, err
	}
	if cfg.GranularityOffset, err = compoundFromEnv("GRANULARITY_OFFSET", "0s"); err != nil {
		return nil, err
	}

	cfg.SourceName = envOr("SOURCE_NAME", "elasticsearch")
	cfg.SourceCategory = os.Getenv("SOURCE_CATEGORY")
	cfg.SourceSubCategory = os.Getenv("SOURCE_SUB_CATEGORY")
	if cfg.SourceSubCategory == "" {
		return nil, fmt.Errorf("SOURCE_SUB_CATEGORY is required (the index pattern to move)")
	}

	cfg.StageName = envOr("STAGE_NAME", "gcs")
	cfg.StageBucket = os.Getenv("STAGE_BUCKET")
	if cfg.StageBucket == "" {
		return nil, fmt.Errorf("STAGE_BUCKET is required")
	}
	cfg.StagePrefix = envOr("STAGE_PREFIX", "pipelines/"+cfg.SourceSubCategory)

	cfg.TargetName = envOr("TARGET_NAME", "warehouse")
	cfg.TargetTable = os.Getenv("TARGET_TABLE")
	if cfg.TargetTable == "" {
		return nil, fmt.Errorf("TARGET_TABLE is required")
	}

	if cfg.PipelinePriority, err = floatFromEnv("PIPELINE_PRIORITY", 1.1); err != nil {
		return nil, err
	}

	if addrs := os.Getenv("ES_ADDRESSES"); addrs != "" {
		cfg.ESAddresses = strings.Split(addrs, ",")
	}
	cfg.ESUsername = os.Getenv("ES_USERNAME")
	cfg.ESPassword = os.Getenv("ES_PASSWORD")
	cfg.ESTimestampField = envOr("ES_TIMESTAMP_FIELD", "@timestamp")
	if cfg.ESRateLimit, err = floatFromEnv("ES_RATE_LIMIT", 0); err != nil {
		return nil, err
	}

	cfg.WarehouseURL = os.Getenv("WAREHOUSE_URL")
	cfg.WarehouseTimestampColumn = envOr("WAREHOUSE_TIMESTAMP_COLUMN", "event_time")
	cfg.WarehouseLoadFunction = envOr("WAREHOUSE_LOAD_FUNCTION", "driveplane_load")

	if cfg.AuditMaxWait, err = compoundFromEnv("AUDIT_MAX_WAIT", "5m"); err != nil {
		return nil, err
	}
	if cfg.AuditInitialDelay, err = compoundFromEnv("AUDIT_INITIAL_DELAY", "15s"); err != nil {
		return nil, err
	}
	if cfg.AuditMaxDelay, err = compoundFromEnv("AUDIT_MAX_DELAY", "1m"); err != nil {
		return nil, err
	}
	if cfg.AuditMultiplier, err = floatFromEnv("AUDIT_MULTIPLIER", 2); err != nil {
		return nil, err
	}

	if cfg.SettleInterval, err = compoundFromEnv("SETTLE_INTERVAL", "2m"); err != nil {
		return nil, err
	}

	if cfg.RetryMaxAttempts, err = intFromEnv("RETRY_MAX_ATTEMPTS", 3); err != nil {
		return nil, err
	}
	if cfg.RetryBaseDelay, err = compoundFromEnv("RETRY_BASE_DELAY", "4s"); err != nil {
		return nil, err
	}
	if cfg.RetryMultiplier, err = floatFromEnv("RETRY_MULTIPLIER", 2); err != nil {
		return nil, err
	}

	if cfg.StaleThreshold, err = compoundFromEnv("SWEEPER_STALE_THRESHOLD", "2h"); err != nil {
		return nil, err
	}

	cfg.Schedule = envOr("SCHEDULE", "0 * * * *")
	cfg.LockOwner = envOr("LOCK_OWNER", "scheduled")
	if cfg.HostRetries, err = intFromEnv("HOST_RETRIES", 3); err != nil {
		return nil, err
	}
	if cfg.HostRetryDelay, err = compoundFromEnv("HOST_RETRY_DELAY", "5m"); err != nil {
		return nil, err
	}
	cfg.DrainPending = envOr("DRAIN_PENDING", "false") == "true"

	if cfg.TransferBatchSize, err = intFromEnv("TRANSFER_BATCH_SIZE", 1000); err != nil {
		return nil, err
	}
	if cfg.TransferTimeout, err = compoundFromEnv("TRANSFER_TIMEOUT", "4h"); err != nil {
		return nil, err
	}

	cfg.OTELEndpoint = envOr("OTEL_ENDPOINT", "localhost:4317")

	return cfg, nil
}

// Location resolves the configured timezone. Load already validated it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intFromEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func compoundFromEnv(key, fallback string) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		v = fallback
	}
	d, err := timeparse.Parse(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
