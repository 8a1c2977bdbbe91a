package config

import (
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/driveplane")
	t.Setenv("SOURCE_SUB_CATEGORY", "app-events")
	t.Setenv("STAGE_BUCKET", "staging-bucket")
	t.Setenv("TARGET_TABLE", "analytics.events")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.XTimeBack != 2*time.Hour {
		t.Errorf("got x_time_back %v, want 2h", cfg.XTimeBack)
	}
	if cfg.Granularity != 30*time.Minute {
		t.Errorf("got granularity %v, want 30m", cfg.Granularity)
	}
	if cfg.GranularityOffset != 0 {
		t.Errorf("got granularity offset %v, want 0", cfg.GranularityOffset)
	}
	if cfg.SettleInterval != 2*time.Minute {
		t.Errorf("got settle interval %v, want 2m", cfg.SettleInterval)
	}
	if cfg.RetryMaxAttempts != 3 || cfg.RetryBaseDelay != 4*time.Second || cfg.RetryMultiplier != 2 {
		t.Errorf("unexpected retry defaults: %d %v %v",
			cfg.RetryMaxAttempts, cfg.RetryBaseDelay, cfg.RetryMultiplier)
	}
	if cfg.StaleThreshold != 2*time.Hour {
		t.Errorf("got stale threshold %v, want 2h", cfg.StaleThreshold)
	}
	if cfg.PipelinePriority != 1.1 {
		t.Errorf("got priority %v, want 1.1", cfg.PipelinePriority)
	}
	if cfg.Timezone != "UTC" {
		t.Errorf("got timezone %q, want UTC", cfg.Timezone)
	}
	if cfg.StagePrefix != "pipelines/app-events" {
		t.Errorf("got stage prefix %q", cfg.StagePrefix)
	}
	if cfg.Schedule != "0 * * * *" {
		t.Errorf("got schedule %q, want hourly", cfg.Schedule)
	}
}

func TestLoad_CompoundDurations(t *testing.T) {
	setRequired(t)
	t.Setenv("X_TIME_BACK", "1d2h")
	t.Setenv("GRANULARITY", "1h30m")
	t.Setenv("SWEEPER_STALE_THRESHOLD", "4h")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.XTimeBack != 26*time.Hour {
		t.Errorf("got x_time_back %v, want 26h", cfg.XTimeBack)
	}
	if cfg.Granularity != 90*time.Minute {
		t.Errorf("got granularity %v, want 1h30m", cfg.Granularity)
	}
	if cfg.StaleThreshold != 4*time.Hour {
		t.Errorf("got stale threshold %v, want 4h", cfg.StaleThreshold)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if _, err := Load(); err == nil {
		t.Error("expected error for missing DATABASE_URL")
	}

	t.Setenv("DATABASE_URL", "postgres://localhost/driveplane")
	t.Setenv("SOURCE_SUB_CATEGORY", "")
	if _, err := Load(); err == nil {
		t.Error("expected error for missing SOURCE_SUB_CATEGORY")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	setRequired(t)

	t.Setenv("GRANULARITY", "abc")
	if _, err := Load(); err == nil {
		t.Error("expected error for malformed GRANULARITY")
	}
	t.Setenv("GRANULARITY", "30m")

	t.Setenv("TIMEZONE", "Mars/Olympus")
	if _, err := Load(); err == nil {
		t.Error("expected error for unknown TIMEZONE")
	}
	t.Setenv("TIMEZONE", "America/Chicago")

	t.Setenv("PORT", "not-a-port")
	if _, err := Load(); err == nil {
		t.Error("expected error for malformed PORT")
	}
}

func TestLocation(t *testing.T) {
	setRequired(t)
	t.Setenv("TIMEZONE", "America/Chicago")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Location().String() != "America/Chicago" {
		t.Errorf("got location %v", cfg.Location())
	}
}
