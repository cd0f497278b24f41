package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DEVSTATD_DATA_DIR", dir)
	t.Setenv("DEVSTATD_LOG_LEVEL", "")
	t.Setenv("DEVSTATD_SNAPSHOT_INTERVAL_SECONDS", "")
	t.Setenv("DEVSTATD_DB_LOCK_TIMEOUT_MS", "")
	t.Setenv("DEVSTATD_NETWORK_PING_HOST", "")
	t.Setenv("DEVSTATD_NETWORK_PING_TIMEOUT_MS", "")
	t.Setenv("DEVSTATD_ALERT_CPU_PERCENT", "")
	t.Setenv("DEVSTATD_ALERT_RAM_PERCENT", "")
	t.Setenv("DEVSTATD_FLAP_THRESHOLD", "")

	cfg := Load()

	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if cfg.SnapshotInterval != time.Second {
		t.Errorf("SnapshotInterval = %v, want 1s", cfg.SnapshotInterval)
	}
	if cfg.DBLockTimeout != 10*time.Second {
		t.Errorf("DBLockTimeout = %v, want 10s", cfg.DBLockTimeout)
	}
	if cfg.AlertThresholds.CPUPercent != 85 {
		t.Errorf("CPUPercent = %v, want 85", cfg.AlertThresholds.CPUPercent)
	}
	if cfg.AlertThresholds.FlapThreshold != 6 {
		t.Errorf("FlapThreshold = %v, want 6", cfg.AlertThresholds.FlapThreshold)
	}
	if _, err := os.Stat(filepath.Join(dir, "config.toml")); err != nil {
		t.Errorf("expected default config.toml to be written: %v", err)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DEVSTATD_DATA_DIR", dir)
	t.Setenv("DEVSTATD_ALERT_CPU_PERCENT", "77")
	t.Setenv("DEVSTATD_FLAP_THRESHOLD", "3")

	cfg := Load()

	if cfg.AlertThresholds.CPUPercent != 77 {
		t.Errorf("CPUPercent = %v, want 77", cfg.AlertThresholds.CPUPercent)
	}
	if cfg.AlertThresholds.FlapThreshold != 3 {
		t.Errorf("FlapThreshold = %v, want 3", cfg.AlertThresholds.FlapThreshold)
	}
}
