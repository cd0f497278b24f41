// Package config loads devstatd's configuration from config.toml plus
// environment-variable overrides. Structurally this follows the teacher's
// internal/config.Load — resolve a data dir, ensure a commented default
// file exists, parse it, then let DEVSTATD_* env vars win — but parses the
// file with github.com/BurntSushi/toml instead of hand-rolling a
// bufio.Scanner key=value reader, since the teacher's own go.mod already
// carries that dependency unused.
package config

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// AlertThresholds mirrors spec.md §6 defaults; overridable per field.
type AlertThresholds struct {
	CPUPercent         float64       `toml:"alert_cpu_percent"`
	RAMPercent         float64       `toml:"alert_ram_percent"`
	CPUDuration        time.Duration `toml:"-"`
	RAMDuration        time.Duration `toml:"-"`
	NetOfflineDuration time.Duration `toml:"-"`
	FlapWindow         time.Duration `toml:"-"`
	FlapThreshold      int           `toml:"flap_threshold"`
	CooldownDuration   time.Duration `toml:"-"`
}

// Retention mirrors spec.md §6 defaults for raw/1m/15m row lifetime.
type Retention struct {
	RawHours       int `toml:"retention_raw_hours"`
	OneMinDays     int `toml:"retention_1m_days"`
	FifteenMinDays int `toml:"retention_15m_days"`
}

// Config is devstatd's fully resolved runtime configuration.
type Config struct {
	DataDir            string
	LogLevel           string
	SnapshotInterval   time.Duration
	DBLockTimeout      time.Duration
	NetworkPingHost    string
	NetworkPingTimeout time.Duration
	AlertThresholds    AlertThresholds
	Retention          Retention
}

// tomlFile is the shape of config.toml, decoded via BurntSushi/toml.
type tomlFile struct {
	LogLevel               string  `toml:"log_level"`
	SnapshotIntervalSec    float64 `toml:"snapshot_interval_seconds"`
	DBLockTimeoutMS        int     `toml:"db_lock_timeout_ms"`
	NetworkPingHost        string  `toml:"network_ping_host"`
	NetworkPingTimeoutMS   int     `toml:"network_ping_timeout_ms"`
	AlertCPUPercent        float64 `toml:"alert_cpu_percent"`
	AlertRAMPercent        float64 `toml:"alert_ram_percent"`
	AlertCPUDurationSec    float64 `toml:"alert_cpu_duration_seconds"`
	AlertRAMDurationSec    float64 `toml:"alert_ram_duration_seconds"`
	NetOfflineDurationSec  float64 `toml:"network_offline_duration_seconds"`
	FlapWindowSec          float64 `toml:"flap_window_seconds"`
	FlapThreshold          int     `toml:"flap_threshold"`
	AlertCooldownSec       float64 `toml:"alert_cooldown_seconds"`
	RetentionRawHours      int     `toml:"retention_raw_hours"`
	Retention1mDays        int     `toml:"retention_1m_days"`
	Retention15mDays       int     `toml:"retention_15m_days"`
}

const defaultConfigContent = `# devstatd configuration
# All values shown are defaults. Uncomment and edit to customize.

# Log level: debug, info, warn, error.
# Environment variable: DEVSTATD_LOG_LEVEL
# log_level = "info"

# Seconds between scheduler ticks.
# Environment variable: DEVSTATD_SNAPSHOT_INTERVAL_SECONDS
# snapshot_interval_seconds = 1

# Embedded store lock-wait timeout, milliseconds. This value is loaded
# but not applied: the store always opens with a 10000 ms busy timeout.
# Environment variable: DEVSTATD_DB_LOCK_TIMEOUT_MS
# db_lock_timeout_ms = 10000

# Host pinged for network-quality classification.
# Environment variable: DEVSTATD_NETWORK_PING_HOST
# network_ping_host = "1.1.1.1"

# Ping timeout, milliseconds.
# Environment variable: DEVSTATD_NETWORK_PING_TIMEOUT_MS
# network_ping_timeout_ms = 800

# Alert thresholds and timing.
# alert_cpu_percent = 85
# alert_ram_percent = 90
# alert_cpu_duration_seconds = 30
# alert_ram_duration_seconds = 30
# network_offline_duration_seconds = 10
# flap_window_seconds = 120
# flap_threshold = 6
# alert_cooldown_seconds = 60

# Retention windows. These values are loaded but not applied: the
# retention service always keeps raw rows 24h, 1m rows 7d, 15m rows 30d.
# retention_raw_hours = 24
# retention_1m_days = 7
# retention_15m_days = 30
`

// Load resolves the data directory, ensures a default config.toml exists,
// parses it, and applies DEVSTATD_* environment overrides.
func Load() Config {
	cfg := Config{
		LogLevel:           "info",
		SnapshotInterval:   time.Second,
		DBLockTimeout:      10 * time.Second,
		NetworkPingHost:    "1.1.1.1",
		NetworkPingTimeout: 800 * time.Millisecond,
		AlertThresholds: AlertThresholds{
			CPUPercent:         85,
			RAMPercent:         90,
			CPUDuration:        30 * time.Second,
			RAMDuration:        30 * time.Second,
			NetOfflineDuration: 10 * time.Second,
			FlapWindow:         120 * time.Second,
			FlapThreshold:      6,
			CooldownDuration:   60 * time.Second,
		},
		Retention: Retention{RawHours: 24, OneMinDays: 7, FifteenMinDays: 30},
	}

	cfg.DataDir = resolveDataDir()
	configPath := filepath.Join(cfg.DataDir, "config.toml")
	ensureDefaultConfig(configPath)

	var file tomlFile
	if _, err := toml.DecodeFile(configPath, &file); err == nil {
		applyFile(&cfg, file)
	}
	applyEnv(&cfg)

	return cfg
}

func applyFile(cfg *Config, file tomlFile) {
	if file.LogLevel != "" {
		cfg.LogLevel = file.LogLevel
	}
	if file.SnapshotIntervalSec > 0 {
		cfg.SnapshotInterval = durationFromSeconds(file.SnapshotIntervalSec)
	}
	if file.DBLockTimeoutMS > 0 {
		cfg.DBLockTimeout = time.Duration(file.DBLockTimeoutMS) * time.Millisecond
	}
	if file.NetworkPingHost != "" {
		cfg.NetworkPingHost = file.NetworkPingHost
	}
	if file.NetworkPingTimeoutMS > 0 {
		cfg.NetworkPingTimeout = time.Duration(file.NetworkPingTimeoutMS) * time.Millisecond
	}
	if file.AlertCPUPercent > 0 {
		cfg.AlertThresholds.CPUPercent = file.AlertCPUPercent
	}
	if file.AlertRAMPercent > 0 {
		cfg.AlertThresholds.RAMPercent = file.AlertRAMPercent
	}
	if file.AlertCPUDurationSec > 0 {
		cfg.AlertThresholds.CPUDuration = durationFromSeconds(file.AlertCPUDurationSec)
	}
	if file.AlertRAMDurationSec > 0 {
		cfg.AlertThresholds.RAMDuration = durationFromSeconds(file.AlertRAMDurationSec)
	}
	if file.NetOfflineDurationSec > 0 {
		cfg.AlertThresholds.NetOfflineDuration = durationFromSeconds(file.NetOfflineDurationSec)
	}
	if file.FlapWindowSec > 0 {
		cfg.AlertThresholds.FlapWindow = durationFromSeconds(file.FlapWindowSec)
	}
	if file.FlapThreshold > 0 {
		cfg.AlertThresholds.FlapThreshold = file.FlapThreshold
	}
	if file.AlertCooldownSec > 0 {
		cfg.AlertThresholds.CooldownDuration = durationFromSeconds(file.AlertCooldownSec)
	}
	if file.RetentionRawHours > 0 {
		cfg.Retention.RawHours = file.RetentionRawHours
	}
	if file.Retention1mDays > 0 {
		cfg.Retention.OneMinDays = file.Retention1mDays
	}
	if file.Retention15mDays > 0 {
		cfg.Retention.FifteenMinDays = file.Retention15mDays
	}
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("DEVSTATD_LOG_LEVEL")); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v, ok := envPositiveFloat("DEVSTATD_SNAPSHOT_INTERVAL_SECONDS"); ok {
		cfg.SnapshotInterval = durationFromSeconds(v)
	}
	if v, ok := envPositiveInt("DEVSTATD_DB_LOCK_TIMEOUT_MS"); ok {
		cfg.DBLockTimeout = time.Duration(v) * time.Millisecond
	}
	if v := strings.TrimSpace(os.Getenv("DEVSTATD_NETWORK_PING_HOST")); v != "" {
		cfg.NetworkPingHost = v
	}
	if v, ok := envPositiveInt("DEVSTATD_NETWORK_PING_TIMEOUT_MS"); ok {
		cfg.NetworkPingTimeout = time.Duration(v) * time.Millisecond
	}
	if v, ok := envPositiveFloat("DEVSTATD_ALERT_CPU_PERCENT"); ok {
		cfg.AlertThresholds.CPUPercent = v
	}
	if v, ok := envPositiveFloat("DEVSTATD_ALERT_RAM_PERCENT"); ok {
		cfg.AlertThresholds.RAMPercent = v
	}
	if v, ok := envPositiveInt("DEVSTATD_FLAP_THRESHOLD"); ok {
		cfg.AlertThresholds.FlapThreshold = v
	}
}

func envPositiveFloat(key string) (float64, bool) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

func envPositiveInt(key string) (int, bool) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

func durationFromSeconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func resolveDataDir() string {
	if v := strings.TrimSpace(os.Getenv("DEVSTATD_DATA_DIR")); v != "" {
		return v
	}
	if home, err := resolveHomeDir(); err == nil {
		return filepath.Join(home, ".devstatd")
	}
	return filepath.Join(os.TempDir(), "devstatd")
}

func ensureDefaultConfig(configPath string) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		_ = os.MkdirAll(filepath.Dir(configPath), 0o700)
		_ = os.WriteFile(configPath, []byte(defaultConfigContent), 0o600)
	}
}

func resolveHomeDir() (string, error) {
	if home := strings.TrimSpace(os.Getenv("HOME")); home != "" {
		return home, nil
	}
	if home, err := os.UserHomeDir(); err == nil && strings.TrimSpace(home) != "" {
		return strings.TrimSpace(home), nil
	}
	if current, err := user.Current(); err == nil && current != nil {
		if home := strings.TrimSpace(current.HomeDir); home != "" {
			return home, nil
		}
	}
	if os.Geteuid() == 0 {
		if runtime.GOOS == "darwin" {
			return "/var/root", nil
		}
		return "/root", nil
	}
	return "", os.ErrNotExist
}
