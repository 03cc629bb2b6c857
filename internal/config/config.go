// Package config loads the gotpd daemon configuration using koanf/v2.
//
// Supports YAML files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete gotpd configuration.
type Config struct {
	CAN     CANConfig     `koanf:"can"`
	TP      TPConfig      `koanf:"tp"`
	Tick    TickConfig    `koanf:"tick"`
	Log     LogConfig     `koanf:"log"`
	Metrics MetricsConfig `koanf:"metrics"`
	Control ControlConfig `koanf:"control"`
}

// CANConfig holds the SocketCAN bus binding.
type CANConfig struct {
	// Interface is the Linux network interface name (e.g., "can0", "vcan0").
	Interface string `koanf:"interface"`
	// SourceAddress is this node's J1939 source address, 0-253 (254 and 255
	// are reserved for null and global/broadcast addressing).
	SourceAddress uint8 `koanf:"source_address"`
}

// TPConfig holds the Transport Protocol engine's tunable parameters.
type TPConfig struct {
	// MaxSessions bounds the Session Table.
	MaxSessions int `koanf:"max_sessions"`
	// MaxPerCTS is the packets-per-CTS value requested and granted
	// (Open Question 1).
	MaxPerCTS int `koanf:"max_per_cts"`
	// TbamMs is the BAM sender's inter-packet spacing, 50-200ms.
	TbamMs int `koanf:"tbam_ms"`
	// ThMs is the CM-sender's inter-packet spacing within a CTS window.
	ThMs int `koanf:"th_ms"`
}

// TickConfig holds the Timer Service's external clock-drive interval.
type TickConfig struct {
	// IntervalMs is how often Engine.Poll is invoked, at least 10ms (§4.3).
	IntervalMs int `koanf:"interval_ms"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// ControlConfig holds the administrative HTTP+JSON API endpoint.
type ControlConfig struct {
	// Addr is the HTTP listen address for the control API (e.g., "127.0.0.1:8527").
	Addr string `koanf:"addr"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults, matching
// the engine's own internal defaults (tp.NewEngine) so a zero-value YAML
// file still produces a conformant node.
func DefaultConfig() *Config {
	return &Config{
		CAN: CANConfig{
			Interface:     "can0",
			SourceAddress: 0,
		},
		TP: TPConfig{
			MaxSessions: 8,
			MaxPerCTS:   4,
			TbamMs:      50,
			ThMs:        50,
		},
		Tick: TickConfig{
			IntervalMs: 10,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Control: ControlConfig{
			Addr: "127.0.0.1:8527",
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for gotpd configuration.
// Variables are named GOTPD_<section>_<key>, e.g., GOTPD_CAN_INTERFACE.
const envPrefix = "GOTPD_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (GOTPD_ prefix), and merges on top of DefaultConfig().
// Missing fields inherit defaults.
//
// Environment variable mapping:
//
//	GOTPD_CAN_INTERFACE      -> can.interface
//	GOTPD_CAN_SOURCE_ADDRESS -> can.source_address
//	GOTPD_TP_MAX_SESSIONS    -> tp.max_sessions
//	GOTPD_LOG_LEVEL          -> log.level
//	GOTPD_METRICS_ADDR       -> metrics.addr
//	GOTPD_CONTROL_ADDR       -> control.addr
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms GOTPD_CAN_INTERFACE -> can.interface.
// Strips the GOTPD_ prefix, lowercases, and replaces the first _ per
// section with a dot while leaving remaining underscores intact, matching
// the nested key names above (e.g. source_address, max_sessions).
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	parts := strings.SplitN(s, "_", 2)
	if len(parts) != 2 {
		return s
	}
	return parts[0] + "." + parts[1]
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"can.interface":      defaults.CAN.Interface,
		"can.source_address": defaults.CAN.SourceAddress,
		"tp.max_sessions":    defaults.TP.MaxSessions,
		"tp.max_per_cts":     defaults.TP.MaxPerCTS,
		"tp.tbam_ms":         defaults.TP.TbamMs,
		"tp.th_ms":           defaults.TP.ThMs,
		"tick.interval_ms":   defaults.Tick.IntervalMs,
		"log.level":          defaults.Log.Level,
		"log.format":         defaults.Log.Format,
		"metrics.addr":       defaults.Metrics.Addr,
		"metrics.path":       defaults.Metrics.Path,
		"control.addr":       defaults.Control.Addr,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrInvalidSourceAddress indicates can.source_address is 254 or 255,
	// which J1939 reserves for null and global addressing.
	ErrInvalidSourceAddress = errors.New("can.source_address must be 0-253")

	// ErrInvalidMaxSessions indicates tp.max_sessions is not positive.
	ErrInvalidMaxSessions = errors.New("tp.max_sessions must be >= 1")

	// ErrInvalidMaxPerCTS indicates tp.max_per_cts is not positive.
	ErrInvalidMaxPerCTS = errors.New("tp.max_per_cts must be >= 1")

	// ErrInvalidTbam indicates tp.tbam_ms falls outside [50,200].
	ErrInvalidTbam = errors.New("tp.tbam_ms must be between 50 and 200")

	// ErrInvalidTickInterval indicates tick.interval_ms is below the
	// Timer Service's minimum granularity.
	ErrInvalidTickInterval = errors.New("tick.interval_ms must be >= 10")

	// ErrEmptyCANInterface indicates can.interface is empty.
	ErrEmptyCANInterface = errors.New("can.interface must not be empty")
)

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.CAN.Interface == "" {
		return ErrEmptyCANInterface
	}
	if cfg.CAN.SourceAddress > 253 {
		return ErrInvalidSourceAddress
	}
	if cfg.TP.MaxSessions < 1 {
		return ErrInvalidMaxSessions
	}
	if cfg.TP.MaxPerCTS < 1 {
		return ErrInvalidMaxPerCTS
	}
	if cfg.TP.TbamMs < 50 || cfg.TP.TbamMs > 200 {
		return ErrInvalidTbam
	}
	if cfg.Tick.IntervalMs < 10 {
		return ErrInvalidTickInterval
	}
	return nil
}

// -------------------------------------------------------------------------
// Log Level
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// TbamDuration returns TP.TbamMs as a time.Duration.
func (c TPConfig) TbamDuration() time.Duration {
	return time.Duration(c.TbamMs) * time.Millisecond
}

// ThDuration returns TP.ThMs as a time.Duration.
func (c TPConfig) ThDuration() time.Duration {
	return time.Duration(c.ThMs) * time.Millisecond
}

// IntervalDuration returns Tick.IntervalMs as a time.Duration.
func (c TickConfig) IntervalDuration() time.Duration {
	return time.Duration(c.IntervalMs) * time.Millisecond
}
