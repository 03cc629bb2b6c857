package config_test

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/dantte-lp/gotpd/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()

	if cfg.CAN.Interface != "can0" {
		t.Errorf("CAN.Interface = %q, want %q", cfg.CAN.Interface, "can0")
	}

	if cfg.TP.MaxSessions != 8 {
		t.Errorf("TP.MaxSessions = %d, want %d", cfg.TP.MaxSessions, 8)
	}

	if cfg.TP.MaxPerCTS != 4 {
		t.Errorf("TP.MaxPerCTS = %d, want %d", cfg.TP.MaxPerCTS, 4)
	}

	if cfg.Tick.IntervalMs != 10 {
		t.Errorf("Tick.IntervalMs = %d, want %d", cfg.Tick.IntervalMs, 10)
	}

	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}

	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "json")
	}

	if cfg.Metrics.Addr != ":9100" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9100")
	}

	if cfg.Control.Addr != "127.0.0.1:8527" {
		t.Errorf("Control.Addr = %q, want %q", cfg.Control.Addr, "127.0.0.1:8527")
	}

	if err := config.Validate(cfg); err != nil {
		t.Errorf("DefaultConfig() failed validation: %v", err)
	}
}

func TestLoadFromYAML(t *testing.T) {
	t.Parallel()

	yamlContent := `
can:
  interface: "vcan0"
  source_address: 42
tp:
  max_sessions: 16
  max_per_cts: 8
metrics:
  addr: ":9200"
  path: "/custom-metrics"
log:
  level: "debug"
  format: "text"
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.CAN.Interface != "vcan0" {
		t.Errorf("CAN.Interface = %q, want %q", cfg.CAN.Interface, "vcan0")
	}

	if cfg.CAN.SourceAddress != 42 {
		t.Errorf("CAN.SourceAddress = %d, want %d", cfg.CAN.SourceAddress, 42)
	}

	if cfg.TP.MaxSessions != 16 {
		t.Errorf("TP.MaxSessions = %d, want %d", cfg.TP.MaxSessions, 16)
	}

	if cfg.TP.MaxPerCTS != 8 {
		t.Errorf("TP.MaxPerCTS = %d, want %d", cfg.TP.MaxPerCTS, 8)
	}

	if cfg.Metrics.Addr != ":9200" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9200")
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}

	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "text")
	}
}

func TestLoadMergesDefaults(t *testing.T) {
	t.Parallel()

	// Partial YAML: only override can.interface and log.level.
	// Everything else should inherit from defaults.
	yamlContent := `
can:
  interface: "vcan1"
log:
  level: "warn"
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.CAN.Interface != "vcan1" {
		t.Errorf("CAN.Interface = %q, want %q", cfg.CAN.Interface, "vcan1")
	}

	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "warn")
	}

	if cfg.TP.MaxSessions != 8 {
		t.Errorf("TP.MaxSessions = %d, want default %d", cfg.TP.MaxSessions, 8)
	}

	if cfg.Metrics.Addr != ":9100" {
		t.Errorf("Metrics.Addr = %q, want default %q", cfg.Metrics.Addr, ":9100")
	}

	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want default %q", cfg.Log.Format, "json")
	}
}

func TestValidateErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		modify  func(*config.Config)
		wantErr error
	}{
		{
			name: "empty can interface",
			modify: func(cfg *config.Config) {
				cfg.CAN.Interface = ""
			},
			wantErr: config.ErrEmptyCANInterface,
		},
		{
			name: "source address 254",
			modify: func(cfg *config.Config) {
				cfg.CAN.SourceAddress = 254
			},
			wantErr: config.ErrInvalidSourceAddress,
		},
		{
			name: "source address 255",
			modify: func(cfg *config.Config) {
				cfg.CAN.SourceAddress = 255
			},
			wantErr: config.ErrInvalidSourceAddress,
		},
		{
			name: "zero max sessions",
			modify: func(cfg *config.Config) {
				cfg.TP.MaxSessions = 0
			},
			wantErr: config.ErrInvalidMaxSessions,
		},
		{
			name: "zero max per cts",
			modify: func(cfg *config.Config) {
				cfg.TP.MaxPerCTS = 0
			},
			wantErr: config.ErrInvalidMaxPerCTS,
		},
		{
			name: "tbam below 50ms",
			modify: func(cfg *config.Config) {
				cfg.TP.TbamMs = 10
			},
			wantErr: config.ErrInvalidTbam,
		},
		{
			name: "tbam above 200ms",
			modify: func(cfg *config.Config) {
				cfg.TP.TbamMs = 500
			},
			wantErr: config.ErrInvalidTbam,
		},
		{
			name: "tick interval below 10ms",
			modify: func(cfg *config.Config) {
				cfg.Tick.IntervalMs = 1
			},
			wantErr: config.ErrInvalidTickInterval,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.DefaultConfig()
			tt.modify(cfg)

			err := config.Validate(cfg)
			if err == nil {
				t.Fatal("Validate() returned nil, want error")
			}

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  slog.Level
	}{
		{input: "debug", want: slog.LevelDebug},
		{input: "DEBUG", want: slog.LevelDebug},
		{input: "info", want: slog.LevelInfo},
		{input: "INFO", want: slog.LevelInfo},
		{input: "warn", want: slog.LevelWarn},
		{input: "WARN", want: slog.LevelWarn},
		{input: "error", want: slog.LevelError},
		{input: "Error", want: slog.LevelError},
		{input: "unknown", want: slog.LevelInfo},
		{input: "", want: slog.LevelInfo},
		{input: "trace", want: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			got := config.ParseLogLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLoadNonexistentFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load("/nonexistent/path/config.yml")
	if err == nil {
		t.Fatal("Load() returned nil error for nonexistent file")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	// Environment variable tests cannot be parallel because they modify
	// process-wide state (os.Setenv).

	yamlContent := `
can:
  interface: "can0"
log:
  level: "info"
`
	path := writeTemp(t, yamlContent)

	t.Setenv("GOTPD_CAN_INTERFACE", "vcan2")
	t.Setenv("GOTPD_LOG_LEVEL", "debug")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.CAN.Interface != "vcan2" {
		t.Errorf("CAN.Interface = %q, want %q (from env)", cfg.CAN.Interface, "vcan2")
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q (from env)", cfg.Log.Level, "debug")
	}
}

func TestLoadEnvOverridesMetrics(t *testing.T) {
	yamlContent := `
metrics:
  addr: ":9100"
  path: "/metrics"
`
	path := writeTemp(t, yamlContent)

	t.Setenv("GOTPD_METRICS_ADDR", ":9200")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Metrics.Addr != ":9200" {
		t.Errorf("Metrics.Addr = %q, want %q (from env)", cfg.Metrics.Addr, ":9200")
	}
}

// writeTemp creates a temporary YAML file and returns its path.
// The file is automatically cleaned up when the test finishes.
func writeTemp(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "gotpd.yml")

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	return path
}
