package appconfig

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/assist-arbiter/internal/gpio"
	"github.com/sweeney/assist-arbiter/internal/logic"
	"github.com/sweeney/assist-arbiter/internal/vehicle"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.BenchSetpoint != logic.SetpointUnset {
		t.Errorf("BenchSetpoint = %v, want unset", cfg.BenchSetpoint)
	}
	opts := cfg.VehicleOptions()
	if !opts.Automatic || opts.ExperimentalLongitudinal {
		t.Errorf("VehicleOptions = %+v", opts)
	}
}

func TestValidate(t *testing.T) {
	noLKASPin := gpio.DefaultPins()
	delete(noLKASPin, logic.ButtonLKAS.String())

	tests := []struct {
		name   string
		modify func(*Config)
		errSub string
	}{
		{"zero poll", func(c *Config) { c.Poll = 0 }, "poll"},
		{"negative heartbeat", func(c *Config) { c.Heartbeat = -time.Second }, "heartbeat"},
		{"no broker", func(c *Config) { c.Broker = "" }, "broker"},
		{"unknown model", func(c *Config) { c.Model = "PINTO" }, "unsupported vehicle model"},
		{"unknown source", func(c *Config) { c.Source = "can" }, "source"},
		{"gpio missing pin", func(c *Config) { c.Source = SourceGPIO; c.Pins = noLKASPin }, "missing pin"},
		{"gpio negative speed", func(c *Config) { c.Source = SourceGPIO; c.BenchSpeed = -1 }, "bench speed"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.errSub) {
				t.Errorf("error %q does not mention %q", err, tt.errSub)
			}
		})
	}
}

func TestValidateUnknownModelIsConfigError(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Model = "PINTO"
	var ce *vehicle.ConfigError
	if err := cfg.Validate(); !errors.As(err, &ce) {
		t.Errorf("expected *vehicle.ConfigError, got %T", err)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAndApplyFileConfig(t *testing.T) {
	path := writeConfig(t, `
poll = "20ms"
heartbeat = "0s"
broker = "tcp://10.0.0.2:1883"
http_addr = ""
source = "gpio"
bench_speed = 12.5
model = "F_150_MK14"
tuning = "/etc/assist-arbiter/tuning.yaml"
experimental_long = true
manual = true
log_format = "json"

[pins]
resumeCruise = 1
accelCruise = 2
decelCruise = 3
cancel = 4
gapAdjustCruise = 5
lkas = 6
mainCruise = 7
cruiseAvailable = 8
`)

	fc, err := LoadFileConfig(path)
	if err != nil {
		t.Fatalf("LoadFileConfig: %v", err)
	}

	cfg := DefaultConfig()
	if err := ApplyFileConfig(&cfg, fc, map[string]bool{}); err != nil {
		t.Fatalf("ApplyFileConfig: %v", err)
	}

	if cfg.Poll != 20*time.Millisecond {
		t.Errorf("Poll = %v", cfg.Poll)
	}
	if cfg.Heartbeat != 0 {
		t.Errorf("Heartbeat = %v, want disabled", cfg.Heartbeat)
	}
	if cfg.Broker != "tcp://10.0.0.2:1883" {
		t.Errorf("Broker = %q", cfg.Broker)
	}
	if cfg.HTTPAddr != "" {
		t.Errorf("HTTPAddr = %q, want disabled", cfg.HTTPAddr)
	}
	if cfg.Source != SourceGPIO || cfg.BenchSpeed != 12.5 {
		t.Errorf("Source/BenchSpeed = %q/%v", cfg.Source, cfg.BenchSpeed)
	}
	if cfg.Pins[logic.ButtonLKAS.String()] != 6 || len(cfg.Pins) != 8 {
		t.Errorf("Pins = %v", cfg.Pins)
	}
	if cfg.Model != "F_150_MK14" || cfg.TuningPath != "/etc/assist-arbiter/tuning.yaml" {
		t.Errorf("Model/Tuning = %q/%q", cfg.Model, cfg.TuningPath)
	}
	if !cfg.ExperimentalLong || !cfg.Manual {
		t.Errorf("toggles = %v/%v", cfg.ExperimentalLong, cfg.Manual)
	}
	if cfg.LogFormat != "json" || cfg.LogLevel != "info" {
		t.Errorf("log = %q/%q", cfg.LogLevel, cfg.LogFormat)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("resulting config invalid: %v", err)
	}
}

func TestFileConfigRespectsChangedFlags(t *testing.T) {
	path := writeConfig(t, `
broker = "tcp://file:1883"
model = "FOCUS_MK4"

[pins]
lkas = 99
`)
	fc, err := LoadFileConfig(path)
	if err != nil {
		t.Fatalf("LoadFileConfig: %v", err)
	}

	cfg := DefaultConfig()
	cfg.Broker = "tcp://flag:1883"
	changed := map[string]bool{"broker": true, "pin": true}
	if err := ApplyFileConfig(&cfg, fc, changed); err != nil {
		t.Fatalf("ApplyFileConfig: %v", err)
	}

	if cfg.Broker != "tcp://flag:1883" {
		t.Errorf("flag should win: Broker = %q", cfg.Broker)
	}
	if cfg.Model != "FOCUS_MK4" {
		t.Errorf("unchanged flag should take file value: Model = %q", cfg.Model)
	}
	if cfg.Pins[logic.ButtonLKAS.String()] == 99 {
		t.Error("flag pins should win over file pins")
	}
}

func TestLoadFileConfigErrors(t *testing.T) {
	if _, err := LoadFileConfig(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := LoadFileConfig(writeConfig(t, `brokr = "typo"`)); err == nil {
		t.Error("expected error for unknown key")
	}
	if _, err := LoadFileConfig(writeConfig(t, `poll = [`)); err == nil {
		t.Error("expected error for malformed TOML")
	}

	fc := FileConfig{Poll: "soon"}
	cfg := DefaultConfig()
	if err := ApplyFileConfig(&cfg, fc, nil); err == nil {
		t.Error("expected error for bad duration")
	}
}

func TestApplyEnvConfig(t *testing.T) {
	t.Setenv("ASSIST_ARBITER_POLL", "50ms")
	t.Setenv("ASSIST_ARBITER_BROKER", "tcp://env:1883")
	t.Setenv("ASSIST_ARBITER_HTTP_ADDR", "")
	t.Setenv("ASSIST_ARBITER_MODEL", "EXPLORER_MK6")
	t.Setenv("ASSIST_ARBITER_EXPERIMENTAL_LONG", "true")
	t.Setenv("ASSIST_ARBITER_BENCH_SETPOINT", "72")
	t.Setenv("ASSIST_ARBITER_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	if err := ApplyEnvConfig(&cfg, map[string]bool{"model": true}); err != nil {
		t.Fatalf("ApplyEnvConfig: %v", err)
	}

	if cfg.Poll != 50*time.Millisecond {
		t.Errorf("Poll = %v", cfg.Poll)
	}
	if cfg.Broker != "tcp://env:1883" {
		t.Errorf("Broker = %q", cfg.Broker)
	}
	if cfg.HTTPAddr != "" {
		t.Errorf("HTTPAddr = %q, want disabled by empty env", cfg.HTTPAddr)
	}
	if cfg.Model != string(vehicle.ModelEscapeMk4) {
		t.Errorf("changed flag should win over env: Model = %q", cfg.Model)
	}
	if !cfg.ExperimentalLong {
		t.Error("ExperimentalLong not applied")
	}
	if cfg.BenchSetpoint != 72 {
		t.Errorf("BenchSetpoint = %v", cfg.BenchSetpoint)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
}

func TestApplyEnvConfigInvalid(t *testing.T) {
	tests := map[string]string{
		"ASSIST_ARBITER_HEARTBEAT":   "hourly",
		"ASSIST_ARBITER_BENCH_SPEED": "fast",
		"ASSIST_ARBITER_MANUAL":      "maybe",
	}
	for name, value := range tests {
		t.Run(name, func(t *testing.T) {
			t.Setenv(name, value)
			cfg := DefaultConfig()
			if err := ApplyEnvConfig(&cfg, nil); err == nil {
				t.Errorf("expected error for %s=%q", name, value)
			}
		})
	}
}

func TestDefaultConfigPath(t *testing.T) {
	t.Setenv("HOME", "/home/driver")
	if got := DefaultConfigPath(); got != "/home/driver/.assist-arbiter/config.toml" {
		t.Errorf("DefaultConfigPath() = %q", got)
	}
}

func TestFileExists(t *testing.T) {
	path := writeConfig(t, "")
	if !FileExists(path) {
		t.Error("expected file to exist")
	}
	if FileExists(path + ".missing") {
		t.Error("expected missing file")
	}
}
