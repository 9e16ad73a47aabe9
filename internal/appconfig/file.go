package appconfig

import (
	"bytes"
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config with string durations and optional fields for
// values whose zero is meaningful.
type FileConfig struct {
	Poll      string  `toml:"poll"`
	Heartbeat string  `toml:"heartbeat"`
	Broker    string  `toml:"broker"`
	HTTPAddr  *string `toml:"http_addr"`

	Source        string         `toml:"source"`
	GPIOChip      string         `toml:"gpio_chip"`
	Pins          map[string]int `toml:"pins"`
	BenchSpeed    float64        `toml:"bench_speed"`
	BenchSetpoint float64        `toml:"bench_setpoint"`

	Model            string `toml:"model"`
	Tuning           string `toml:"tuning"`
	ExperimentalLong *bool  `toml:"experimental_long"`
	Manual           *bool  `toml:"manual"`

	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	// Unknown keys are an error.
	if err := toml.NewDecoder(bytes.NewReader(b)).DisallowUnknownFields().Decode(&fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns ~/.assist-arbiter/config.toml, or "" if the
// home directory is unknown.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".assist-arbiter", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to cfg.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	if err := s.setDuration("poll", fc.Poll, &cfg.Poll); err != nil {
		return err
	}
	if err := s.setDuration("heartbeat", fc.Heartbeat, &cfg.Heartbeat); err != nil {
		return err
	}
	s.setString("broker", fc.Broker, &cfg.Broker)
	s.setStringPtr("http", fc.HTTPAddr, &cfg.HTTPAddr)

	s.setString("source", fc.Source, &cfg.Source)
	s.setString("gpio-chip", fc.GPIOChip, &cfg.GPIOChip)
	s.setPins("pin", fc.Pins, &cfg.Pins)
	s.setFloat("bench-speed", fc.BenchSpeed, &cfg.BenchSpeed)
	s.setFloat("bench-setpoint", fc.BenchSetpoint, &cfg.BenchSetpoint)

	s.setString("model", fc.Model, &cfg.Model)
	s.setString("tuning", fc.Tuning, &cfg.TuningPath)
	s.setBool("experimental-long", fc.ExperimentalLong, &cfg.ExperimentalLong)
	s.setBool("manual", fc.Manual, &cfg.Manual)

	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setString("log-format", fc.LogFormat, &cfg.LogFormat)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
