// Package appconfig resolves daemon configuration from defaults, a TOML file,
// ASSIST_ARBITER_* environment variables and command-line flags, in that
// order of increasing precedence.
package appconfig

import (
	"fmt"
	"strconv"
	"time"

	"github.com/sweeney/assist-arbiter/internal/gpio"
	"github.com/sweeney/assist-arbiter/internal/logging"
	"github.com/sweeney/assist-arbiter/internal/logic"
	"github.com/sweeney/assist-arbiter/internal/vehicle"
)

// Input source kinds.
const (
	SourceGPIO = "gpio"
	SourceMQTT = "mqtt"
)

// Config holds daemon configuration.
type Config struct {
	Poll      time.Duration
	Heartbeat time.Duration
	Broker    string
	HTTPAddr  string // empty disables the status server

	Source        string
	GPIOChip      string
	Pins          gpio.Pins
	BenchSpeed    float64 // m/s
	BenchSetpoint float64 // km/h

	Model            string
	TuningPath       string
	ExperimentalLong bool
	Manual           bool

	LogLevel  string
	LogFormat string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Poll:          10 * time.Millisecond,
		Heartbeat:     15 * time.Minute,
		Broker:        "tcp://localhost:1883",
		HTTPAddr:      ":8080",
		Source:        SourceMQTT,
		GPIOChip:      "gpiochip0",
		Pins:          gpio.DefaultPins(),
		BenchSetpoint: logic.SetpointUnset,
		Model:         string(vehicle.ModelEscapeMk4),
		LogLevel:      "info",
		LogFormat:     logging.FormatConsole,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Poll <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.Heartbeat < 0 {
		return fmt.Errorf("heartbeat interval must not be negative")
	}
	if c.Broker == "" {
		return fmt.Errorf("broker is required")
	}
	if _, err := vehicle.ParseModel(c.Model); err != nil {
		return err
	}

	switch c.Source {
	case SourceMQTT:
	case SourceGPIO:
		if err := c.Pins.Validate(); err != nil {
			return fmt.Errorf("pins: %w", err)
		}
		if c.BenchSpeed < 0 {
			return fmt.Errorf("bench speed must not be negative")
		}
	default:
		return fmt.Errorf("source %q: want %q or %q", c.Source, SourceGPIO, SourceMQTT)
	}

	switch c.LogFormat {
	case logging.FormatConsole, logging.FormatJSON:
	default:
		return fmt.Errorf("log format %q: want %q or %q", c.LogFormat, logging.FormatConsole, logging.FormatJSON)
	}
	return nil
}

// VehicleOptions maps the transmission and longitudinal toggles.
func (c Config) VehicleOptions() vehicle.Options {
	return vehicle.Options{
		ExperimentalLongitudinal: c.ExperimentalLong,
		Automatic:                !c.Manual,
	}
}

// configSetter applies values while respecting flag precedence: a value is
// only applied if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setStringPtr sets a string value, including empty, if present.
func (s *configSetter) setStringPtr(flag string, value *string, dst *string) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setFloat sets a float64 value if positive and flag not changed.
func (s *configSetter) setFloat(flag string, value float64, dst *float64) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

func (s *configSetter) setPins(flag string, value map[string]int, dst *gpio.Pins) {
	if len(value) == 0 || s.changed[flag] {
		return
	}
	pins := make(gpio.Pins, len(value))
	for k, v := range value {
		pins[k] = v
	}
	*dst = pins
}

// setFloatFromString parses a string to float64 and sets the destination.
// Used for environment variables.
func (s *configSetter) setFloatFromString(flag, value string, dst *float64) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = f
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = b
	return nil
}
