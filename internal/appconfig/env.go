package appconfig

import "os"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ASSIST_ARBITER_"

// ApplyEnvConfig applies configuration from ASSIST_ARBITER_* environment
// variables. It respects flags that have been explicitly set (changed map).
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)
	env := func(name string) string { return os.Getenv(EnvPrefix + name) }

	if err := s.setDuration("poll", env("POLL"), &cfg.Poll); err != nil {
		return err
	}
	if err := s.setDuration("heartbeat", env("HEARTBEAT"), &cfg.Heartbeat); err != nil {
		return err
	}
	s.setString("broker", env("BROKER"), &cfg.Broker)
	if v, ok := os.LookupEnv(EnvPrefix + "HTTP_ADDR"); ok {
		s.setStringPtr("http", &v, &cfg.HTTPAddr)
	}

	s.setString("source", env("SOURCE"), &cfg.Source)
	s.setString("gpio-chip", env("GPIO_CHIP"), &cfg.GPIOChip)
	if err := s.setFloatFromString("bench-speed", env("BENCH_SPEED"), &cfg.BenchSpeed); err != nil {
		return err
	}
	if err := s.setFloatFromString("bench-setpoint", env("BENCH_SETPOINT"), &cfg.BenchSetpoint); err != nil {
		return err
	}

	s.setString("model", env("MODEL"), &cfg.Model)
	s.setString("tuning", env("TUNING"), &cfg.TuningPath)
	if err := s.setBoolFromString("experimental-long", env("EXPERIMENTAL_LONG"), &cfg.ExperimentalLong); err != nil {
		return err
	}
	if err := s.setBoolFromString("manual", env("MANUAL"), &cfg.Manual); err != nil {
		return err
	}

	s.setString("log-level", env("LOG_LEVEL"), &cfg.LogLevel)
	s.setString("log-format", env("LOG_FORMAT"), &cfg.LogFormat)

	return nil
}
