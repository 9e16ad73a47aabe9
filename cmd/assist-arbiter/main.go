// Command assist-arbiter reads driver-control frames, arbitrates lateral and
// longitudinal assist engagement each cycle and publishes the result to MQTT.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"slices"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/sweeney/assist-arbiter/internal/appconfig"
	"github.com/sweeney/assist-arbiter/internal/gpio"
	"github.com/sweeney/assist-arbiter/internal/logging"
	"github.com/sweeney/assist-arbiter/internal/logic"
	"github.com/sweeney/assist-arbiter/internal/mqtt"
	"github.com/sweeney/assist-arbiter/internal/status"
	"github.com/sweeney/assist-arbiter/internal/vehicle"
	"github.com/sweeney/assist-arbiter/internal/web"
)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := appconfig.DefaultConfig()
	var cfgPath string

	root := &cobra.Command{
		Use:          "assist-arbiter",
		Short:        "Arbitrate lateral and cruise assist engagement from driver controls",
		Version:      fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := resolveConfig(cmd, &cfg, cfgPath); err != nil {
				return err
			}
			log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}
			return run(cfg, log)
		},
	}

	params := &cobra.Command{
		Use:   "params",
		Short: "Print the resolved vehicle parameters and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := resolveConfig(cmd, &cfg, cfgPath); err != nil {
				return err
			}
			p, ignored, err := resolveVehicle(cfg)
			if err != nil {
				return err
			}
			for _, k := range ignored {
				fmt.Fprintf(cmd.ErrOrStderr(), "ignored tuning key: %s\n", k)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(p)
		},
	}
	root.AddCommand(params)

	f := root.PersistentFlags()
	f.StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.assist-arbiter/config.toml)")
	f.DurationVar(&cfg.Poll, "poll", cfg.Poll, "control cycle interval")
	f.DurationVar(&cfg.Heartbeat, "heartbeat", cfg.Heartbeat, "heartbeat interval (0 to disable)")
	f.StringVar(&cfg.Broker, "broker", cfg.Broker, "MQTT broker address")
	f.StringVar(&cfg.HTTPAddr, "http", cfg.HTTPAddr, "HTTP status address (empty to disable)")
	f.StringVar(&cfg.Source, "source", cfg.Source, `input source: "mqtt" or "gpio"`)
	f.StringVar(&cfg.GPIOChip, "gpio-chip", cfg.GPIOChip, "GPIO chip for the bench harness")
	f.Var(newPinsValue(&cfg.Pins), "pin", "harness line assignment as name=offset (repeatable)")
	f.Float64Var(&cfg.BenchSpeed, "bench-speed", cfg.BenchSpeed, "vehicle speed reported by the bench harness (m/s)")
	f.Float64Var(&cfg.BenchSetpoint, "bench-setpoint", cfg.BenchSetpoint, "cruise setpoint reported by the bench harness (km/h)")
	f.StringVar(&cfg.Model, "model", cfg.Model, "vehicle model")
	f.StringVar(&cfg.TuningPath, "tuning", cfg.TuningPath, "tuning overlay (.json, .toml, .yaml)")
	f.BoolVar(&cfg.ExperimentalLong, "experimental-long", cfg.ExperimentalLong, "take longitudinal control from stock cruise")
	f.BoolVar(&cfg.Manual, "manual", cfg.Manual, "manual transmission")
	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	f.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `log format: "console" or "json"`)

	return root
}

// resolveConfig layers the config file, environment and explicitly set
// flags over the defaults already in cfg.
func resolveConfig(cmd *cobra.Command, cfg *appconfig.Config, cfgPath string) error {
	cfgFile := cfgPath
	if cfgFile == "" {
		cfgFile = appconfig.DefaultConfigPath()
	}

	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	if cfgPath != "" && !appconfig.FileExists(cfgPath) {
		return fmt.Errorf("config file %s not found", cfgPath)
	}
	if cfgFile != "" && appconfig.FileExists(cfgFile) {
		fc, err := appconfig.LoadFileConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := appconfig.ApplyFileConfig(cfg, fc, changed); err != nil {
			return err
		}
	}

	if err := appconfig.ApplyEnvConfig(cfg, changed); err != nil {
		return err
	}
	return cfg.Validate()
}

func resolveVehicle(cfg appconfig.Config) (vehicle.Params, []string, error) {
	model, err := vehicle.ParseModel(cfg.Model)
	if err != nil {
		return vehicle.Params{}, nil, err
	}
	overlay, err := vehicle.LoadOverlay(cfg.TuningPath)
	if err != nil {
		return vehicle.Params{}, nil, err
	}
	return vehicle.Resolve(model, overlay, cfg.VehicleOptions())
}

func openSource(cfg appconfig.Config, sessionID string, log zerolog.Logger) (gpio.Source, error) {
	if cfg.Source == appconfig.SourceGPIO {
		r, err := gpio.NewRealReader(cfg.GPIOChip, cfg.Pins, gpio.Bench{VEgo: cfg.BenchSpeed, Setpoint: cfg.BenchSetpoint})
		if err != nil {
			return nil, fmt.Errorf("init gpio: %w", err)
		}
		return r, nil
	}
	return mqtt.NewFrameSource(cfg.Broker, sessionID, log), nil
}

func run(cfg appconfig.Config, log zerolog.Logger) error {
	sessionID := uuid.NewString()
	log = log.With().Str("session", sessionID).Logger()

	params, ignored, err := resolveVehicle(cfg)
	if err != nil {
		return err
	}
	for _, k := range ignored {
		log.Warn().Str("key", k).Msg("ignored unknown tuning key")
	}
	if params.DashcamOnly {
		log.Warn().Str("model", string(params.Model)).Msg("model is dashcam-only by default")
	}
	arbCfg := params.ArbiterConfig()

	source, err := openSource(cfg, sessionID, log)
	if err != nil {
		return err
	}
	defer source.Close()

	publisher := mqtt.NewRealPublisher(cfg.Broker, sessionID, log)
	defer publisher.Close()

	// Tracker exists before STARTUP so the snapshot is available
	tracker := status.NewTracker(time.Now(), sessionID, status.Config{
		PollMs:        cfg.Poll.Milliseconds(),
		HeartbeatMs:   cfg.Heartbeat.Milliseconds(),
		Broker:        cfg.Broker,
		HTTPAddr:      cfg.HTTPAddr,
		Source:        cfg.Source,
		Model:         string(params.Model),
		LateralPolicy: params.LateralPolicy.String(),
		StockLong:     arbCfg.StockCruiseDrivesLongitudinal,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	snap := tracker.Snapshot()
	startup := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	logPublishSystem(log, publisher, startup)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.TuningPath != "" {
		watcher, err := vehicle.NewTuningWatcher(cfg.TuningPath)
		if err != nil {
			log.Warn().Err(err).Str("path", cfg.TuningPath).Msg("tuning watch disabled")
		} else {
			defer watcher.Close()
			go watcher.Run(ctx,
				func(op fsnotify.Op) {
					log.Warn().Str("path", cfg.TuningPath).Str("op", op.String()).Msg("tuning changed, restart required")
				},
				func(err error) {
					log.Error().Err(err).Msg("tuning watcher")
				})
		}
	}

	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker, log)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("http server")
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http status server listening")
	}

	log.Info().
		Str("model", string(params.Model)).
		Str("source", cfg.Source).
		Str("policy", params.LateralPolicy.String()).
		Bool("stock_long", arbCfg.StockCruiseDrivesLongitudinal).
		Dur("poll", cfg.Poll).
		Str("broker", cfg.Broker).
		Msg("started")

	ticker := time.NewTicker(cfg.Poll)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(loopDeps{
		source:     source,
		publisher:  publisher,
		mqttStatus: publisher,
		tracker:    tracker,
		arbiter:    arbCfg,
		heartbeat:  cfg.Heartbeat,
		log:        log,
	}, time.Now, ticker.C, sigCh)
}

type loopDeps struct {
	source     gpio.Source
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	arbiter    logic.ArbiterConfig
	heartbeat  time.Duration
	log        zerolog.Logger
}

// runLoop advances the arbiter once per tick until a signal arrives or the
// input violates the signal contract.
func runLoop(d loopDeps, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	var (
		state     logic.State
		last      logic.Output
		published bool
	)

	for {
		select {
		case s := <-sig:
			d.log.Info().Stringer("signal", s).Msg("shutting down")
			reason := "UNKNOWN"
			switch s {
			case syscall.SIGINT:
				reason = "SIGINT"
			case syscall.SIGTERM:
				reason = "SIGTERM"
			}
			publishLifecycle(d, now(), "SHUTDOWN", reason, true)
			return nil

		case <-tick:
			t := now()
			in, err := d.source.Read()
			switch {
			case errors.Is(err, logic.ErrSignalContract):
				d.log.Error().Err(err).Msg("input frame rejected")
				publishLifecycle(d, t, "SHUTDOWN", "SIGNAL_CONTRACT", true)
				return fmt.Errorf("read frame: %w", err)
			case errors.Is(err, mqtt.ErrNoFrame):
				continue
			case err != nil:
				d.log.Error().Err(err).Msg("read frame")
				continue
			}

			out, next := logic.Step(d.arbiter, in, state)
			state = next

			if !published || changed(last, out) {
				logOutput(d.log, out)
				if err := d.publisher.Publish(out, t); err != nil {
					logPublishError(d.log, err, "publish output")
				}
				published = true
			}
			last = out

			if d.tracker == nil {
				continue
			}
			d.tracker.Record(out)
			if d.mqttStatus != nil {
				d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
			}

			if d.tracker.HeartbeatDue(t, d.heartbeat) {
				if net := readNetworkInfo(); net != nil {
					d.tracker.SetNetwork(net)
				}
				publishLifecycle(d, t, "HEARTBEAT", "", false)
			}
		}
	}
}

// changed reports whether out carries anything worth publishing relative to
// the previous cycle. Button events always publish. Events that persist
// unchanged across cycles, like wrongGear while parked, publish once.
func changed(prev, out logic.Output) bool {
	return len(out.ButtonEvents) > 0 ||
		!slices.Equal(prev.Events, out.Events) ||
		prev.LateralEnabled != out.LateralEnabled ||
		prev.AccEnabled != out.AccEnabled ||
		prev.CruiseStateEnabled != out.CruiseStateEnabled ||
		prev.FollowDistance != out.FollowDistance
}

func logOutput(log zerolog.Logger, out logic.Output) {
	if len(out.ButtonEvents) == 0 && !out.Cancelled && !out.PedalDisengaged {
		return
	}
	ev := log.Info()
	if len(out.ButtonEvents) == 0 {
		ev = log.Debug()
	}
	names := make([]string, len(out.Events))
	for i, e := range out.Events {
		names[i] = string(e)
	}
	ev.Bool("lateral", out.LateralEnabled).
		Bool("acc", out.AccEnabled).
		Int("follow_distance", out.FollowDistance).
		Bool("cancelled", out.Cancelled).
		Bool("pedal", out.PedalDisengaged).
		Strs("events", names).
		Msg("arbitration")
}

func publishLifecycle(d loopDeps, t time.Time, event, reason string, retained bool) {
	se := mqtt.SystemEvent{
		Timestamp: t,
		Event:     event,
		Reason:    reason,
		Retained:  retained,
	}
	if d.tracker != nil {
		if d.mqttStatus != nil {
			d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
		}
		se.RawPayload = status.FormatStatusEvent(d.tracker.Snapshot(), event, reason)
	}
	logPublishSystem(d.log, d.publisher, se)
}

func logPublishSystem(log zerolog.Logger, p mqtt.Publisher, se mqtt.SystemEvent) {
	if err := p.PublishSystem(se); err != nil {
		logPublishError(log, err, "publish "+se.Event)
		return
	}
	log.Info().Str("event", se.Event).Msg("published system event")
}

// logPublishError logs a publish failure. Publish errors never stop the loop.
func logPublishError(log zerolog.Logger, err error, msg string) {
	if errors.Is(err, mqtt.ErrBuffered) {
		log.Debug().Err(err).Msg(msg)
		return
	}
	log.Error().Err(err).Msg(msg)
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
