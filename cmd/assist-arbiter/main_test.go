package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/assist-arbiter/internal/gpio"
	"github.com/sweeney/assist-arbiter/internal/logic"
	"github.com/sweeney/assist-arbiter/internal/mqtt"
	"github.com/sweeney/assist-arbiter/internal/status"
	"github.com/sweeney/assist-arbiter/internal/vehicle"
)

// TestEnvVarNames verifies the env var constants match what pi-helper writes
// to /run/pi-helper.env.
func TestEnvVarNames(t *testing.T) {
	want := map[string]string{
		"NETWORK_TYPE":        envNetworkType,
		"NETWORK_IP":          envNetworkIP,
		"NETWORK_STATUS":      envNetworkStatus,
		"NETWORK_GATEWAY":     envNetworkGateway,
		"NETWORK_WIFI_STATUS": envNetworkWifiStatus,
		"NETWORK_WIFI_SSID":   envNetworkWifiSSID,
	}
	for canonical, got := range want {
		if got != canonical {
			t.Errorf("env var constant: got %q, want %q", got, canonical)
		}
	}
}

func TestReadNetworkInfo(t *testing.T) {
	t.Run("unset", func(t *testing.T) {
		t.Setenv(envNetworkStatus, "")
		if info := readNetworkInfo(); info != nil {
			t.Errorf("expected nil when NETWORK_STATUS is unset, got %+v", info)
		}
	})

	t.Run("all set", func(t *testing.T) {
		t.Setenv(envNetworkType, "wifi")
		t.Setenv(envNetworkIP, "192.168.1.100")
		t.Setenv(envNetworkStatus, "connected")
		t.Setenv(envNetworkGateway, "192.168.1.1")
		t.Setenv(envNetworkWifiStatus, "connected")
		t.Setenv(envNetworkWifiSSID, "MyNetwork")

		got := readNetworkInfo()
		want := &status.NetworkInfo{
			Type:       "wifi",
			IP:         "192.168.1.100",
			Status:     "connected",
			Gateway:    "192.168.1.1",
			WifiStatus: "connected",
			SSID:       "MyNetwork",
		}
		if got == nil || *got != *want {
			t.Errorf("got %+v, want %+v", got, want)
		}
	})
}

// --- runLoop tests ---

// fakeClock returns a function that yields start, start+step, start+2*step, ...
// on successive calls. Only called from runLoop's goroutine.
func fakeClock(start time.Time, step time.Duration) func() time.Time {
	n := 0
	return func() time.Time {
		t := start.Add(time.Duration(n) * step)
		n++
		return t
	}
}

var loopStart = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func testArbiter() logic.ArbiterConfig {
	return logic.ArbiterConfig{
		SupportsLateralArbitration: true,
		MinEnableSpeed:             -1,
		LateralPolicy:              logic.LateralEngageWithACC,
		FollowDistance:             logic.FollowDistanceConfig{Min: 1, Max: 3, Default: 4, Direction: -1},
	}
}

func idle() logic.Input {
	return gpio.FrameFromLevels(map[string]bool{gpio.SignalCruiseAvailable: true},
		gpio.Bench{VEgo: 20, Setpoint: logic.SetpointUnset})
}

func pressed(id logic.ButtonID) logic.Input {
	in := idle()
	in.Buttons = in.Buttons.With(id, true)
	return in
}

func repeat(in logic.Input, n int) []logic.Input {
	out := make([]logic.Input, n)
	for i := range out {
		out[i] = in
	}
	return out
}

type loopHarness struct {
	source    gpio.Source
	pub       *mqtt.FakePublisher
	tracker   *status.Tracker
	heartbeat time.Duration
	clock     func() time.Time
}

func newHarness(frames []logic.Input) *loopHarness {
	return &loopHarness{
		source:  gpio.NewFakeReader(frames),
		pub:     mqtt.NewFakePublisher(),
		tracker: status.NewTracker(loopStart, "test-session", status.Config{}),
		clock:   fakeClock(loopStart, 10*time.Millisecond),
	}
}

// run drives runLoop for nTicks ticks, then delivers sig. It returns early
// if the loop exits on its own.
func (h *loopHarness) run(t *testing.T, nTicks int, sig os.Signal) error {
	t.Helper()
	tick := make(chan time.Time)
	sigCh := make(chan os.Signal, 1)
	done := make(chan error, 1)

	go func() {
		done <- runLoop(loopDeps{
			source:     h.source,
			publisher:  h.pub,
			mqttStatus: h.pub,
			tracker:    h.tracker,
			arbiter:    testArbiter(),
			heartbeat:  h.heartbeat,
			log:        zerolog.Nop(),
		}, h.clock, tick, sigCh)
	}()

	for i := 0; i < nTicks; i++ {
		select {
		case tick <- time.Time{}:
		case err := <-done:
			return err
		}
	}
	sigCh <- sig

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("runLoop did not exit")
		return nil
	}
}

func TestRunLoopEngagesAndPublishesOnlyChanges(t *testing.T) {
	h := newHarness(repeat(idle(), 5))

	if err := h.run(t, 5, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop: %v", err)
	}

	// Engage, then the mode-toggle release acknowledgement. Steady cycles
	// after that are not published.
	if len(h.pub.Outputs) != 2 {
		t.Fatalf("expected 2 outputs, got %d", len(h.pub.Outputs))
	}
	first := h.pub.Outputs[0]
	if !first.LateralEnabled || !logic.HasEvent(first.Events, logic.EventLateralEngaged) {
		t.Errorf("first output = %+v", first)
	}
	if ack := h.pub.Outputs[1].ButtonEvents; len(ack) != 1 || ack[0].ID != logic.ButtonModeToggle || ack[0].Pressed {
		t.Errorf("expected mode-toggle release, got %+v", ack)
	}

	snap := h.tracker.Snapshot()
	if snap.Counts.Cycles != 5 || snap.Counts.LateralEngaged != 1 || !snap.LateralEnabled {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestRunLoopPersistentEventsPublishOnce(t *testing.T) {
	unavailable := gpio.FrameFromLevels(map[string]bool{}, gpio.Bench{VEgo: 20, Setpoint: logic.SetpointUnset})
	h := newHarness(repeat(unavailable, 5))

	if err := h.run(t, 5, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop: %v", err)
	}

	if len(h.pub.Outputs) != 1 {
		t.Fatalf("expected 1 output, got %d", len(h.pub.Outputs))
	}
	if !logic.HasEvent(h.pub.Outputs[0].Events, logic.EventWrongCarMode) {
		t.Errorf("events = %v", h.pub.Outputs[0].Events)
	}
	if c := h.tracker.Snapshot().Counts; c.Cycles != 5 {
		t.Errorf("counts = %+v", c)
	}
}

func TestRunLoopCancel(t *testing.T) {
	frames := append(repeat(idle(), 3), pressed(logic.ButtonCancel), pressed(logic.ButtonCancel), idle())
	h := newHarness(frames)

	if err := h.run(t, len(frames), syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop: %v", err)
	}

	if len(h.pub.Outputs) != 5 {
		t.Fatalf("expected 5 outputs, got %d", len(h.pub.Outputs))
	}
	cancel := h.pub.Outputs[2]
	if !cancel.Cancelled || cancel.LateralEnabled {
		t.Errorf("cancel output = %+v", cancel)
	}
	if !logic.HasEvent(cancel.Events, logic.EventButtonCancel) || !logic.HasEvent(cancel.Events, logic.EventLateralDisengaged) {
		t.Errorf("cancel events = %v", cancel.Events)
	}
	if last := h.pub.Outputs[4]; !logic.HasEvent(last.Events, logic.EventButtonCancel) {
		t.Errorf("cancel release events = %v", last.Events)
	}

	if c := h.tracker.Snapshot().Counts; c.Cancels != 2 || c.LateralDisengaged != 1 {
		t.Errorf("counts = %+v", c)
	}
}

func TestRunLoopShutdownSignals(t *testing.T) {
	tests := []struct {
		sig    os.Signal
		reason string
	}{
		{syscall.SIGINT, "SIGINT"},
		{syscall.SIGTERM, "SIGTERM"},
	}
	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			h := newHarness(repeat(idle(), 1))
			h.pub.Connected = true

			if err := h.run(t, 1, tt.sig); err != nil {
				t.Fatalf("runLoop: %v", err)
			}
			if len(h.pub.SystemEvents) != 1 {
				t.Fatalf("expected 1 system event, got %v", h.pub.SystemEventNames())
			}
			se := h.pub.SystemEvents[0]
			if se.Event != "SHUTDOWN" || se.Reason != tt.reason || !se.Retained {
				t.Errorf("system event = %+v", se)
			}

			var payload status.StatusJSON
			if err := json.Unmarshal(h.pub.SystemPayloads[0], &payload); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if payload.Status.Reason != tt.reason || !payload.Status.MQTT.Connected {
				t.Errorf("payload = %s", h.pub.SystemPayloads[0])
			}
		})
	}
}

func TestRunLoopSignalContractIsFatal(t *testing.T) {
	h := newHarness(nil)
	h.source = &gpio.FakeReader{ReadError: fmt.Errorf("%w: unknown button %q", logic.ErrSignalContract, "horn")}

	err := h.run(t, 3, syscall.SIGTERM)
	if !errors.Is(err, logic.ErrSignalContract) {
		t.Fatalf("expected ErrSignalContract, got %v", err)
	}
	if got := h.pub.SystemEventNames(); len(got) != 1 || got[0] != "SHUTDOWN" {
		t.Fatalf("system events = %v", got)
	}
	if r := h.pub.SystemEvents[0].Reason; r != "SIGNAL_CONTRACT" {
		t.Errorf("reason = %q", r)
	}
	if len(h.pub.Outputs) != 0 {
		t.Errorf("expected no outputs, got %d", len(h.pub.Outputs))
	}
}

// flakySource fails a fixed set of reads, delegating the rest.
type flakySource struct {
	inner gpio.Source
	fail  map[int]error
	n     int
}

func (s *flakySource) Read() (logic.Input, error) {
	s.n++
	if err, ok := s.fail[s.n]; ok {
		return logic.Input{}, err
	}
	return s.inner.Read()
}

func (s *flakySource) Close() error { return s.inner.Close() }

func TestRunLoopSkipsMissingAndFailedFrames(t *testing.T) {
	h := newHarness(repeat(idle(), 4))
	h.source = &flakySource{
		inner: h.source,
		fail: map[int]error{
			1: mqtt.ErrNoFrame,
			2: errors.New("line read failed"),
		},
	}

	if err := h.run(t, 4, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop: %v", err)
	}

	if got := h.tracker.Snapshot().Counts.Cycles; got != 2 {
		t.Errorf("Cycles = %d, want 2", got)
	}
	if len(h.pub.Outputs) != 2 || !h.pub.Outputs[0].LateralEnabled {
		t.Errorf("outputs = %+v", h.pub.Outputs)
	}
}

func TestRunLoopPublishErrorContinues(t *testing.T) {
	h := newHarness(repeat(idle(), 3))
	h.pub.PublishError = errors.New("broker down")

	if err := h.run(t, 3, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop: %v", err)
	}
	if got := h.tracker.Snapshot().Counts.Cycles; got != 3 {
		t.Errorf("Cycles = %d, want 3", got)
	}
}

func TestRunLoopHeartbeat(t *testing.T) {
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkIP, "10.0.0.2")

	h := newHarness(repeat(idle(), 10))
	h.heartbeat = 30 * time.Millisecond

	if err := h.run(t, 10, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop: %v", err)
	}

	var heartbeats int
	for i, se := range h.pub.SystemEvents {
		if se.Event != "HEARTBEAT" {
			continue
		}
		heartbeats++
		if se.Retained {
			t.Error("heartbeat should not be retained")
		}
		if !bytes.Contains(h.pub.SystemPayloads[i], []byte(`"10.0.0.2"`)) {
			t.Errorf("heartbeat payload missing network info: %s", h.pub.SystemPayloads[i])
		}
	}
	// Ticks at 0..90ms with a 30ms interval.
	if heartbeats != 3 {
		t.Errorf("expected 3 heartbeats, got %d (%v)", heartbeats, h.pub.SystemEventNames())
	}
}

func TestChanged(t *testing.T) {
	base := logic.Output{LateralEnabled: true, FollowDistance: 3}
	tests := []struct {
		name string
		out  logic.Output
		want bool
	}{
		{"same", base, false},
		{"lateral", logic.Output{FollowDistance: 3}, true},
		{"acc", logic.Output{LateralEnabled: true, AccEnabled: true, FollowDistance: 3}, true},
		{"cruise state", logic.Output{LateralEnabled: true, CruiseStateEnabled: true, FollowDistance: 3}, true},
		{"follow distance", logic.Output{LateralEnabled: true, FollowDistance: 2}, true},
		{"events", logic.Output{LateralEnabled: true, FollowDistance: 3, Events: []logic.EventName{logic.EventDoorOpen}}, true},
		{"button events", logic.Output{LateralEnabled: true, FollowDistance: 3,
			ButtonEvents: []logic.ButtonEvent{{ID: logic.ButtonGapAdjust, Pressed: true}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := changed(base, tt.out); got != tt.want {
				t.Errorf("changed = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestChangedPersistentEvents(t *testing.T) {
	parked := logic.Output{Events: []logic.EventName{logic.EventWrongGear}}
	tests := []struct {
		name string
		prev logic.Output
		out  logic.Output
		want bool
	}{
		{"repeated", parked, logic.Output{Events: []logic.EventName{logic.EventWrongGear}}, false},
		{"cleared", parked, logic.Output{}, true},
		{"added", parked, logic.Output{Events: []logic.EventName{logic.EventWrongGear, logic.EventDoorOpen}}, true},
		{"replaced", parked, logic.Output{Events: []logic.EventName{logic.EventReverseGear}}, true},
		{"repeated with button events", parked, logic.Output{Events: []logic.EventName{logic.EventWrongGear},
			ButtonEvents: []logic.ButtonEvent{{ID: logic.ButtonLKAS, Pressed: true}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := changed(tt.prev, tt.out); got != tt.want {
				t.Errorf("changed = %v, want %v", got, tt.want)
			}
		})
	}
}

// --- command tests ---

func TestPinsValue(t *testing.T) {
	pins := gpio.DefaultPins()
	v := newPinsValue(&pins)

	if err := v.Set("cancel=4, gas=17"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if pins[logic.ButtonCancel.String()] != 4 || pins[gpio.SignalGas] != 17 {
		t.Errorf("pins = %v", pins)
	}
	if pins[logic.ButtonResume.String()] != 5 {
		t.Error("unrelated defaults should be kept")
	}

	for _, bad := range []string{"cancel", "=4", "cancel=x"} {
		if err := v.Set(bad); err == nil {
			t.Errorf("Set(%q): expected error", bad)
		}
	}
}

func runParams(t *testing.T, args ...string) vehicle.Params {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"params"}, args...))
	if err := root.Execute(); err != nil {
		t.Fatalf("params %v: %v (stderr: %s)", args, err, errOut.String())
	}
	var p vehicle.Params
	if err := json.Unmarshal(out.Bytes(), &p); err != nil {
		t.Fatalf("unmarshal: %v\n%s", err, out.String())
	}
	return p
}

func TestParamsCommand(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("ASSIST_ARBITER_MODEL", "")

	dir := t.TempDir()
	tuning := filepath.Join(dir, "tuning.yaml")
	if err := os.WriteFile(tuning, []byte("mass: 1999\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfgPath := filepath.Join(dir, "config.toml")
	cfgBody := fmt.Sprintf("model = %q\ntuning = %q\n", "FOCUS_MK4", tuning)
	if err := os.WriteFile(cfgPath, []byte(cfgBody), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Run("from config file", func(t *testing.T) {
		p := runParams(t, "--config", cfgPath)
		if p.Model != vehicle.ModelFocusMk4 || p.Mass != 1999 {
			t.Errorf("Model = %s, Mass = %v", p.Model, p.Mass)
		}
	})

	t.Run("flag beats file", func(t *testing.T) {
		p := runParams(t, "--config", cfgPath, "--model", "MAVERICK_MK1", "--manual")
		if p.Model != vehicle.ModelMaverickMk1 {
			t.Errorf("Model = %s", p.Model)
		}
		if p.Transmission != vehicle.TransmissionManual {
			t.Errorf("Transmission = %s", p.Transmission)
		}
	})

	t.Run("missing explicit config", func(t *testing.T) {
		root := newRootCmd()
		root.SetOut(&bytes.Buffer{})
		root.SetErr(&bytes.Buffer{})
		root.SetArgs([]string{"params", "--config", filepath.Join(dir, "absent.toml")})
		err := root.Execute()
		if err == nil || !strings.Contains(err.Error(), "not found") {
			t.Errorf("expected not-found error, got %v", err)
		}
	})

	t.Run("unsupported model", func(t *testing.T) {
		root := newRootCmd()
		root.SetOut(&bytes.Buffer{})
		root.SetErr(&bytes.Buffer{})
		root.SetArgs([]string{"params", "--model", "MODEL_T"})
		if err := root.Execute(); !errors.Is(err, vehicle.ErrUnsupportedModel) {
			t.Errorf("expected ErrUnsupportedModel, got %v", err)
		}
	})
}
