package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/sweeney/assist-arbiter/internal/logic"
)

// ErrNoFrame is returned by FrameSource.Read before the first frame arrives.
var ErrNoFrame = errors.New("mqtt: no frame received yet")

// FrameMessage is the JSON form of one input frame on TopicFrames.
type FrameMessage struct {
	Buttons  map[string]bool `json:"buttons"`
	Signals  json.RawMessage `json:"signals"`
	Setpoint *float64        `json:"setpoint,omitempty"`
}

// SignalsMessage is the JSON form of logic.Signals.
type SignalsMessage struct {
	CruiseAvailable   bool    `json:"cruise_available"`
	CruiseEnabled     bool    `json:"cruise_enabled"`
	GasPressed        bool    `json:"gas_pressed"`
	BrakePressed      bool    `json:"brake_pressed"`
	RegenBraking      bool    `json:"regen_braking"`
	Standstill        bool    `json:"standstill"`
	VEgo              float64 `json:"v_ego"`
	Gear              string  `json:"gear"`
	SensorsValid      bool    `json:"sensors_valid"`
	HybridPlatform    bool    `json:"hybrid_platform"`
	DoorOpen          bool    `json:"door_open"`
	SeatbeltUnlatched bool    `json:"seatbelt_unlatched"`
	ESPDisabled       bool    `json:"esp_disabled"`
	AccFaulted        bool    `json:"acc_faulted"`
	SteerFaulted      bool    `json:"steer_faulted"`
}

// signalKeys lists the JSON names of every SignalsMessage field in
// declaration order.
var signalKeys = func() []string {
	t := reflect.TypeOf(SignalsMessage{})
	keys := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("json"), ",")
		keys = append(keys, name)
	}
	return keys
}()

// decodeSignals requires every signal to be present and non-null.
func decodeSignals(raw json.RawMessage) (SignalsMessage, error) {
	var sig SignalsMessage
	if len(raw) == 0 || string(raw) == "null" {
		return sig, fmt.Errorf("%w: missing signals", logic.ErrSignalContract)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return sig, fmt.Errorf("%w: decode signals: %v", logic.ErrSignalContract, err)
	}
	for _, key := range signalKeys {
		v, ok := fields[key]
		if !ok || string(v) == "null" {
			return sig, fmt.Errorf("%w: missing signal %q", logic.ErrSignalContract, key)
		}
	}
	if err := json.Unmarshal(raw, &sig); err != nil {
		return sig, fmt.Errorf("%w: decode signals: %v", logic.ErrSignalContract, err)
	}
	if sig.Gear == "" {
		return sig, fmt.Errorf("%w: empty gear", logic.ErrSignalContract)
	}
	return sig, nil
}

// DecodeFrame parses a frame message. A payload that is not a frame, whose
// button map is not exactly the known button set, or that omits any signal
// violates the signal contract.
func DecodeFrame(payload []byte) (logic.Input, error) {
	var msg FrameMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return logic.Input{}, fmt.Errorf("%w: decode frame: %v", logic.ErrSignalContract, err)
	}

	buttons, err := logic.ParseButtons(msg.Buttons)
	if err != nil {
		return logic.Input{}, err
	}

	sig, err := decodeSignals(msg.Signals)
	if err != nil {
		return logic.Input{}, err
	}

	setpoint := logic.SetpointUnset
	if msg.Setpoint != nil {
		setpoint = *msg.Setpoint
	}

	return logic.Input{
		Buttons: buttons,
		Signals: logic.Signals{
			CruiseAvailable:   sig.CruiseAvailable,
			CruiseEnabled:     sig.CruiseEnabled,
			GasPressed:        sig.GasPressed,
			BrakePressed:      sig.BrakePressed,
			RegenBraking:      sig.RegenBraking,
			Standstill:        sig.Standstill,
			VEgo:              sig.VEgo,
			Gear:              logic.Gear(sig.Gear),
			SensorsValid:      sig.SensorsValid,
			HybridPlatform:    sig.HybridPlatform,
			DoorOpen:          sig.DoorOpen,
			SeatbeltUnlatched: sig.SeatbeltUnlatched,
			ESPDisabled:       sig.ESPDisabled,
			AccFaulted:        sig.AccFaulted,
			SteerFaulted:      sig.SteerFaulted,
		},
		Setpoint: setpoint,
	}, nil
}

// FrameSource keeps the most recent frame received on TopicFrames. Read
// returns it every cycle until a newer one arrives.
type FrameSource struct {
	client paho.Client
	log    zerolog.Logger

	mu     sync.Mutex
	latest logic.Input
	have   bool
	err    error
}

// NewFrameSource subscribes to TopicFrames on broker. The subscription is
// renewed on every reconnect.
func NewFrameSource(broker, sessionID string, logger zerolog.Logger) *FrameSource {
	s := &FrameSource{log: logger.With().Str("component", "frames").Logger()}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(ClientID("assist-arbiter-frames", sessionID)).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(func(c paho.Client) {
			token := c.Subscribe(TopicFrames, 0, func(_ paho.Client, m paho.Message) {
				s.HandleMessage(m.Payload())
			})
			if !token.WaitTimeout(publishTimeout) {
				s.log.Error().Str("topic", TopicFrames).Msg("subscribe timeout")
				return
			}
			if err := token.Error(); err != nil {
				s.log.Error().Err(err).Str("topic", TopicFrames).Msg("subscribe failed")
				return
			}
			s.log.Info().Str("topic", TopicFrames).Msg("subscribed")
		})

	s.client = paho.NewClient(opts)
	s.client.Connect()
	return s
}

// HandleMessage decodes payload and makes it the current frame. A contract
// violation is kept and returned by every later Read.
func (s *FrameSource) HandleMessage(payload []byte) {
	in, err := DecodeFrame(payload)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		if s.err == nil {
			s.err = err
		}
		return
	}
	s.latest = in
	s.have = true
}

// Read returns the latest frame.
func (s *FrameSource) Read() (logic.Input, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return logic.Input{}, s.err
	}
	if !s.have {
		return logic.Input{}, ErrNoFrame
	}
	return s.latest, nil
}

// Close disconnects from the broker.
func (s *FrameSource) Close() error {
	if s.client != nil {
		s.client.Disconnect(1000)
	}
	return nil
}
