// Package mqtt carries arbiter frames in and arbiter output out over MQTT,
// with an abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/assist-arbiter/internal/logic"
)

// TopicState is the MQTT topic for per-cycle arbiter output.
const TopicState = "vehicle/assist/state"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "vehicle/assist/system"

// TopicFrames is the MQTT topic input frames are read from.
const TopicFrames = "vehicle/assist/frames"

// Publisher publishes arbiter output to MQTT.
type Publisher interface {
	// Publish sends one cycle's output to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(out logic.Output, t time.Time) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload is the MQTT message payload for arbiter output.
type Payload struct {
	Assist AssistPayload `json:"assist"`
}

// AssistPayload contains one cycle's arbitration result.
type AssistPayload struct {
	Timestamp          string               `json:"timestamp"`
	LateralEnabled     bool                 `json:"lateral_enabled"`
	AccEnabled         bool                 `json:"acc_enabled"`
	CruiseStateEnabled bool                 `json:"cruise_state_enabled"`
	FollowDistance     int                  `json:"follow_distance"`
	Cancelled          bool                 `json:"cancelled,omitempty"`
	PedalDisengaged    bool                 `json:"pedal_disengaged,omitempty"`
	ButtonEvents       []ButtonEventPayload `json:"button_events"`
	Events             []string             `json:"events"`
}

// ButtonEventPayload is a single button press or release.
type ButtonEventPayload struct {
	Button  string `json:"button"`
	Pressed bool   `json:"pressed"`
}

// FormatPayload creates the JSON payload for one cycle's output.
// Empty event lists are rendered as [] rather than null.
func FormatPayload(out logic.Output, t time.Time) ([]byte, error) {
	buttons := make([]ButtonEventPayload, 0, len(out.ButtonEvents))
	for _, e := range out.ButtonEvents {
		buttons = append(buttons, ButtonEventPayload{Button: e.ID.String(), Pressed: e.Pressed})
	}
	events := make([]string, 0, len(out.Events))
	for _, e := range out.Events {
		events = append(events, string(e))
	}

	payload := Payload{
		Assist: AssistPayload{
			Timestamp:          t.UTC().Format(time.RFC3339Nano),
			LateralEnabled:     out.LateralEnabled,
			AccEnabled:         out.AccEnabled,
			CruiseStateEnabled: out.CruiseStateEnabled,
			FollowDistance:     out.FollowDistance,
			Cancelled:          out.Cancelled,
			PedalDisengaged:    out.PedalDisengaged,
			ButtonEvents:       buttons,
			Events:             events,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
