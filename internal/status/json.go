package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	SessionID     string       `json:"session_id"`
	Ready         bool         `json:"ready"`
	Assist        AssistJSON   `json:"assist"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"counts"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// AssistJSON is the current arbitration state.
type AssistJSON struct {
	LateralEnabled     bool     `json:"lateral_enabled"`
	AccEnabled         bool     `json:"acc_enabled"`
	CruiseStateEnabled bool     `json:"cruise_state_enabled"`
	FollowDistance     int      `json:"follow_distance"`
	Events             []string `json:"events"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of session counts.
type CountsJSON struct {
	Cycles            int `json:"cycles"`
	LateralEngaged    int `json:"lateral_engaged"`
	LateralDisengaged int `json:"lateral_disengaged"`
	Cancels           int `json:"cancels"`
	PedalDisengages   int `json:"pedal_disengages"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollMs        int64  `json:"poll_ms"`
	HeartbeatMs   int64  `json:"heartbeat_ms"`
	Broker        string `json:"broker"`
	HTTPAddr      string `json:"http_addr"`
	Source        string `json:"source"`
	Model         string `json:"model"`
	LateralPolicy string `json:"lateral_policy"`
	StockLong     bool   `json:"stock_longitudinal"`
}

func buildInner(snap Snapshot) StatusInner {
	events := make([]string, 0, len(snap.LastEvents))
	for _, e := range snap.LastEvents {
		events = append(events, string(e))
	}

	inner := StatusInner{
		SessionID: snap.SessionID,
		Ready:     snap.Ready,
		Assist: AssistJSON{
			LateralEnabled:     snap.LateralEnabled,
			AccEnabled:         snap.AccEnabled,
			CruiseStateEnabled: snap.CruiseStateEnabled,
			FollowDistance:     snap.FollowDistance,
			Events:             events,
		},
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts:        CountsJSON(snap.Counts),
		Config:        ConfigJSON(snap.Config),
	}

	if n := snap.Network; n != nil {
		inner.Network = &NetworkJSON{
			Type:       n.Type,
			IP:         n.IP,
			Status:     n.Status,
			Gateway:    n.Gateway,
			WifiStatus: n.WifiStatus,
			SSID:       n.SSID,
		}
	}
	return inner
}

// FormatJSON returns the indented JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
