// Package status provides a thread-safe status tracker for the assist-arbiter
// daemon. It is read by the HTTP handlers and the MQTT lifecycle events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/assist-arbiter/internal/logic"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	PollMs        int64
	HeartbeatMs   int64
	Broker        string
	HTTPAddr      string
	Source        string
	Model         string
	LateralPolicy string
	StockLong     bool
}

// Counts accumulates per-session arbitration activity.
type Counts struct {
	Cycles            int
	LateralEngaged    int
	LateralDisengaged int
	Cancels           int
	PedalDisengages   int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	SessionID string
	Ready     bool // at least one frame arbitrated

	LateralEnabled     bool
	AccEnabled         bool
	CruiseStateEnabled bool
	FollowDistance     int
	LastEvents         []logic.EventName
	Counts             Counts

	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu            sync.RWMutex
	snap          Snapshot
	lastHeartbeat time.Time
}

// NewTracker creates a Tracker with the given start time, session and config.
func NewTracker(startTime time.Time, sessionID string, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			SessionID: sessionID,
			StartTime: startTime,
			Config:    cfg,
		},
		lastHeartbeat: startTime,
	}
}

// Record folds one cycle's output into the tracked state.
// Called from runLoop on every arbitrated frame.
func (t *Tracker) Record(out logic.Output) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := &t.snap
	s.Ready = true
	s.LateralEnabled = out.LateralEnabled
	s.AccEnabled = out.AccEnabled
	s.CruiseStateEnabled = out.CruiseStateEnabled
	s.FollowDistance = out.FollowDistance
	s.LastEvents = append([]logic.EventName(nil), out.Events...)

	s.Counts.Cycles++
	for _, e := range out.Events {
		switch e {
		case logic.EventLateralEngaged:
			s.Counts.LateralEngaged++
		case logic.EventLateralDisengaged:
			s.Counts.LateralDisengaged++
		}
	}
	if out.Cancelled {
		s.Counts.Cancels++
	}
	if out.PedalDisengaged {
		s.Counts.PedalDisengages++
	}
}

// HeartbeatDue reports whether interval has elapsed since the last heartbeat
// (or start) and, if so, restarts the interval at now. A zero interval
// disables heartbeats.
func (t *Tracker) HeartbeatDue(now time.Time, interval time.Duration) bool {
	if interval <= 0 {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if now.Sub(t.lastHeartbeat) < interval {
		return false
	}
	t.lastHeartbeat = now
	return true
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.LastEvents = append([]logic.EventName(nil), t.snap.LastEvents...)
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
