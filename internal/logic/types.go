// Package logic contains the pure per-cycle arbitration logic for lateral and
// longitudinal assist engagement.
// This package has NO external dependencies (no GPIO, MQTT, OS, or clocks).
// All state is threaded through Advance explicitly; nothing here is mutated
// behind the caller's back.
package logic

// Gear is the reported gear selector position.
type Gear string

const (
	GearUnknown   Gear = "unknown"
	GearPark      Gear = "park"
	GearDrive     Gear = "drive"
	GearNeutral   Gear = "neutral"
	GearReverse   Gear = "reverse"
	GearSport     Gear = "sport"
	GearLow       Gear = "low"
	GearBrake     Gear = "brake"
	GearEco       Gear = "eco"
	GearManumatic Gear = "manumatic"
)

// SetpointUnset is the commanded-speed sentinel meaning "no setpoint yet".
const SetpointUnset = 255.0

// Signals is the per-cycle vehicle state decoded by the bus collaborator.
// It is read-only for the duration of one Advance call.
type Signals struct {
	CruiseAvailable   bool // stock cruise main switch on / cruise available
	CruiseEnabled     bool // stock cruise actively controlling speed
	GasPressed        bool
	BrakePressed      bool
	RegenBraking      bool
	Standstill        bool
	VEgo              float64 // m/s
	Gear              Gear
	SensorsValid      bool
	HybridPlatform    bool
	DoorOpen          bool
	SeatbeltUnlatched bool
	ESPDisabled       bool
	AccFaulted        bool
	SteerFaulted      bool
}

// Input is everything Advance consumes for one cycle.
type Input struct {
	Buttons ButtonSnapshot
	Signals Signals
	// Setpoint is the driver-requested cruise speed from the outward control
	// command (km/h). Zero or SetpointUnset means none.
	Setpoint float64
}

// LateralPolicy selects how lateral engagement is reconciled against ACC.
type LateralPolicy int

const (
	// LateralIndependent never couples lateral to ACC.
	LateralIndependent LateralPolicy = iota
	// LateralEngageWithACC forces lateral on when ACC becomes active.
	LateralEngageWithACC
	// LateralFollowACC holds lateral on for as long as ACC is active.
	LateralFollowACC
)

// FollowDistanceConfig bounds the follow-distance setting.
// Direction is +1 or -1; stepping past either bound wraps to the other.
// Default may sit outside [Min, Max] (e.g. a "stock" profile); the first
// step brings it into range.
type FollowDistanceConfig struct {
	Min       int
	Max       int
	Default   int
	Direction int
}

// ArbiterConfig is the subset of vehicle parameters the arbiter needs.
type ArbiterConfig struct {
	SupportsLateralArbitration    bool
	StockCruiseDrivesLongitudinal bool
	// StockCruiseSpeedHoldover means stock cruise owns the set speed, so
	// button releases do not enable ACC; it follows stock cruise instead.
	StockCruiseSpeedHoldover bool
	// MinEnableSpeed in m/s; <= 0 means no minimum.
	MinEnableSpeed         float64
	LateralPolicy          LateralPolicy
	DisengageOnAccelerator bool
	FollowDistance         FollowDistanceConfig
	// ExtraGears are accepted as forward gears in addition to drive.
	ExtraGears []Gear
}

// State is the arbiter's persistent state. The zero value is the initial
// state: both modes disengaged, no buttons held.
type State struct {
	LateralEnabled bool
	AccEnabled     bool

	// Derived flags latched from the previous cycle, for edge detection.
	PriorCruiseMain bool
	PriorLKAS       bool
	PriorAccActive  bool
	PriorGas        bool
	PriorBrake      bool
	PriorRegen      bool

	// ModeEdgeLocked is set while a mode-change event awaits its
	// acknowledgement event.
	ModeEdgeLocked bool

	// FollowDistance is 0 until first resolved from the config default.
	FollowDistance int

	// Buttons is the previous cycle's button snapshot.
	Buttons ButtonSnapshot
}

// Output is the per-cycle result merged by the caller into the outward
// vehicle state.
type Output struct {
	LateralEnabled     bool
	AccEnabled         bool
	CruiseStateEnabled bool
	FollowDistance     int
	ButtonEvents       []ButtonEvent
	Events             []EventName

	// Cancelled is set when a cancel edge disengaged both modes.
	Cancelled bool
	// PedalDisengaged is set when the pedal predicate disengaged both modes.
	PedalDisengaged bool
}

// StatusFlags carries the flags EventAggregator needs beyond the events.
type StatusFlags struct {
	LateralEnabled                bool
	StockCruiseDrivesLongitudinal bool
	SensorsValid                  bool
	HybridPlatform                bool
}
