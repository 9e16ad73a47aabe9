// Package vehicle resolves per-model vehicle parameters: a fixed table of
// built-in defaults per model, overlaid field-by-field from an optional
// tuning document.
package vehicle

import (
	"errors"
	"fmt"
	"sort"

	"github.com/sweeney/assist-arbiter/internal/logic"
)

// Unit conversions.
const (
	MPHToMS = 0.44704
	LBToKG  = 0.453592576
	InchToM = 0.0254
)

// CarName is the platform family every model belongs to.
const CarName = "ford"

// noMinimum is the MinEnableSpeed sentinel for "engage at any speed".
const noMinimum = -1.0

// ErrUnsupportedModel is wrapped by the ConfigError returned for a model
// with no built-in record.
var ErrUnsupportedModel = errors.New("unsupported vehicle model")

// ConfigError is a malformed or inconsistent vehicle configuration. It is
// fatal and raised before the control loop starts.
type ConfigError struct {
	Key string
	Err error
}

func (e *ConfigError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("vehicle config %s: %v", e.Key, e.Err)
	}
	return fmt.Sprintf("vehicle config: %v", e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Model identifies a supported vehicle platform.
type Model string

const (
	ModelBroncoSportMk1 Model = "BRONCO_SPORT_MK1"
	ModelEscapeMk4      Model = "ESCAPE_MK4"
	ModelExplorerMk6    Model = "EXPLORER_MK6"
	ModelF150Mk14       Model = "F_150_MK14"
	ModelFocusMk4       Model = "FOCUS_MK4"
	ModelMaverickMk1    Model = "MAVERICK_MK1"
)

type geometry struct {
	wheelbase  float64 // m
	steerRatio float64
	mass       float64 // kg
}

var models = map[Model]geometry{
	ModelBroncoSportMk1: {wheelbase: 2.67, steerRatio: 17.7, mass: 1625},
	ModelEscapeMk4:      {wheelbase: 2.71, steerRatio: 16.7, mass: 1750},
	ModelExplorerMk6:    {wheelbase: 3.025, steerRatio: 16.8, mass: 2050},
	// SuperCrew trim
	ModelF150Mk14:    {wheelbase: 145.4 * InchToM, steerRatio: 17.4, mass: 4501 * LBToKG},
	ModelFocusMk4:    {wheelbase: 2.7, steerRatio: 15.0, mass: 1350},
	ModelMaverickMk1: {wheelbase: 3.076, steerRatio: 17.0, mass: 1650},
}

// dashcamOnly models are resolved but not allowed to control by default.
var dashcamOnly = map[Model]bool{
	ModelF150Mk14: true,
}

// Models returns every supported model, sorted.
func Models() []Model {
	out := make([]Model, 0, len(models))
	for m := range models {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseModel validates a model identifier.
func ParseModel(s string) (Model, error) {
	m := Model(s)
	if _, ok := models[m]; !ok {
		return "", &ConfigError{Key: "model", Err: fmt.Errorf("%w: %q", ErrUnsupportedModel, s)}
	}
	return m, nil
}

// Transmission is the detected transmission type.
type Transmission string

const (
	TransmissionAutomatic Transmission = "automatic"
	TransmissionManual    Transmission = "manual"
)

// LongitudinalTuning holds longitudinal controller tuning.
type LongitudinalTuning struct {
	StoppingControl         bool
	StartingState           bool
	StartAccel              float64
	VEgoStarting            float64
	VEgoStopping            float64
	StopAccel               float64
	StoppingDecelRate       float64
	ActuatorDelayLowerBound float64
	ActuatorDelayUpperBound float64

	Kf         float64
	KpBP       []float64
	KpV        []float64
	KiBP       []float64
	KiV        []float64
	DeadzoneBP []float64
	DeadzoneV  []float64
}

// Params is the resolved per-vehicle parameter record.
type Params struct {
	Model   Model
	CarName string

	DashcamOnly      bool
	RadarUnavailable bool

	SteerControlType   string
	SteerActuatorDelay float64 // s
	SteerLimitTimer    float64 // s

	Wheelbase     float64 // m
	SteerRatio    float64
	Mass          float64 // kg
	CenterToFront float64 // m

	Transmission   Transmission
	MinEnableSpeed float64 // m/s, -1 for none
	MinSteerSpeed  float64 // m/s
	AutoResumeSng  bool

	ExperimentalLongitudinalAvailable bool
	OpenpilotLongitudinalControl      bool
	StockCruiseSpeedHoldover          bool

	SupportsLateralArbitration bool
	LateralPolicy              logic.LateralPolicy
	DisengageOnAccelerator     bool
	FollowDistance             logic.FollowDistanceConfig

	Longitudinal LongitudinalTuning
}

// Options carries facts detected by other collaborators (fingerprinting,
// user toggles) that select between built-in defaults.
type Options struct {
	ExperimentalLongitudinal bool
	Automatic                bool
}

// Defaults returns the built-in record for model, without any overlay.
func Defaults(model Model, opts Options) (Params, error) {
	g, ok := models[model]
	if !ok {
		return Params{}, &ConfigError{Key: "model", Err: fmt.Errorf("%w: %q", ErrUnsupportedModel, string(model))}
	}

	p := Params{
		Model:              model,
		CarName:            CarName,
		DashcamOnly:        dashcamOnly[model],
		RadarUnavailable:   true,
		SteerControlType:   "angle",
		SteerActuatorDelay: 0.2,
		SteerLimitTimer:    1.0,
		Wheelbase:          g.wheelbase,
		SteerRatio:         g.steerRatio,
		Mass:               g.mass,
		Transmission:       TransmissionAutomatic,
		MinEnableSpeed:     noMinimum,
		// LCA can steer down to zero
		MinSteerSpeed: 0,

		ExperimentalLongitudinalAvailable: true,
		OpenpilotLongitudinalControl:      opts.ExperimentalLongitudinal,
		StockCruiseSpeedHoldover:          true,

		SupportsLateralArbitration: true,
		LateralPolicy:              logic.LateralEngageWithACC,
		FollowDistance:             logic.FollowDistanceConfig{Min: 1, Max: 3, Default: 4, Direction: -1},
	}
	if !opts.Automatic {
		p.Transmission = TransmissionManual
		p.MinEnableSpeed = 20.0 * MPHToMS
	}
	return p, nil
}

// Resolve builds the final Params for model: built-in defaults, then the
// overlay, then derived fields. Unknown overlay keys are returned so the
// caller can report them; they are otherwise ignored.
func Resolve(model Model, overlay Overlay, opts Options) (Params, []string, error) {
	p, err := Defaults(model, opts)
	if err != nil {
		return Params{}, nil, err
	}

	ignored, err := ApplyOverlay(&p, overlay)
	if err != nil {
		return Params{}, ignored, err
	}

	p.CenterToFront = p.Wheelbase * 0.44
	p.AutoResumeSng = p.MinEnableSpeed == noMinimum

	if err := p.Validate(); err != nil {
		return Params{}, ignored, err
	}
	return p, ignored, nil
}

// Validate checks the record for internal consistency.
func (p Params) Validate() error {
	switch {
	case p.Wheelbase <= 0:
		return &ConfigError{Key: "wheelbase", Err: fmt.Errorf("must be positive, got %v", p.Wheelbase)}
	case p.SteerRatio <= 0:
		return &ConfigError{Key: "steerRatio", Err: fmt.Errorf("must be positive, got %v", p.SteerRatio)}
	case p.Mass <= 0:
		return &ConfigError{Key: "mass", Err: fmt.Errorf("must be positive, got %v", p.Mass)}
	}

	fd := p.FollowDistance
	if fd.Min < 1 || fd.Max < fd.Min {
		return &ConfigError{Key: "followDistance", Err: fmt.Errorf("invalid bounds [%d, %d]", fd.Min, fd.Max)}
	}
	if fd.Direction != 1 && fd.Direction != -1 {
		return &ConfigError{Key: "followDistance_direction", Err: fmt.Errorf("must be 1 or -1, got %d", fd.Direction)}
	}
	if fd.Default < 1 {
		return &ConfigError{Key: "followDistance_default", Err: fmt.Errorf("must be positive, got %d", fd.Default)}
	}
	return nil
}

// ArbiterConfig extracts the arbiter's view of the vehicle.
func (p Params) ArbiterConfig() logic.ArbiterConfig {
	return logic.ArbiterConfig{
		SupportsLateralArbitration:    p.SupportsLateralArbitration,
		StockCruiseDrivesLongitudinal: !p.OpenpilotLongitudinalControl,
		StockCruiseSpeedHoldover:      p.StockCruiseSpeedHoldover,
		MinEnableSpeed:                p.MinEnableSpeed,
		LateralPolicy:                 p.LateralPolicy,
		DisengageOnAccelerator:        p.DisengageOnAccelerator,
		FollowDistance:                p.FollowDistance,
		ExtraGears:                    []logic.Gear{logic.GearManumatic},
	}
}
