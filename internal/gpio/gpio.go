// Package gpio provides input frames from a bench harness wired to GPIO lines.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import (
	"errors"
	"fmt"
	"sort"

	"github.com/sweeney/assist-arbiter/internal/logic"
)

// Source produces one arbiter input frame per control cycle.
type Source interface {
	// Read returns the current frame.
	Read() (logic.Input, error)

	// Close releases resources.
	Close() error
}

// Boolean signal lines besides the buttons.
const (
	SignalCruiseAvailable = "cruiseAvailable"
	SignalCruiseEnabled   = "cruiseEnabled"
	SignalGas             = "gas"
	SignalBrake           = "brake"
)

// ErrMissingPin is returned when a required line has no pin assigned.
var ErrMissingPin = errors.New("gpio: missing pin")

// Pins maps a button wire name or signal name to a BCM line offset.
type Pins map[string]int

// requiredLines are the lines a harness must wire. The remaining signals
// read as released when absent.
func requiredLines() []string {
	names := make([]string, 0, len(logic.Buttons())+1)
	for _, id := range logic.Buttons() {
		names = append(names, id.String())
	}
	return append(names, SignalCruiseAvailable)
}

func knownLine(name string) bool {
	switch name {
	case SignalCruiseAvailable, SignalCruiseEnabled, SignalGas, SignalBrake:
		return true
	}
	_, ok := logic.ParseButtonID(name)
	return ok
}

// Validate reports unknown line names, missing required lines and pins
// shared by two lines.
func (p Pins) Validate() error {
	var missing []string
	for _, name := range requiredLines() {
		if _, ok := p[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrMissingPin, missing)
	}

	owner := make(map[int]string, len(p))
	for _, name := range p.names() {
		if !knownLine(name) {
			return fmt.Errorf("gpio: unknown line %q", name)
		}
		pin := p[name]
		if pin < 0 {
			return fmt.Errorf("gpio: line %q: negative pin %d", name, pin)
		}
		if other, dup := owner[pin]; dup {
			return fmt.Errorf("gpio: pin %d assigned to both %q and %q", pin, other, name)
		}
		owner[pin] = name
	}
	return nil
}

func (p Pins) names() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Bench holds the values a harness cannot supply over a digital line.
type Bench struct {
	VEgo     float64 // m/s
	Setpoint float64 // km/h, logic.SetpointUnset when none
}

// FrameFromLevels assembles a frame from logical line levels (true = active).
func FrameFromLevels(levels map[string]bool, bench Bench) logic.Input {
	var buttons logic.ButtonSnapshot
	for _, id := range logic.Buttons() {
		buttons = buttons.With(id, levels[id.String()])
	}

	return logic.Input{
		Buttons: buttons,
		Signals: logic.Signals{
			CruiseAvailable: levels[SignalCruiseAvailable],
			CruiseEnabled:   levels[SignalCruiseEnabled],
			GasPressed:      levels[SignalGas],
			BrakePressed:    levels[SignalBrake],
			Standstill:      bench.VEgo == 0,
			VEgo:            bench.VEgo,
			Gear:            logic.GearDrive,
			SensorsValid:    true,
		},
		Setpoint: bench.Setpoint,
	}
}

// DefaultPins is the reference harness wiring (BCM numbering).
func DefaultPins() Pins {
	return Pins{
		logic.ButtonResume.String():     5,
		logic.ButtonAccel.String():      6,
		logic.ButtonDecel.String():      13,
		logic.ButtonCancel.String():     19,
		logic.ButtonGapAdjust.String():  26,
		logic.ButtonLKAS.String():       16,
		logic.ButtonMainCruise.String(): 20,
		SignalCruiseAvailable:           21,
		SignalCruiseEnabled:             12,
		SignalGas:                       23,
		SignalBrake:                     24,
	}
}
