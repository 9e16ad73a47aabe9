package logic

import "fmt"

// lateralAction is what a cycle's main-cruise/LKAS edges do to lateral.
type lateralAction int

const (
	lateralKeep lateralAction = iota
	lateralSet
	lateralFlip
	lateralClear
)

func (a lateralAction) apply(lateral bool) bool {
	switch a {
	case lateralSet:
		return true
	case lateralFlip:
		return !lateral
	case lateralClear:
		return false
	default:
		return lateral
	}
}

// lateralTransitions is indexed by priorMain<<3 | priorLKAS<<2 | main<<1 | lkas.
// A rising main-cruise edge sets lateral, a rising LKAS edge flips it. When
// both rise in the same cycle the set is applied first and then flipped, so
// lateral ends up off.
var lateralTransitions = [16]lateralAction{
	0b0000: lateralKeep,
	0b0001: lateralFlip,
	0b0010: lateralSet,
	0b0011: lateralClear,
	0b0100: lateralKeep,
	0b0101: lateralKeep,
	0b0110: lateralSet,
	0b0111: lateralSet,
	0b1000: lateralKeep,
	0b1001: lateralFlip,
	0b1010: lateralKeep,
	0b1011: lateralFlip,
	0b1100: lateralKeep,
	0b1101: lateralKeep,
	0b1110: lateralKeep,
	0b1111: lateralKeep,
}

func transitionIndex(priorMain, priorLKAS, main, lkas bool) int {
	i := 0
	for _, b := range [...]bool{priorMain, priorLKAS, main, lkas} {
		i <<= 1
		if b {
			i |= 1
		}
	}
	return i
}

var lateralPolicyNames = [...]string{
	LateralIndependent:   "independent",
	LateralEngageWithACC: "engage-with-acc",
	LateralFollowACC:     "follow-acc",
}

func (p LateralPolicy) String() string {
	if p < 0 || int(p) >= len(lateralPolicyNames) {
		return fmt.Sprintf("policy(%d)", int(p))
	}
	return lateralPolicyNames[p]
}

// ParseLateralPolicy parses the names produced by LateralPolicy.String.
func ParseLateralPolicy(s string) (LateralPolicy, error) {
	for i, name := range lateralPolicyNames {
		if name == s {
			return LateralPolicy(i), nil
		}
	}
	return 0, fmt.Errorf("unknown lateral policy %q", s)
}

// reconcile maps (accActive, accRising, lateral) to the next lateral value.
// Every combination is defined for every policy.
func (p LateralPolicy) reconcile(accActive, accRising, lateral bool) bool {
	switch p {
	case LateralEngageWithACC:
		return lateral || accRising
	case LateralFollowACC:
		return lateral || accActive
	default:
		return lateral
	}
}

// SetpointValid reports whether a commanded setpoint can be resumed to.
func SetpointValid(setpoint float64) bool {
	return setpoint > 0 && setpoint < SetpointUnset
}

// Step detects button edges against the previous snapshot held in s and
// advances the arbiter by one cycle.
func Step(cfg ArbiterConfig, in Input, s State) (Output, State) {
	return Advance(cfg, in, DetectEdges(s.Buttons, in.Buttons), s)
}

// Advance runs one arbitration cycle. It is a pure function of its inputs:
// the same (cfg, in, edges, s) always yields the same (Output, State).
func Advance(cfg ArbiterConfig, in Input, edges []ButtonEdge, s State) (Output, State) {
	sig := in.Signals
	next := s
	next.Buttons = in.Buttons
	if next.FollowDistance == 0 {
		next.FollowDistance = cfg.FollowDistance.Default
	}

	cruiseMain := sig.CruiseAvailable
	lkas := in.Buttons[ButtonLKAS]

	next.AccEnabled = accFromEdges(cfg, in, edges, s.AccEnabled)
	accActive := sig.CruiseEnabled || next.AccEnabled

	if sig.CruiseAvailable {
		if cfg.SupportsLateralArbitration {
			action := lateralTransitions[transitionIndex(s.PriorCruiseMain, s.PriorLKAS, cruiseMain, lkas)]
			next.LateralEnabled = action.apply(s.LateralEnabled)
			next.LateralEnabled = cfg.LateralPolicy.reconcile(accActive, accActive && !s.PriorAccActive, next.LateralEnabled)
		} else {
			next.LateralEnabled = false
		}
		next.FollowDistance = stepFollowDistance(cfg.FollowDistance, next.FollowDistance, edges)
	} else {
		next.LateralEnabled = false
	}

	var out Output

	if !cfg.StockCruiseDrivesLongitudinal || cfg.MinEnableSpeed > 0 {
		if hasEdge(edges, ButtonCancel) {
			next.LateralEnabled, next.AccEnabled = false, false
			out.Cancelled = true
		}
	}

	cruiseState := next.AccEnabled
	if cfg.StockCruiseDrivesLongitudinal {
		cruiseState = sig.CruiseEnabled
	}

	if pedalDisengage(cfg, sig, s) {
		next.LateralEnabled, next.AccEnabled = false, false
		out.PedalDisengaged = true
		if cfg.StockCruiseDrivesLongitudinal {
			cruiseState = false
		} else {
			cruiseState = next.AccEnabled
		}
	}

	if cfg.StockCruiseDrivesLongitudinal && cfg.StockCruiseSpeedHoldover {
		if cfg.MinEnableSpeed > 0 {
			if sig.GasPressed && !cruiseState {
				next.AccEnabled = false
			}
			next.AccEnabled = cruiseState || next.AccEnabled
		} else {
			next.AccEnabled = cruiseState
		}
	}

	if !sig.CruiseAvailable {
		next.LateralEnabled, next.AccEnabled = false, false
		cruiseState = false
	}

	next.PriorCruiseMain = cruiseMain
	next.PriorLKAS = lkas
	next.PriorAccActive = accActive
	next.PriorGas = sig.GasPressed
	next.PriorBrake = sig.BrakePressed
	next.PriorRegen = sig.RegenBraking

	modeEvents, locked := EmitModeEvent(s.LateralEnabled, next.LateralEnabled, s.ModeEdgeLocked)
	next.ModeEdgeLocked = locked

	buttonEvents := make([]ButtonEvent, 0, len(edges)+len(modeEvents))
	buttonEvents = append(buttonEvents, edges...)
	buttonEvents = append(buttonEvents, modeEvents...)

	out.LateralEnabled = next.LateralEnabled
	out.AccEnabled = next.AccEnabled
	out.CruiseStateEnabled = cruiseState
	out.FollowDistance = next.FollowDistance
	out.ButtonEvents = buttonEvents
	out.Events = Aggregate(
		CommonEvents(cfg, sig, next.AccEnabled, out.PedalDisengaged),
		buttonEvents,
		StatusFlags{
			LateralEnabled:                next.LateralEnabled,
			StockCruiseDrivesLongitudinal: cfg.StockCruiseDrivesLongitudinal,
			SensorsValid:                  sig.SensorsValid,
			HybridPlatform:                sig.HybridPlatform,
		},
	)
	return out, next
}

// accFromEdges applies enabling button releases. Accel and decel enable on
// release; resume enables on release only with a valid setpoint. When stock
// cruise owns the set speed the buttons do not enable ACC.
func accFromEdges(cfg ArbiterConfig, in Input, edges []ButtonEdge, acc bool) bool {
	if !in.Signals.CruiseAvailable {
		return false
	}
	if cfg.StockCruiseDrivesLongitudinal && cfg.StockCruiseSpeedHoldover {
		return acc
	}
	for _, e := range edges {
		if e.Pressed {
			continue
		}
		switch e.ID {
		case ButtonAccel, ButtonDecel:
			acc = true
		case ButtonResume:
			if SetpointValid(in.Setpoint) {
				acc = true
			}
		}
	}
	return acc
}

// pedalDisengage reports a rising accelerator press (when configured), or a
// brake/regen application that is new or happens while moving.
func pedalDisengage(cfg ArbiterConfig, sig Signals, prev State) bool {
	gas := cfg.DisengageOnAccelerator && sig.GasPressed && !prev.PriorGas
	brake := sig.BrakePressed && (!prev.PriorBrake || !sig.Standstill)
	regen := sig.RegenBraking && (!prev.PriorRegen || !sig.Standstill)
	return gas || brake || regen
}
