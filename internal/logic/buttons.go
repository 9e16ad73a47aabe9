package logic

import (
	"errors"
	"fmt"
	"sort"
)

// ErrSignalContract reports a snapshot that does not match the fixed button
// or signal set. It is an integration error and must not be defaulted away.
var ErrSignalContract = errors.New("signal contract violation")

// ButtonID identifies a physical or virtual driver control.
type ButtonID int

const (
	ButtonResume ButtonID = iota
	ButtonAccel
	ButtonDecel
	ButtonCancel
	ButtonGapAdjust
	ButtonLKAS
	ButtonMainCruise

	numButtons
)

// ButtonModeToggle is the virtual button carried by mode-change events.
// It never appears in a ButtonSnapshot.
const ButtonModeToggle ButtonID = numButtons

var buttonNames = [...]string{
	ButtonResume:     "resumeCruise",
	ButtonAccel:      "accelCruise",
	ButtonDecel:      "decelCruise",
	ButtonCancel:     "cancel",
	ButtonGapAdjust:  "gapAdjustCruise",
	ButtonLKAS:       "lkas",
	ButtonMainCruise: "mainCruise",
	ButtonModeToggle: "modeToggle",
}

// String returns the wire name of the button.
func (b ButtonID) String() string {
	if b < 0 || int(b) >= len(buttonNames) {
		return fmt.Sprintf("button(%d)", int(b))
	}
	return buttonNames[b]
}

// ParseButtonID maps a wire name back to a snapshot ButtonID.
// The virtual mode toggle is not accepted.
func ParseButtonID(name string) (ButtonID, bool) {
	for _, id := range Buttons() {
		if buttonNames[id] == name {
			return id, true
		}
	}
	return 0, false
}

// Buttons returns every snapshot ButtonID in canonical order.
func Buttons() []ButtonID {
	ids := make([]ButtonID, numButtons)
	for i := range ids {
		ids[i] = ButtonID(i)
	}
	return ids
}

// ButtonSnapshot holds the pressed state of every button. Being an array it
// is total by construction.
type ButtonSnapshot [numButtons]bool

// With returns a copy of s with id set to pressed.
func (s ButtonSnapshot) With(id ButtonID, pressed bool) ButtonSnapshot {
	s[id] = pressed
	return s
}

// Map returns the snapshot keyed by wire name.
func (s ButtonSnapshot) Map() map[string]bool {
	m := make(map[string]bool, numButtons)
	for _, id := range Buttons() {
		m[id.String()] = s[id]
	}
	return m
}

// ParseButtons converts an externally decoded name->pressed map into a
// snapshot. Every known button must be present and no unknown name may
// appear.
func ParseButtons(m map[string]bool) (ButtonSnapshot, error) {
	var s ButtonSnapshot
	for name, pressed := range m {
		id, ok := ParseButtonID(name)
		if !ok {
			return s, fmt.Errorf("%w: unknown button %q", ErrSignalContract, name)
		}
		s[id] = pressed
	}

	var missing []string
	for _, id := range Buttons() {
		if _, ok := m[id.String()]; !ok {
			missing = append(missing, id.String())
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return s, fmt.Errorf("%w: missing buttons %v", ErrSignalContract, missing)
	}
	return s, nil
}

// ButtonEdge is a single press or release observed between two snapshots.
type ButtonEdge struct {
	ID      ButtonID
	Pressed bool
}

// ButtonEvent is the outward form of an edge. Synthetic mode events use
// ButtonModeToggle.
type ButtonEvent = ButtonEdge

// DetectEdges returns one edge per button whose state differs between prev
// and cur, carrying the new state, in canonical ButtonID order.
func DetectEdges(prev, cur ButtonSnapshot) []ButtonEdge {
	var edges []ButtonEdge
	for _, id := range Buttons() {
		if prev[id] != cur[id] {
			edges = append(edges, ButtonEdge{ID: id, Pressed: cur[id]})
		}
	}
	return edges
}

func hasEdge(edges []ButtonEdge, id ButtonID) bool {
	for _, e := range edges {
		if e.ID == id {
			return true
		}
	}
	return false
}
