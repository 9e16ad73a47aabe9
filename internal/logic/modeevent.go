package logic

// EmitModeEvent produces the synthetic mode events for one cycle.
//
// A lateral transition emits a ButtonModeToggle press and locks the edge.
// The next cycle without a transition emits the matching release and
// unlocks. A transition arriving while still locked emits the pending
// release followed by a new press, so each transition yields exactly one
// press. Pressed always equals the lock state after the event.
func EmitModeEvent(prevLateral, curLateral, locked bool) ([]ButtonEvent, bool) {
	if prevLateral != curLateral {
		if locked {
			return []ButtonEvent{
				{ID: ButtonModeToggle, Pressed: false},
				{ID: ButtonModeToggle, Pressed: true},
			}, true
		}
		return []ButtonEvent{{ID: ButtonModeToggle, Pressed: true}}, true
	}
	if locked {
		return []ButtonEvent{{ID: ButtonModeToggle, Pressed: false}}, false
	}
	return nil, false
}

// IsModeChange reports whether e marks a lateral mode transition.
func IsModeChange(e ButtonEvent) bool {
	return e.ID == ButtonModeToggle && e.Pressed
}
