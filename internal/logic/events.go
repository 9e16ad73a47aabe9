package logic

// EventName is an outward vehicle event.
type EventName string

const (
	EventWrongGear           EventName = "wrongGear"
	EventReverseGear         EventName = "reverseGear"
	EventDoorOpen            EventName = "doorOpen"
	EventSeatbeltNotLatched  EventName = "seatbeltNotLatched"
	EventWrongCarMode        EventName = "wrongCarMode"
	EventESPDisabled         EventName = "espDisabled"
	EventAccFaulted          EventName = "accFaulted"
	EventSteerFaultTemporary EventName = "steerFaultTemporary"
	EventBelowEngageSpeed    EventName = "belowEngageSpeed"
	EventPedalPressed        EventName = "pedalPressed"

	EventLateralEngaged    EventName = "lateralEngaged"
	EventLateralDisengaged EventName = "lateralDisengaged"

	EventButtonCancel EventName = "buttonCancel"
	EventButtonEnable EventName = "buttonEnable"

	EventSensorsInvalid   EventName = "sensorsInvalid"
	EventStartupNoControl EventName = "startupNoControl"
)

// CommonEvents derives the generic event set from signals and the commanded
// longitudinal state.
func CommonEvents(cfg ArbiterConfig, sig Signals, accEnabled, pedalDisengaged bool) []EventName {
	var events []EventName

	if !forwardGear(sig.Gear, cfg.ExtraGears) {
		events = append(events, EventWrongGear)
	}
	if sig.Gear == GearReverse {
		events = append(events, EventReverseGear)
	}
	if sig.DoorOpen {
		events = append(events, EventDoorOpen)
	}
	if sig.SeatbeltUnlatched {
		events = append(events, EventSeatbeltNotLatched)
	}
	if !sig.CruiseAvailable {
		events = append(events, EventWrongCarMode)
	}
	if sig.ESPDisabled {
		events = append(events, EventESPDisabled)
	}
	if sig.AccFaulted {
		events = append(events, EventAccFaulted)
	}
	if sig.SteerFaulted {
		events = append(events, EventSteerFaultTemporary)
	}
	if accEnabled && cfg.MinEnableSpeed > 0 && sig.VEgo < cfg.MinEnableSpeed {
		events = append(events, EventBelowEngageSpeed)
	}
	if pedalDisengaged {
		events = append(events, EventPedalPressed)
	}
	return events
}

func forwardGear(g Gear, extra []Gear) bool {
	if g == GearDrive || g == GearUnknown || g == "" {
		return true
	}
	for _, e := range extra {
		if g == e {
			return true
		}
	}
	return false
}

// Aggregate builds the final event list: base events, then one engaged or
// disengaged event per mode change, then cancel and enable button events,
// then the unconditional status events. Duplicates are kept.
func Aggregate(base []EventName, buttons []ButtonEvent, flags StatusFlags) []EventName {
	events := make([]EventName, 0, len(base)+len(buttons)+2)
	events = append(events, base...)

	for _, b := range buttons {
		if !IsModeChange(b) {
			continue
		}
		if flags.LateralEnabled {
			events = append(events, EventLateralEngaged)
		} else {
			events = append(events, EventLateralDisengaged)
		}
	}

	for _, b := range buttons {
		if b.ID == ButtonCancel {
			events = append(events, EventButtonCancel)
		}
	}

	if !flags.StockCruiseDrivesLongitudinal {
		for _, b := range buttons {
			if !b.Pressed && (b.ID == ButtonAccel || b.ID == ButtonDecel) {
				events = append(events, EventButtonEnable)
			}
		}
	}

	if !flags.SensorsValid {
		events = append(events, EventSensorsInvalid)
	}
	if flags.HybridPlatform {
		events = append(events, EventStartupNoControl)
	}
	return events
}

// HasEvent reports whether name is present in events.
func HasEvent(events []EventName, name EventName) bool {
	for _, e := range events {
		if e == name {
			return true
		}
	}
	return false
}
