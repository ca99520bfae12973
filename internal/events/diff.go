package events

import (
	"slices"

	"github.com/nerrad567/bluegauge/internal/device"
)

// Diff returns the events that turn previous into current, grouped by device
// in identity order and, within a device, in Kind order. It only reads its
// arguments, so Diff(s, s) is always empty.
//
// Low-battery events follow the LowBatteryAcknowledged flag that the merge
// step maintains: false->true is a crossing and true->false a recovery. A
// device that is new and already low emits Added then LowBatteryCrossing.
func Diff(previous, current *device.Snapshot) []Event {
	ids := slices.Concat(previous.Identities(), current.Identities())
	slices.Sort(ids)
	ids = slices.Compact(ids)

	var out []Event
	for _, id := range ids {
		before, hadBefore := previous.Get(id)
		after, hasAfter := current.Get(id)

		switch {
		case !hadBefore:
			out = append(out, Event{Kind: Added, Identity: id, Device: after})
			if after.LowBatteryAcknowledged {
				out = append(out, Event{Kind: LowBatteryCrossing, Identity: id, Device: after})
			}
		case !hasAfter:
			out = append(out, Event{Kind: Removed, Identity: id, Device: before})
		default:
			out = appendChanges(out, before, after)
		}
	}
	return out
}

func appendChanges(out []Event, before, after device.Device) []Event {
	id := after.Identity

	switch {
	case !before.Connected() && after.Connected():
		out = append(out, Event{Kind: Reconnected, Identity: id, Device: after})
	case before.Connected() && !after.Connected():
		out = append(out, Event{Kind: Disconnected, Identity: id, Device: after})
	}

	if before.Battery.Known() && after.Battery.Known() && before.Battery != after.Battery {
		out = append(out, Event{Kind: BatteryChanged, Identity: id, Device: after, PreviousBattery: before.Battery})
	}

	switch {
	case !before.LowBatteryAcknowledged && after.LowBatteryAcknowledged:
		out = append(out, Event{Kind: LowBatteryCrossing, Identity: id, Device: after})
	case before.LowBatteryAcknowledged && !after.LowBatteryAcknowledged:
		out = append(out, Event{Kind: LowBatteryRecovered, Identity: id, Device: after})
	}
	return out
}
