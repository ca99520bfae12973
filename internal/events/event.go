package events

import (
	"fmt"

	"github.com/nerrad567/bluegauge/internal/device"
)

// Kind is the type of a device event. Kinds are declared in the order they
// are emitted for a single device.
type Kind int

const (
	Added Kind = iota
	Removed
	Reconnected
	Disconnected
	BatteryChanged
	LowBatteryCrossing
	LowBatteryRecovered
)

var kindNames = [...]string{
	Added:               "added",
	Removed:             "removed",
	Reconnected:         "reconnected",
	Disconnected:        "disconnected",
	BatteryChanged:      "battery_changed",
	LowBatteryCrossing:  "low_battery",
	LowBatteryRecovered: "low_battery_recovered",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Event describes one change to one device between two snapshots.
type Event struct {
	Kind     Kind   `json:"kind"`
	Identity string `json:"identity"`
	// Device is the device as it is in the current snapshot, or as it was
	// last seen for Removed.
	Device device.Device `json:"device"`
	// PreviousBattery is set for BatteryChanged.
	PreviousBattery device.Battery `json:"previous_battery"`
}

func (e Event) String() string {
	if e.Kind == BatteryChanged {
		return fmt.Sprintf("%s %s %s->%s", e.Kind, e.Identity, e.PreviousBattery, e.Device.Battery)
	}
	return fmt.Sprintf("%s %s", e.Kind, e.Identity)
}
