package device

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Backend is a discovery mechanism that can report a device.
type Backend uint8

// Backends known to the registry.
const (
	BackendBLE Backend = 1 << iota
	BackendClassic
	BackendPnP
)

var backendNames = map[Backend]string{
	BackendBLE:     "ble",
	BackendClassic: "classic",
	BackendPnP:     "pnp",
}

func (b Backend) String() string {
	if name, ok := backendNames[b]; ok {
		return name
	}
	return "backend(" + strconv.Itoa(int(b)) + ")"
}

// ParseBackend accepts the lowercase names produced by Backend.String.
func ParseBackend(s string) (Backend, error) {
	for b, name := range backendNames {
		if strings.EqualFold(s, name) {
			return b, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidBackend, s)
}

// BackendSet is a bitmask of Backends.
type BackendSet uint8

// AllBackends contains every known backend.
const AllBackends = BackendSet(BackendBLE | BackendClassic | BackendPnP)

// SetOf builds a set from individual backends.
func SetOf(backends ...Backend) BackendSet {
	var s BackendSet
	for _, b := range backends {
		s = s.With(b)
	}
	return s
}

func (s BackendSet) Has(b Backend) bool            { return s&BackendSet(b) != 0 }
func (s BackendSet) With(b Backend) BackendSet     { return s | BackendSet(b) }
func (s BackendSet) Union(o BackendSet) BackendSet { return s | o }
func (s BackendSet) Empty() bool                   { return s == 0 }

// Covers reports whether every backend in o is also in s.
func (s BackendSet) Covers(o BackendSet) bool { return s&o == o }

// List returns the members in ascending bit order.
func (s BackendSet) List() []Backend {
	var out []Backend
	for _, b := range []Backend{BackendBLE, BackendClassic, BackendPnP} {
		if s.Has(b) {
			out = append(out, b)
		}
	}
	return out
}

func (s BackendSet) String() string {
	if s == 0 {
		return "none"
	}
	parts := make([]string, 0, 3)
	for _, b := range s.List() {
		parts = append(parts, b.String())
	}
	return strings.Join(parts, "+")
}

// Battery is a charge level in whole percent, or unknown. The zero value is
// unknown so adapters that cannot read a level need not set anything.
type Battery struct {
	level uint8
	known bool
}

// BatteryUnknown is the explicit unknown reading.
var BatteryUnknown = Battery{}

// BatteryPercent returns a known reading. Values outside 0..100 are treated
// as unknown rather than clamped.
func BatteryPercent(p int) Battery {
	if p < 0 || p > 100 {
		return BatteryUnknown
	}
	return Battery{level: uint8(p), known: true}
}

func (b Battery) Known() bool { return b.known }

// Level returns the percentage and whether it is known.
func (b Battery) Level() (int, bool) { return int(b.level), b.known }

func (b Battery) String() string {
	if !b.known {
		return "unknown"
	}
	return strconv.Itoa(int(b.level)) + "%"
}

// MarshalJSON encodes a known level as a number and unknown as null.
func (b Battery) MarshalJSON() ([]byte, error) {
	if !b.known {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(int(b.level))), nil
}

func (b *Battery) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*b = BatteryUnknown
		return nil
	}
	var p int
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*b = BatteryPercent(p)
	return nil
}

// ConnectionState is whether any backend currently sees the device linked.
type ConnectionState uint8

const (
	StateDisconnected ConnectionState = iota
	StateConnected
)

func (c ConnectionState) String() string {
	if c == StateConnected {
		return "connected"
	}
	return "disconnected"
}

// ParseConnectionState is the inverse of ConnectionState.String.
func ParseConnectionState(s string) (ConnectionState, error) {
	switch strings.ToLower(s) {
	case "connected":
		return StateConnected, nil
	case "disconnected":
		return StateDisconnected, nil
	}
	return 0, fmt.Errorf("%w: connection state %q", ErrInvalidDevice, s)
}

func (c ConnectionState) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *ConnectionState) UnmarshalText(text []byte) error {
	v, err := ParseConnectionState(string(text))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Record is one raw observation from one backend during a poll.
type Record struct {
	// SourceID is the backend-native identifier, usually a MAC address or
	// a PnP instance path. May be empty.
	SourceID    string
	Backend     Backend
	DisplayName string
	Battery     Battery
	Connected   bool
	// Removed marks an explicit unpair reported by the backend.
	Removed    bool
	ObservedAt time.Time
}

// Device is the merged, deduplicated view of a physical peripheral.
type Device struct {
	Identity            string          `json:"identity"`
	DisplayName         string          `json:"display_name"`
	Battery             Battery         `json:"battery"`
	State               ConnectionState `json:"connection_state"`
	Backends            BackendSet      `json:"-"`
	SourceIDs           []string        `json:"source_ids"`
	LastBatteryChangeAt time.Time       `json:"last_battery_change_at,omitzero"`
	FirstSeenAt         time.Time       `json:"first_seen_at"`
	LastSeenAt          time.Time       `json:"last_seen_at"`
	// LowBatteryAcknowledged is the hysteresis flag: set once the battery
	// falls below the threshold and cleared only above threshold+margin.
	LowBatteryAcknowledged bool `json:"low_battery_acknowledged"`
}

func (d Device) Connected() bool { return d.State == StateConnected }

// Clone returns a copy that shares no slices with d.
func (d Device) Clone() Device {
	d.SourceIDs = slices.Clone(d.SourceIDs)
	return d
}

// Equal compares every field including timestamps.
func (d Device) Equal(o Device) bool {
	return d.Identity == o.Identity &&
		d.DisplayName == o.DisplayName &&
		d.Battery == o.Battery &&
		d.State == o.State &&
		d.Backends == o.Backends &&
		slices.Equal(d.SourceIDs, o.SourceIDs) &&
		d.LastBatteryChangeAt.Equal(o.LastBatteryChangeAt) &&
		d.FirstSeenAt.Equal(o.FirstSeenAt) &&
		d.LastSeenAt.Equal(o.LastSeenAt) &&
		d.LowBatteryAcknowledged == o.LowBatteryAcknowledged
}

// Label is the name shown to users, falling back to the identity.
func (d Device) Label() string {
	if d.DisplayName != "" {
		return d.DisplayName
	}
	return d.Identity
}
