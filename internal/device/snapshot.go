package device

import (
	"sort"
	"time"
)

// Snapshot is an immutable view of every known device, ordered by identity.
// A nil *Snapshot behaves as an empty one.
type Snapshot struct {
	devices []Device
	index   map[string]int
	takenAt time.Time
}

// NewSnapshot copies devices into a new snapshot. When identities repeat the
// first occurrence wins.
func NewSnapshot(devices []Device, takenAt time.Time) *Snapshot {
	s := &Snapshot{
		devices: make([]Device, 0, len(devices)),
		index:   make(map[string]int, len(devices)),
		takenAt: takenAt,
	}
	seen := make(map[string]bool, len(devices))
	for _, d := range devices {
		if seen[d.Identity] {
			continue
		}
		seen[d.Identity] = true
		s.devices = append(s.devices, d.Clone())
	}
	sort.Slice(s.devices, func(i, j int) bool { return s.devices[i].Identity < s.devices[j].Identity })
	for i, d := range s.devices {
		s.index[d.Identity] = i
	}
	return s
}

// EmptySnapshot is the registry state before the first merge.
func EmptySnapshot() *Snapshot {
	return NewSnapshot(nil, time.Time{})
}

func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.devices)
}

// At returns a copy of the i-th device in identity order.
func (s *Snapshot) At(i int) Device {
	return s.devices[i].Clone()
}

// Devices returns copies of all devices in identity order.
func (s *Snapshot) Devices() []Device {
	if s == nil {
		return nil
	}
	out := make([]Device, len(s.devices))
	for i, d := range s.devices {
		out[i] = d.Clone()
	}
	return out
}

func (s *Snapshot) Get(identity string) (Device, bool) {
	if s == nil {
		return Device{}, false
	}
	i, ok := s.index[identity]
	if !ok {
		return Device{}, false
	}
	return s.devices[i].Clone(), true
}

func (s *Snapshot) Has(identity string) bool {
	if s == nil {
		return false
	}
	_, ok := s.index[identity]
	return ok
}

func (s *Snapshot) Identities() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.devices))
	for i, d := range s.devices {
		out[i] = d.Identity
	}
	return out
}

// TakenAt is the merge time that produced the snapshot.
func (s *Snapshot) TakenAt() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.takenAt
}

// Equal compares device contents; TakenAt is ignored.
func (s *Snapshot) Equal(o *Snapshot) bool {
	if s.Len() != o.Len() {
		return false
	}
	for i := 0; i < s.Len(); i++ {
		if !s.devices[i].Equal(o.devices[i]) {
			return false
		}
	}
	return true
}
