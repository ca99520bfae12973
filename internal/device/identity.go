package device

import (
	"net"
	"strings"
)

// MatchConfidence ranks how a record was tied to an existing device.
type MatchConfidence int

const (
	MatchNone MatchConfidence = iota
	MatchByName
	MatchBySourceID
)

func (c MatchConfidence) String() string {
	switch c {
	case MatchBySourceID:
		return "source_id"
	case MatchByName:
		return "name"
	default:
		return "none"
	}
}

// Match is the outcome of resolving one record against known devices.
type Match struct {
	Identity   string
	Confidence MatchConfidence
}

// NormalizeName folds case and collapses whitespace for name matching.
func NormalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// NormalizeSourceID canonicalises MAC addresses to upper-case colon form
// so BlueZ and UPower spellings of the same address compare equal. Other
// identifiers are only trimmed.
func NormalizeSourceID(id string) string {
	id = strings.TrimSpace(id)
	if hw, err := net.ParseMAC(id); err == nil && len(hw) == 6 {
		return strings.ToUpper(hw.String())
	}
	return id
}

// ResolveIdentity matches rec against devices: first by a shared source id,
// then by a normalised display name that identifies exactly one device not
// already reported by rec's backend. Ambiguous names resolve to MatchNone.
func ResolveIdentity(rec Record, devices []Device) Match {
	ix := newIdentityIndex(devices)
	if id, ok := ix.bySourceID(rec.SourceID); ok {
		return Match{Identity: id, Confidence: MatchBySourceID}
	}
	return ix.byName(rec)
}

type identityIndex struct {
	sources map[string]string
	names   map[string][]string
	// claimed holds, per identity, the backends that already report it.
	// A name match is refused when the record's backend is among them.
	claimed map[string]BackendSet
}

func newIdentityIndex(devices []Device) *identityIndex {
	ix := &identityIndex{
		sources: make(map[string]string),
		names:   make(map[string][]string),
		claimed: make(map[string]BackendSet),
	}
	for _, d := range devices {
		ix.addDevice(d.Identity, d.DisplayName, d.Backends)
		for _, src := range d.SourceIDs {
			ix.addSource(d.Identity, src)
		}
	}
	return ix
}

func (ix *identityIndex) addDevice(identity, name string, backends BackendSet) {
	if key := NormalizeName(name); key != "" {
		ix.names[key] = append(ix.names[key], identity)
	}
	ix.claimed[identity] = ix.claimed[identity].Union(backends)
}

func (ix *identityIndex) addSource(identity, sourceID string) {
	if sourceID = NormalizeSourceID(sourceID); sourceID != "" {
		ix.sources[sourceID] = identity
	}
}

func (ix *identityIndex) claim(identity string, b Backend) {
	ix.claimed[identity] = ix.claimed[identity].With(b)
}

func (ix *identityIndex) bySourceID(sourceID string) (string, bool) {
	sourceID = NormalizeSourceID(sourceID)
	if sourceID == "" {
		return "", false
	}
	id, ok := ix.sources[sourceID]
	return id, ok
}

func (ix *identityIndex) byName(rec Record) Match {
	key := NormalizeName(rec.DisplayName)
	if key == "" {
		return Match{}
	}

	var found string
	for _, id := range ix.names[key] {
		if ix.claimed[id].Has(rec.Backend) {
			continue
		}
		if found != "" && found != id {
			return Match{}
		}
		found = id
	}
	if found == "" {
		return Match{}
	}
	return Match{Identity: found, Confidence: MatchByName}
}
