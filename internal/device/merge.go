package device

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"
)

// MergeOptions tunes one merge.
type MergeOptions struct {
	// Now stamps the snapshot and is the reference for retention. Zero
	// means time.Now().
	Now time.Time

	// LowThreshold and HysteresisMargin drive LowBatteryAcknowledged.
	LowThreshold     int
	HysteresisMargin int

	// ForgetAfter prunes devices unseen for longer than this. Zero keeps
	// absent devices forever.
	ForgetAfter time.Duration

	// StaleBackends lists backends that failed this cycle. Devices reported
	// only by these backends keep their previous state instead of being
	// marked disconnected.
	StaleBackends BackendSet
}

// LowBatteryFlag advances the hysteresis flag for one reading. The flag
// sets when the level drops strictly below threshold and clears only when
// it rises strictly above threshold+margin. Unknown readings hold it.
func LowBatteryFlag(prev bool, b Battery, threshold, margin int) bool {
	level, ok := b.Level()
	if !ok {
		return prev
	}
	switch {
	case !prev && level < threshold:
		return true
	case prev && level > threshold+margin:
		return false
	default:
		return prev
	}
}

// batch accumulates what this poll said about one identity.
type batch struct {
	backends  BackendSet
	sourceIDs []string
	connected bool
	seenAt    time.Time

	battery   Battery
	batteryAt time.Time

	name   string
	nameAt time.Time
}

func (b *batch) add(rec Record, seenAt time.Time) {
	b.backends = b.backends.With(rec.Backend)
	b.sourceIDs = append(b.sourceIDs, rec.SourceID)
	b.connected = b.connected || rec.Connected
	if seenAt.After(b.seenAt) {
		b.seenAt = seenAt
	}
	if rec.Battery.Known() && (!b.battery.Known() || !seenAt.Before(b.batteryAt)) {
		b.battery = rec.Battery
		b.batteryAt = seenAt
	}
	if rec.DisplayName != "" && (b.name == "" || !seenAt.Before(b.nameAt)) {
		b.name = rec.DisplayName
		b.nameAt = seenAt
	}
}

// Merge folds a poll's records into prev and returns the next snapshot.
// prev is not modified. Merging the same records twice yields equal
// snapshots.
func Merge(prev *Snapshot, records []Record, opts MergeOptions) *Snapshot {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	seen := func(r Record) time.Time {
		if r.ObservedAt.IsZero() {
			return now
		}
		return r.ObservedAt
	}

	existing := prev.Devices()
	ix := newIdentityIndex(existing)
	working := make(map[string]*Device, len(existing))
	for i := range existing {
		working[existing[i].Identity] = &existing[i]
	}
	batches := make(map[string]*batch)
	removed := make(map[string]bool)

	assign := func(identity string, rec Record) {
		b := batches[identity]
		if b == nil {
			b = &batch{}
			batches[identity] = b
		}
		b.add(rec, seen(rec))
		ix.claim(identity, rec.Backend)
		ix.addSource(identity, rec.SourceID)
	}

	// Source ids are authoritative, so every record that has one known is
	// placed before any name matching happens.
	recs := prepareRecords(records)
	var unmatched []Record
	for _, rec := range recs {
		id, ok := ix.bySourceID(rec.SourceID)
		switch {
		case ok && rec.Removed:
			removed[id] = true
		case ok:
			assign(id, rec)
		case !rec.Removed:
			unmatched = append(unmatched, rec)
		}
	}

	for _, rec := range unmatched {
		if id, ok := ix.bySourceID(rec.SourceID); ok {
			assign(id, rec)
			continue
		}
		if m := ix.byName(rec); m.Confidence == MatchByName && !removed[m.Identity] {
			assign(m.Identity, rec)
			continue
		}

		id := rec.SourceID
		working[id] = &Device{Identity: id, FirstSeenAt: seen(rec)}
		ix.addDevice(id, rec.DisplayName, 0)
		assign(id, rec)
	}

	out := make([]Device, 0, len(working))
	for id, d := range working {
		if removed[id] {
			continue
		}
		if b, ok := batches[id]; ok {
			applyBatch(d, b, opts)
			out = append(out, *d)
			continue
		}
		if !d.Backends.Empty() && opts.StaleBackends.Covers(d.Backends) {
			out = append(out, *d)
			continue
		}
		if opts.ForgetAfter > 0 && now.Sub(d.LastSeenAt) > opts.ForgetAfter {
			continue
		}
		d.State = StateDisconnected
		out = append(out, *d)
	}

	return NewSnapshot(out, now)
}

func applyBatch(d *Device, b *batch, opts MergeOptions) {
	d.Backends = b.backends
	d.SourceIDs = mergeSourceIDs(d.SourceIDs, b.sourceIDs)
	if b.name != "" {
		d.DisplayName = b.name
	}
	d.State = StateDisconnected
	if b.connected {
		d.State = StateConnected
	}
	if b.battery.Known() && b.battery != d.Battery {
		d.Battery = b.battery
		d.LastBatteryChangeAt = b.batteryAt
	}
	if b.seenAt.After(d.LastSeenAt) {
		d.LastSeenAt = b.seenAt
	}
	if d.FirstSeenAt.IsZero() {
		d.FirstSeenAt = d.LastSeenAt
	}
	d.LowBatteryAcknowledged = LowBatteryFlag(d.LowBatteryAcknowledged, d.Battery, opts.LowThreshold, opts.HysteresisMargin)
}

func mergeSourceIDs(have, add []string) []string {
	out := slices.Concat(have, add)
	slices.Sort(out)
	return slices.Compact(out)
}

// prepareRecords normalises ids and names, sorts the batch into a stable
// order and gives id-less records a synthetic id derived from backend, name
// and position so repeated polls produce the same identity.
func prepareRecords(in []Record) []Record {
	out := slices.Clone(in)
	for i := range out {
		out[i].SourceID = NormalizeSourceID(out[i].SourceID)
		out[i].DisplayName = strings.TrimSpace(out[i].DisplayName)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Backend != b.Backend {
			return a.Backend < b.Backend
		}
		if a.SourceID != b.SourceID {
			return a.SourceID < b.SourceID
		}
		return NormalizeName(a.DisplayName) < NormalizeName(b.DisplayName)
	})

	ordinal := make(map[string]int)
	for i := range out {
		if out[i].SourceID != "" {
			continue
		}
		key := out[i].Backend.String() + "/" + NormalizeName(out[i].DisplayName)
		out[i].SourceID = fmt.Sprintf("anon/%s/%d", key, ordinal[key])
		ordinal[key]++
	}
	return out
}
