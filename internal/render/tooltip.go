package render

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/nerrad567/bluegauge/internal/device"
	"github.com/nerrad567/bluegauge/internal/infrastructure/config"
)

const (
	markerConnected    = "🟢"
	markerDisconnected = "🔴"
	ellipsis           = "…"

	// EmptyTooltip is shown when no device qualifies for a line.
	EmptyTooltip = "No Bluetooth devices"
)

// Tooltip builds one line per device, connected devices first and then by
// name, and drops whole lines from the end until the text fits
// TooltipMaxLength runes.
func Tooltip(snap *device.Snapshot, cfg config.TrayConfig) string {
	devices := snap.Devices()
	if !cfg.ShowDisconnectedInTooltip {
		kept := devices[:0]
		for _, d := range devices {
			if d.Connected() {
				kept = append(kept, d)
			}
		}
		devices = kept
	}
	sortForTooltip(devices)

	lines := make([]string, 0, len(devices))
	for _, d := range devices {
		lines = append(lines, tooltipLine(d, cfg))
	}
	return clipLines(lines, cfg.TooltipMaxLength)
}

func sortForTooltip(devices []device.Device) {
	sort.SliceStable(devices, func(i, j int) bool {
		a, b := devices[i], devices[j]
		if a.Connected() != b.Connected() {
			return a.Connected()
		}
		an, bn := strings.ToLower(a.Label()), strings.ToLower(b.Label())
		if an != bn {
			return an < bn
		}
		return a.Identity < b.Identity
	})
}

func tooltipLine(d device.Device, cfg config.TrayConfig) string {
	marker := markerDisconnected
	if d.Connected() {
		marker = markerConnected
	}
	name := truncateName(d.Label(), cfg.TruncateNameLength)
	if cfg.BatteryPositionInTooltip == config.BatteryPositionPrefix {
		return marker + " " + d.Battery.String() + " - " + name
	}
	return marker + " " + name + " - " + d.Battery.String()
}

// truncateName keeps limit runes and appends an ellipsis. limit <= 0 disables.
func truncateName(name string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(name) <= limit {
		return name
	}
	runes := []rune(name)
	return string(runes[:limit]) + ellipsis
}

// clipLines joins lines with newlines, keeping the longest prefix of whole
// lines whose rune count fits limit. limit <= 0 disables clipping.
func clipLines(lines []string, limit int) string {
	if len(lines) == 0 {
		return clip(EmptyTooltip, limit)
	}
	total := 0
	for i, line := range lines {
		n := utf8.RuneCountInString(line)
		if i > 0 {
			n++
		}
		if limit > 0 && total+n > limit {
			if i == 0 {
				return clip(line, limit)
			}
			return strings.Join(lines[:i], "\n")
		}
		total += n
	}
	return strings.Join(lines, "\n")
}

// clip shortens a single line that alone exceeds the limit, the only case
// where a line is cut.
func clip(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	if limit == 1 {
		return ellipsis
	}
	return string([]rune(s)[:limit-1]) + ellipsis
}
