package render

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/nerrad567/bluegauge/internal/device"
	"github.com/nerrad567/bluegauge/internal/infrastructure/config"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func dev(id, name string, battery int, connected bool) device.Device {
	d := device.Device{Identity: id, DisplayName: name, Battery: device.BatteryPercent(battery)}
	if connected {
		d.State = device.StateConnected
	}
	return d
}

func trayCfg() config.TrayConfig {
	return config.TrayConfig{
		ShowDisconnectedInTooltip: true,
		BatteryPositionInTooltip:  config.BatteryPositionSuffix,
		TooltipMaxLength:          config.DefaultTooltipMaxLength,
	}
}

func TestTooltip_OrderAndFormat(t *testing.T) {
	snap := device.NewSnapshot([]device.Device{
		dev("1", "keyboard", 80, false),
		dev("2", "Mouse", 45, true),
		dev("3", "Headset", -1, true),
	}, t0)

	got := Tooltip(snap, trayCfg())
	want := "🟢 Headset - unknown\n🟢 Mouse - 45%\n🔴 keyboard - 80%"
	if got != want {
		t.Errorf("Tooltip() =\n%s\nwant\n%s", got, want)
	}

	cfg := trayCfg()
	cfg.BatteryPositionInTooltip = config.BatteryPositionPrefix
	cfg.ShowDisconnectedInTooltip = false
	got = Tooltip(snap, cfg)
	want = "🟢 unknown - Headset\n🟢 45% - Mouse"
	if got != want {
		t.Errorf("Tooltip(prefix, connected only) =\n%s\nwant\n%s", got, want)
	}
}

func TestTooltip_Empty(t *testing.T) {
	if got := Tooltip(device.EmptySnapshot(), trayCfg()); got != EmptyTooltip {
		t.Errorf("Tooltip(empty) = %q", got)
	}
	snap := device.NewSnapshot([]device.Device{dev("1", "Pad", 50, false)}, t0)
	cfg := trayCfg()
	cfg.ShowDisconnectedInTooltip = false
	if got := Tooltip(snap, cfg); got != EmptyTooltip {
		t.Errorf("Tooltip(all hidden) = %q", got)
	}
}

func TestTooltip_TruncatesLongNames(t *testing.T) {
	long := strings.Repeat("n", 50)
	snap := device.NewSnapshot([]device.Device{dev("1", long, 30, true)}, t0)
	cfg := trayCfg()
	cfg.TruncateNameLength = 20

	got := Tooltip(snap, cfg)
	want := "🟢 " + strings.Repeat("n", 20) + "… - 30%"
	if got != want {
		t.Errorf("Tooltip() = %q, want %q", got, want)
	}
	if utf8.RuneCountInString(got) > cfg.TooltipMaxLength {
		t.Errorf("tooltip has %d runes, limit %d", utf8.RuneCountInString(got), cfg.TooltipMaxLength)
	}
}

func TestTooltip_ClipsWholeLines(t *testing.T) {
	var devices []device.Device
	for i := range 12 {
		devices = append(devices, dev(string(rune('a'+i)), "Device "+string(rune('A'+i)), 50, true))
	}
	snap := device.NewSnapshot(devices, t0)
	cfg := trayCfg()

	got := Tooltip(snap, cfg)
	if n := utf8.RuneCountInString(got); n > cfg.TooltipMaxLength {
		t.Fatalf("tooltip has %d runes, limit %d", n, cfg.TooltipMaxLength)
	}
	lines := strings.Split(got, "\n")
	if len(lines) == 0 || len(lines) == 12 {
		t.Fatalf("expected clipping, got %d lines", len(lines))
	}
	for i, line := range lines {
		want := "🟢 Device " + string(rune('A'+i)) + " - 50%"
		if line != want {
			t.Errorf("line %d = %q, want %q (first-sorted devices must survive intact)", i, line, want)
		}
	}
}

func TestClipLines(t *testing.T) {
	tests := []struct {
		lines []string
		limit int
		want  string
	}{
		{[]string{"abc", "def"}, 7, "abc\ndef"},
		{[]string{"abc", "def"}, 6, "abc"},
		{[]string{"abcdef"}, 4, "abc…"},
		{[]string{"abc", "def"}, 0, "abc\ndef"},
		// Markers outside the BMP count as one each.
		{[]string{"🟢 A - 8%", "🔴 B - 9%"}, 17, "🟢 A - 8%\n🔴 B - 9%"},
		{[]string{"🟢 A - 8%", "🔴 B - 9%"}, 16, "🟢 A - 8%"},
	}
	for _, tt := range tests {
		if got := clipLines(tt.lines, tt.limit); got != tt.want {
			t.Errorf("clipLines(%q, %d) = %q, want %q", tt.lines, tt.limit, got, tt.want)
		}
	}
}

func TestTruncateName(t *testing.T) {
	if got := truncateName("héllo wörld", 5); got != "héllo…" {
		t.Errorf("truncateName() = %q", got)
	}
	if got := truncateName("short", 10); got != "short" {
		t.Errorf("truncateName() = %q", got)
	}
	if got := truncateName("anything", 0); got != "anything" {
		t.Errorf("truncateName(0) = %q", got)
	}
}
