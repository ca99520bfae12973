package render

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/godbus/dbus/v5"

	"github.com/nerrad567/bluegauge/internal/device"
	"github.com/nerrad567/bluegauge/internal/infrastructure/config"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Tray.ShowDisconnectedInTooltip = true
	cfg.Icon.AssetDir = ""
	return cfg
}

func writePNG(t *testing.T, path string, c color.Color) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, c)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func hasInk(img image.Image) bool {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a != 0 {
				return true
			}
		}
	}
	return false
}

func TestRepresentative(t *testing.T) {
	snap := device.NewSnapshot([]device.Device{
		dev("a", "Mouse", 40, true),
		dev("b", "Keyboard", 10, false),
		dev("c", "Pad", 40, true),
		dev("d", "Pen", 70, true),
	}, t0)

	got, ok := Representative(snap, "")
	if !ok || got.Identity != "a" {
		t.Errorf("Representative() = %q, want a (lowest connected, tie by identity)", got.Identity)
	}

	got, ok = Representative(snap, "b")
	if !ok || got.Identity != "b" {
		t.Errorf("pinned Representative() = %q, %v", got.Identity, ok)
	}
	if _, ok := Representative(snap, "zz"); ok {
		t.Error("missing pinned device reported as found")
	}

	onlyUnknown := device.NewSnapshot([]device.Device{dev("x", "Buds", -1, true)}, t0)
	if got, ok := Representative(onlyUnknown, ""); !ok || got.Identity != "x" {
		t.Errorf("Representative(unknown only) = %q, %v", got.Identity, ok)
	}
	if _, ok := Representative(device.EmptySnapshot(), ""); ok {
		t.Error("Representative(empty) found a device")
	}
}

func TestRender_FontSynthesis(t *testing.T) {
	snap := device.NewSnapshot([]device.Device{dev("a", "Mouse", 45, true)}, t0)
	p := NewRenderer().Render(snap, testConfig(), ThemeDark)

	if p.Source != IconFont {
		t.Fatalf("Source = %v (fallback %v), want font", p.Source, p.Fallback)
	}
	if p.Representative != "a" {
		t.Errorf("Representative = %q", p.Representative)
	}
	if b := p.Icon.Bounds(); b.Dx() != IconSize || b.Dy() != IconSize {
		t.Errorf("icon size = %v", b)
	}
	if !hasInk(p.Icon) {
		t.Error("synthesized icon is blank")
	}
	if p.SnapshotAt != t0 {
		t.Errorf("SnapshotAt = %v", p.SnapshotAt)
	}
}

func TestRender_AutoFitAllLevels(t *testing.T) {
	r := NewRenderer()
	for _, level := range []int{0, 5, 42, 99, 100} {
		img, err := r.fonts.synthesize(level, "goregular", 0, color.White)
		if err != nil {
			t.Fatalf("synthesize(%d) error = %v", level, err)
		}
		if !hasInk(img) {
			t.Errorf("synthesize(%d) drew nothing", level)
		}
	}
}

func TestRender_Assets(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "dark", "45.png"), color.White)
	writePNG(t, filepath.Join(dir, "30.png"), color.Black)

	cfg := testConfig()
	cfg.Icon.AssetDir = dir
	r := NewRenderer()

	p := r.Render(device.NewSnapshot([]device.Device{dev("a", "Mouse", 45, true)}, t0), cfg, ThemeDark)
	if p.Source != IconAsset || p.AssetPath != filepath.Join(dir, "dark", "45.png") {
		t.Errorf("dark 45: source=%v path=%q", p.Source, p.AssetPath)
	}

	p = r.Render(device.NewSnapshot([]device.Device{dev("a", "Mouse", 30, true)}, t0), cfg, ThemeLight)
	if p.Source != IconAsset || p.AssetPath != filepath.Join(dir, "30.png") {
		t.Errorf("root 30: source=%v path=%q", p.Source, p.AssetPath)
	}

	// Light theme has no 45.png anywhere: fall back to the font.
	p = r.Render(device.NewSnapshot([]device.Device{dev("a", "Mouse", 45, true)}, t0), cfg, ThemeLight)
	if p.Source != IconFont {
		t.Errorf("missing asset: source = %v", p.Source)
	}
	if !errors.Is(p.Fallback, ErrAssetMissing) {
		t.Errorf("Fallback = %v, want ErrAssetMissing", p.Fallback)
	}
}

func TestRender_CorruptAssetFallsBack(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "45.png"), []byte("not a png"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg := testConfig()
	cfg.Icon.AssetDir = dir

	p := NewRenderer().Render(device.NewSnapshot([]device.Device{dev("a", "Mouse", 45, true)}, t0), cfg, ThemeLight)
	if p.Source != IconFont || !errors.Is(p.Fallback, ErrAssetMissing) {
		t.Errorf("source=%v fallback=%v", p.Source, p.Fallback)
	}
}

func TestRender_Placeholders(t *testing.T) {
	r := NewRenderer()

	p := r.Render(device.EmptySnapshot(), testConfig(), ThemeLight)
	if p.Source != IconPlaceholder || p.Representative != "" {
		t.Errorf("empty: source=%v rep=%q", p.Source, p.Representative)
	}

	cfg := testConfig()
	cfg.Icon.Device = "gone"
	p = r.Render(device.NewSnapshot([]device.Device{dev("a", "Mouse", 45, true)}, t0), cfg, ThemeLight)
	if p.Source != IconPlaceholder {
		t.Errorf("unpaired pin: source = %v", p.Source)
	}

	cfg = testConfig()
	cfg.Icon.FontName = filepath.Join(t.TempDir(), "missing.ttf")
	p = r.Render(device.NewSnapshot([]device.Device{dev("a", "Mouse", 45, true)}, t0), cfg, ThemeLight)
	if p.Source != IconPlaceholder || !errors.Is(p.Fallback, ErrRenderFailure) {
		t.Errorf("bad font: source=%v fallback=%v", p.Source, p.Fallback)
	}
	if !hasInk(p.Icon) {
		t.Error("placeholder is blank")
	}

	cfg = testConfig()
	cfg.Icon.FontColor = "chartreuse"
	p = r.Render(device.NewSnapshot([]device.Device{dev("a", "Mouse", 45, true)}, t0), cfg, ThemeLight)
	if !errors.Is(p.Fallback, ErrRenderFailure) {
		t.Errorf("bad color: fallback = %v", p.Fallback)
	}
}

func TestFontColor(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.IconConfig
		connected bool
		theme     Theme
		want      color.NRGBA
	}{
		{"follow dark", config.IconConfig{}, true, ThemeDark, color.NRGBA{0xFF, 0xFF, 0xFF, 0xFF}},
		{"follow light", config.IconConfig{FontColor: config.FollowSystemTheme}, true, ThemeLight, color.NRGBA{0x1F, 0x1F, 0x1F, 0xFF}},
		{"explicit", config.IconConfig{FontColor: "#336699"}, true, ThemeDark, color.NRGBA{0x33, 0x66, 0x99, 0xFF}},
		{"with alpha", config.IconConfig{FontColor: "#33669980"}, true, ThemeDark, color.NRGBA{0x33, 0x66, 0x99, 0x80}},
		{"connected", config.IconConfig{FontColor: "#336699", ConnectionColor: true}, true, ThemeDark, connectedColor},
		{"disconnected", config.IconConfig{ConnectionColor: true}, false, ThemeDark, disconnectedColor},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := fontColor(tt.cfg, tt.connected, tt.theme)
			if err != nil {
				t.Fatalf("fontColor() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("fontColor() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPresentation_Encodings(t *testing.T) {
	p := NewRenderer().Render(device.NewSnapshot([]device.Device{dev("a", "Mouse", 7, true)}, t0), testConfig(), ThemeDark)

	data, err := p.PNG()
	if err != nil {
		t.Fatalf("PNG() error = %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("PNG() output does not decode: %v", err)
	}
	if img.Bounds().Dx() != IconSize {
		t.Errorf("decoded width = %d", img.Bounds().Dx())
	}

	w, h, argb := p.Pixmap()
	if w != IconSize || h != IconSize || len(argb) != IconSize*IconSize*4 {
		t.Errorf("Pixmap() = %dx%d, %d bytes", w, h, len(argb))
	}
}

func TestResolveTheme(t *testing.T) {
	tests := []struct {
		cfg      config.IconConfig
		detected Theme
		want     Theme
	}{
		{config.IconConfig{Theme: config.ThemeDark}, ThemeLight, ThemeDark},
		{config.IconConfig{Theme: config.ThemeLight, ThemeFollow: true}, ThemeDark, ThemeLight},
		{config.IconConfig{Theme: config.ThemeAuto, ThemeFollow: true}, ThemeDark, ThemeDark},
		{config.IconConfig{Theme: config.ThemeAuto}, ThemeDark, ThemeLight},
	}
	for _, tt := range tests {
		if got := ResolveTheme(tt.cfg, tt.detected); got != tt.want {
			t.Errorf("ResolveTheme(%+v, %v) = %v, want %v", tt.cfg, tt.detected, got, tt.want)
		}
	}
}

type portalObject struct {
	dbus.BusObject
	reply any
}

func (p portalObject) CallWithContext(context.Context, string, dbus.Flags, ...interface{}) *dbus.Call {
	return &dbus.Call{Body: []interface{}{dbus.MakeVariant(p.reply)}}
}

func TestPortalTheme(t *testing.T) {
	tests := []struct {
		reply any
		want  Theme
	}{
		{dbus.MakeVariant(uint32(1)), ThemeDark},
		{dbus.MakeVariant(uint32(2)), ThemeLight},
		{uint32(0), ThemeLight},
	}
	for _, tt := range tests {
		got, err := (&PortalTheme{obj: portalObject{reply: tt.reply}}).Theme(context.Background())
		if err != nil {
			t.Fatalf("Theme() error = %v", err)
		}
		if got != tt.want {
			t.Errorf("Theme(%v) = %v, want %v", tt.reply, got, tt.want)
		}
	}

	if _, err := (&PortalTheme{obj: portalObject{reply: "dark"}}).Theme(context.Background()); err == nil {
		t.Error("Theme() with string reply should fail")
	}
}
