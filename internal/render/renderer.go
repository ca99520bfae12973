package render

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"time"

	"github.com/nerrad567/bluegauge/internal/device"
	"github.com/nerrad567/bluegauge/internal/infrastructure/config"
)

// IconSource records which path produced the icon.
type IconSource uint8

const (
	IconAsset IconSource = iota
	IconFont
	IconPlaceholder
)

func (s IconSource) String() string {
	switch s {
	case IconAsset:
		return "asset"
	case IconFont:
		return "font"
	default:
		return "placeholder"
	}
}

// Presentation is one immutable frame for the tray. Do not modify it after
// it has been published.
type Presentation struct {
	Icon    image.Image
	Tooltip string

	// Representative is the identity whose battery the icon shows, empty
	// when there is none.
	Representative string
	Battery        device.Battery
	Theme          Theme
	Source         IconSource
	AssetPath      string

	// Fallback explains why a later icon source was used. Nil when the
	// preferred source worked.
	Fallback error

	// SnapshotAt is the TakenAt of the snapshot this frame shows.
	SnapshotAt time.Time
}

// PNG encodes the icon.
func (p *Presentation) PNG() ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, p.Icon); err != nil {
		return nil, fmt.Errorf("encoding icon: %w", err)
	}
	return buf.Bytes(), nil
}

// Pixmap returns the icon as StatusNotifierItem IconPixmap data: ARGB32 in
// network byte order, row-major.
func (p *Presentation) Pixmap() (width, height int32, argb []byte) {
	b := p.Icon.Bounds()
	argb = make([]byte, 0, b.Dx()*b.Dy()*4)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(p.Icon.At(x, y)).(color.NRGBA)
			argb = append(argb, c.A, c.R, c.G, c.B)
		}
	}
	return int32(b.Dx()), int32(b.Dy()), argb //nolint:gosec // icon bounds are small
}

// Renderer draws presentations. It caches parsed fonts and is safe for
// concurrent use.
type Renderer struct {
	fonts *fontCache
}

func NewRenderer() *Renderer {
	return &Renderer{fonts: newFontCache()}
}

// Render draws snap for cfg and theme. It always returns a usable frame.
func (r *Renderer) Render(snap *device.Snapshot, cfg *config.Config, theme Theme) *Presentation {
	p := &Presentation{
		Tooltip:    Tooltip(snap, cfg.Tray),
		Theme:      theme,
		SnapshotAt: snap.TakenAt(),
	}

	rep, ok := Representative(snap, cfg.Icon.Device)
	if !ok {
		p.Icon, p.Source = placeholder(LabelUnpaired), IconPlaceholder
		return p
	}
	p.Representative, p.Battery = rep.Identity, rep.Battery

	level, known := rep.Battery.Level()
	if !known {
		p.Icon, p.Source = placeholder(LabelUnknown), IconPlaceholder
		return p
	}

	var assetErr error
	if cfg.Icon.AssetDir != "" {
		img, path, err := loadAsset(cfg.Icon.AssetDir, level, theme)
		if err == nil {
			p.Icon, p.Source, p.AssetPath = img, IconAsset, path
			return p
		}
		assetErr = err
	}

	img, err := r.synthesize(level, rep.Connected(), cfg.Icon, theme)
	if err == nil {
		p.Icon, p.Source, p.Fallback = img, IconFont, assetErr
		return p
	}

	p.Icon, p.Source = placeholder(LabelError), IconPlaceholder
	p.Fallback = errors.Join(assetErr, err)
	return p
}

func (r *Renderer) synthesize(level int, connected bool, cfg config.IconConfig, theme Theme) (image.Image, error) {
	fg, err := fontColor(cfg, connected, theme)
	if err != nil {
		return nil, err
	}
	return r.fonts.synthesize(level, cfg.FontName, cfg.FontSize, fg)
}

func fontColor(cfg config.IconConfig, connected bool, theme Theme) (color.Color, error) {
	if cfg.ConnectionColor {
		if connected {
			return connectedColor, nil
		}
		return disconnectedColor, nil
	}
	hex := cfg.FontColor
	if hex == "" || hex == config.FollowSystemTheme {
		hex = theme.NeutralColor()
	}
	return parseColor(hex)
}

// Representative picks the device the icon shows. A pinned identity wins
// and is reported missing when absent. Otherwise the connected device with
// the lowest known battery is chosen, ties broken by identity; a connected
// device with unknown battery is used only when no connected device has a
// reading.
func Representative(snap *device.Snapshot, pinned string) (device.Device, bool) {
	if pinned != "" {
		return snap.Get(pinned)
	}

	var (
		best      device.Device
		bestLevel int
		found     bool
		fallback  device.Device
		anyConn   bool
	)
	for i := 0; i < snap.Len(); i++ {
		d := snap.At(i)
		if !d.Connected() {
			continue
		}
		if !anyConn {
			fallback, anyConn = d, true
		}
		level, ok := d.Battery.Level()
		if !ok {
			continue
		}
		if !found || level < bestLevel {
			best, bestLevel, found = d, level, true
		}
	}
	if found {
		return best, true
	}
	return fallback, anyConn
}
