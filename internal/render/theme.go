package render

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"

	"github.com/nerrad567/bluegauge/internal/infrastructure/config"
)

// Theme is the desktop color scheme the icon is drawn for.
type Theme uint8

const (
	ThemeLight Theme = iota
	ThemeDark
)

func (t Theme) String() string {
	if t == ThemeDark {
		return config.ThemeDark
	}
	return config.ThemeLight
}

// NeutralColor is the text color that reads well on the theme's taskbar.
func (t Theme) NeutralColor() string {
	if t == ThemeDark {
		return "#FFFFFF"
	}
	return "#1F1F1F"
}

// ThemeDetector reports the current system theme.
type ThemeDetector interface {
	Theme(ctx context.Context) (Theme, error)
}

// StaticTheme always reports the same theme.
type StaticTheme Theme

func (s StaticTheme) Theme(context.Context) (Theme, error) { return Theme(s), nil }

// ResolveTheme picks the theme to draw for. An explicit icon.theme wins;
// with auto the detected theme is used only when icon_theme_follow is set.
func ResolveTheme(cfg config.IconConfig, detected Theme) Theme {
	switch cfg.Theme {
	case config.ThemeLight:
		return ThemeLight
	case config.ThemeDark:
		return ThemeDark
	}
	if cfg.ThemeFollow {
		return detected
	}
	return ThemeLight
}

const (
	portalService   = "org.freedesktop.portal.Desktop"
	portalPath      = "/org/freedesktop/portal/desktop"
	portalSettings  = "org.freedesktop.portal.Settings"
	appearanceNS    = "org.freedesktop.appearance"
	colorSchemeKey  = "color-scheme"
	colorSchemeDark = 1
)

// PortalTheme reads the color-scheme preference from the XDG desktop
// portal. "No preference" counts as light.
type PortalTheme struct {
	obj dbus.BusObject
}

func NewPortalTheme(conn *dbus.Conn) *PortalTheme {
	return &PortalTheme{obj: conn.Object(portalService, portalPath)}
}

func (p *PortalTheme) Theme(ctx context.Context) (Theme, error) {
	call := p.obj.CallWithContext(ctx, portalSettings+".Read", 0, appearanceNS, colorSchemeKey)
	if call.Err != nil {
		return ThemeLight, fmt.Errorf("reading portal color scheme: %w", call.Err)
	}
	var v dbus.Variant
	if err := call.Store(&v); err != nil {
		return ThemeLight, fmt.Errorf("decoding portal color scheme: %w", err)
	}
	scheme, ok := unwrapUint32(v)
	if !ok {
		return ThemeLight, fmt.Errorf("unexpected portal color scheme %s", v.String())
	}
	if scheme == colorSchemeDark {
		return ThemeDark, nil
	}
	return ThemeLight, nil
}

// unwrapUint32 digs through the nested variants the portal's Read returns.
func unwrapUint32(v dbus.Variant) (uint32, bool) {
	for range 3 {
		switch x := v.Value().(type) {
		case uint32:
			return x, true
		case dbus.Variant:
			v = x
		default:
			return 0, false
		}
	}
	return 0, false
}
