package render

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"
)

var (
	connectedColor    = color.NRGBA{R: 0x2E, G: 0xCC, B: 0x71, A: 0xFF}
	disconnectedColor = color.NRGBA{R: 0xE7, G: 0x4C, B: 0x3C, A: 0xFF}
)

// parseColor accepts #RGB, #RRGGBB and #RRGGBBAA.
func parseColor(s string) (color.NRGBA, error) {
	s = strings.TrimSpace(s)
	alpha := uint8(0xFF)
	if len(s) == 9 {
		a, err := strconv.ParseUint(s[7:], 16, 8)
		if err != nil {
			return color.NRGBA{}, fmt.Errorf("%w: color %q: %w", ErrRenderFailure, s, err)
		}
		alpha = uint8(a)
		s = s[:7]
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("%w: color %q: %w", ErrRenderFailure, s, err)
	}
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: alpha}, nil
}
