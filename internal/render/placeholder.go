package render

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font/basicfont"
)

// Placeholder labels.
const (
	LabelUnpaired = "--"
	LabelUnknown  = "?"
	LabelError    = "!"
)

var placeholderColor = color.NRGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xFF}

// placeholder draws label inside a square frame using the built-in bitmap
// face, which cannot fail to load.
func placeholder(label string) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, IconSize, IconSize))
	frame := image.NewUniform(placeholderColor)

	const inset, stroke = 6, 3
	outer := image.Rect(inset, inset, IconSize-inset, IconSize-inset)
	for _, r := range []image.Rectangle{
		{outer.Min, image.Pt(outer.Max.X, outer.Min.Y+stroke)},
		{image.Pt(outer.Min.X, outer.Max.Y-stroke), outer.Max},
		{outer.Min, image.Pt(outer.Min.X+stroke, outer.Max.Y)},
		{image.Pt(outer.Max.X-stroke, outer.Min.Y), outer.Max},
	} {
		draw.Draw(img, r, frame, image.Point{}, draw.Src)
	}

	drawCentered(img, basicfont.Face7x13, label, placeholderColor)
	return img
}
