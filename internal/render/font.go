package render

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"strconv"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// IconSize is the edge length of every rendered icon in pixels.
const IconSize = 64

const (
	minFontSize = 8
	fontStep    = 2
)

var builtinFonts = map[string][]byte{
	"goregular": goregular.TTF,
	"gobold":    gobold.TTF,
	"gomono":    gomono.TTF,
}

// fontCache parses each font once. Names that are not built in are read as
// .ttf/.otf paths.
type fontCache struct {
	mu    sync.Mutex
	fonts map[string]*opentype.Font
}

func newFontCache() *fontCache {
	return &fontCache{fonts: make(map[string]*opentype.Font)}
}

func (c *fontCache) load(name string) (*opentype.Font, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f, ok := c.fonts[name]; ok {
		return f, nil
	}

	data, ok := builtinFonts[name]
	if !ok {
		var err error
		if data, err = os.ReadFile(name); err != nil {
			return nil, fmt.Errorf("%w: font %q: %w", ErrRenderFailure, name, err)
		}
	}
	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: font %q: %w", ErrRenderFailure, name, err)
	}
	c.fonts[name] = f
	return f, nil
}

// initialFontSize is where auto-fit starts: three digits need a smaller
// face than one.
func initialFontSize(level int) float64 {
	switch {
	case level >= 100:
		return 42
	case level < 10:
		return 70
	default:
		return 64
	}
}

func newFace(f *opentype.Font, size float64) (font.Face, error) {
	face, err := opentype.NewFace(f, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		return nil, fmt.Errorf("%w: font size %v: %w", ErrRenderFailure, size, err)
	}
	return face, nil
}

func fits(face font.Face, text string) bool {
	b, _ := font.BoundString(face, text)
	return (b.Max.X-b.Min.X).Ceil() <= IconSize && (b.Max.Y-b.Min.Y).Ceil() <= IconSize
}

// fitFace returns the largest face, in fontStep increments from the
// level's starting size, whose glyphs fit the icon.
func fitFace(f *opentype.Font, text string, start float64) (font.Face, error) {
	size := start
	face, err := newFace(f, size)
	if err != nil {
		return nil, err
	}

	if !fits(face, text) {
		for size > minFontSize && !fits(face, text) {
			face.Close()
			size -= fontStep
			if face, err = newFace(f, size); err != nil {
				return nil, err
			}
		}
		return face, nil
	}

	for {
		next, err := newFace(f, size+fontStep)
		if err != nil {
			return nil, err
		}
		if !fits(next, text) {
			next.Close()
			return face, nil
		}
		face.Close()
		face, size = next, size+fontStep
	}
}

// synthesize draws the battery level centered on a transparent icon.
// size 0 auto-fits.
func (c *fontCache) synthesize(level int, fontName string, size int, fg color.Color) (*image.NRGBA, error) {
	f, err := c.load(fontName)
	if err != nil {
		return nil, err
	}
	text := strconv.Itoa(level)

	var face font.Face
	if size > 0 {
		face, err = newFace(f, float64(size))
	} else {
		face, err = fitFace(f, text, initialFontSize(level))
	}
	if err != nil {
		return nil, err
	}
	defer face.Close()

	img := image.NewNRGBA(image.Rect(0, 0, IconSize, IconSize))
	drawCentered(img, face, text, fg)
	return img, nil
}

func drawCentered(dst *image.NRGBA, face font.Face, text string, fg color.Color) {
	b, _ := font.BoundString(face, text)
	w, h := b.Max.X-b.Min.X, b.Max.Y-b.Min.Y
	size := fixed.I(dst.Bounds().Dx())
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(fg),
		Face: face,
		Dot: fixed.Point26_6{
			X: (size-w)/2 - b.Min.X,
			Y: (size-h)/2 - b.Min.Y,
		},
	}
	d.DrawString(text)
}
