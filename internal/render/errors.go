package render

import "errors"

var (
	// ErrAssetMissing means no usable PNG exists for the level and theme.
	// The renderer falls back to font synthesis.
	ErrAssetMissing = errors.New("render: icon asset missing")

	// ErrRenderFailure means the icon could not be drawn, for example an
	// unreadable font or an invalid color. The renderer falls back to the
	// placeholder icon.
	ErrRenderFailure = errors.New("render: icon render failed")
)
