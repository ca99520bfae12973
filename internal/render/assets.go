package render

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
)

// loadAsset finds <dir>/<level>.png, then <dir>/<theme>/<level>.png.
func loadAsset(dir string, level int, theme Theme) (image.Image, string, error) {
	if dir == "" {
		return nil, "", fmt.Errorf("%w: no asset directory", ErrAssetMissing)
	}
	name := strconv.Itoa(level) + ".png"
	candidates := []string{
		filepath.Join(dir, name),
		filepath.Join(dir, theme.String(), name),
	}

	for _, path := range candidates {
		img, err := decodePNG(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, path, fmt.Errorf("%w: %s: %w", ErrAssetMissing, path, err)
		}
		return img, path, nil
	}
	return nil, "", fmt.Errorf("%w: %s in %s", ErrAssetMissing, name, dir)
}

func decodePNG(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return png.Decode(f)
}
