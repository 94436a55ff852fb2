package imaging

import (
	"fmt"
	"image"
	"os"

	// Registered formats for the direct header probe.
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/tiff"
)

// Prober reads pixel geometry from encoded image files. Dimensions handles
// the common formats a camera produces alongside RAW; RawDimensions is the
// last-resort probe for RAW files.
type Prober struct{}

// Dimensions reads width/height from an encoded image header without
// decoding pixel data.
func (Prober) Dimensions(path string) (width, height int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("decode image header: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

// RawDimensions probes a RAW file's pixel geometry. Most RAW families
// (CR2, NEF, DNG, ARW, PEF, ORF, RW2, SRW) are TIFF containers, so the
// TIFF header carries the geometry; non-TIFF formats (CR3, RAF) fail here
// and the caller falls back to default dimensions.
func (Prober) RawDimensions(path string) (width, height int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, err := tiff.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("decode raw container: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}
