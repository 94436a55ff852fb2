package download

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/myki-jim/RapidRAW/internal/debug"
	"github.com/myki-jim/RapidRAW/internal/hw/tether"
)

// Default dimensions reported when true dimensions cannot be determined.
// Never zero: downstream consumers require positive geometry.
const (
	DefaultWidth  = 1920
	DefaultHeight = 1080
)

// ErrDownload wraps failures while copying bytes off the camera.
var ErrDownload = errors.New("download failed")

// Prober reads pixel geometry from an image file: a direct header read for
// common formats and a RAW-container read as last resort.
type Prober interface {
	Dimensions(path string) (width, height int, err error)
	RawDimensions(path string) (width, height int, err error)
}

// Result is one completed download.
type Result struct {
	Path   string
	Width  int
	Height int
}

// Pipeline copies files off the camera filesystem into a local capture
// directory and resolves their dimensions.
type Pipeline struct {
	probe Prober
	cache *DimensionCache
}

// NewPipeline creates a pipeline with an empty dimension cache.
func NewPipeline(probe Prober) *Pipeline {
	return &Pipeline{probe: probe, cache: NewDimensionCache()}
}

// Run downloads one device-side file into destDir under a timestamped
// name and resolves its dimensions. The destination directory is created
// if absent.
func (p *Pipeline) Run(drv tether.Driver, folder, name, destDir string) (Result, error) {
	ext := ResolveExtension(name)

	ts := time.Now().Unix()
	if ts < 0 {
		return Result{}, errors.New("time error: clock reads before unix epoch")
	}
	dest := filepath.Join(destDir, fmt.Sprintf("capture_%010d.%s", ts, ext))

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create capture directory: %w", err)
	}

	debug.Capture("downloading " + name)
	if err := drv.Download(folder, name, dest); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrDownload, err)
	}

	w, h := p.resolveDimensions(drv.Model(), dest)
	debug.Download(dest, w, h)
	return Result{Path: dest, Width: w, Height: h}, nil
}

// resolveDimensions applies the layered policy: RAW files short-circuit to
// the default (RAW metadata parsing is slow and not time-critical for the
// caller); otherwise direct header probe, then per-model cache, then the
// RAW-container probe as last resort, then the default. Only genuinely
// resolved values are cached, never the fallback.
func (p *Pipeline) resolveDimensions(model, path string) (int, int) {
	if IsRawFile(path) {
		debug.Verbose("Using default dimensions for RAW file")
		return DefaultWidth, DefaultHeight
	}

	if w, h, err := p.probe.Dimensions(path); err == nil {
		p.cache.Store(model, Dimensions{Width: w, Height: h})
		return w, h
	}

	if d, ok := p.cache.Lookup(model); ok {
		debug.Verbose("Using cached dimensions for %s: %dx%d", model, d.Width, d.Height)
		return d.Width, d.Height
	}

	if w, h, err := p.probe.RawDimensions(path); err == nil {
		p.cache.Store(model, Dimensions{Width: w, Height: h})
		return w, h
	}

	return DefaultWidth, DefaultHeight
}
