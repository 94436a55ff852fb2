package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/myki-jim/RapidRAW/internal/config"
	"github.com/myki-jim/RapidRAW/internal/debug"
	"github.com/myki-jim/RapidRAW/internal/hw/tether"
	"github.com/myki-jim/RapidRAW/internal/logic/capture"
	"github.com/myki-jim/RapidRAW/internal/logic/download"
	"github.com/myki-jim/RapidRAW/internal/logic/params"
)

var (
	// ErrNoCamera is returned by operations that need a live handle when
	// none is held.
	ErrNoCamera = errors.New("no camera connected")
	// ErrDetectionFailed is returned after exhausting autodetect attempts.
	ErrDetectionFailed = errors.New("no camera detected")
)

// Status values emitted on camera:status.
const (
	StatusConnected    = "Connected"
	StatusDisconnected = "Disconnected"
)

// Notifier delivers outward notifications to the GUI layer,
// fire-and-forget: delivery failures are the notifier's problem.
type Notifier interface {
	CameraStatus(status string)
	CameraCaptured(path string, width, height int)
}

// CaptureResult is the outcome of a capture or button-triggered download.
// RawPath/JpgPath are reserved for future dual capture (RAW+JPG) and
// currently always null.
type CaptureResult struct {
	FilePath    string  `json:"filePath"`
	RawPath     *string `json:"rawPath"`
	JpgPath     *string `json:"jpgPath"`
	PreviewPath *string `json:"previewPath"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
}

// Session owns the exclusive device handle and the shared state around it
// (download-folder override, dimension cache), exposes the public
// operations the GUI layer calls, and coordinates the two background
// loops so at most one instance of each runs at a time.
type Session struct {
	cfg      *config.Config
	detect   tether.DetectFunc
	notify   Notifier
	pipeline *download.Pipeline
	coord    *capture.Coordinator

	// mu guards the handle slot only and is never held across a device
	// call. Consumers re-fetch the handle rather than caching it.
	mu  sync.Mutex
	drv tether.Driver

	folderMu       sync.Mutex
	downloadFolder string

	// claim, when set, reserves the next device-reported new file for an
	// in-flight wired capture instead of the button-press path.
	claimMu sync.Mutex
	claim   chan tether.FileRef

	shutter capture.Shutter

	monitorStarted atomic.Bool
	eventActive    atomic.Bool
}

// New builds a session. probe resolves image dimensions; shutter is the
// optional wired remote release (nil for USB shutter).
func New(cfg *config.Config, detect tether.DetectFunc, notify Notifier, probe download.Prober, shutter capture.Shutter) *Session {
	pipeline := download.NewPipeline(probe)
	s := &Session{
		cfg:      cfg,
		detect:   detect,
		notify:   notify,
		pipeline: pipeline,
		shutter:  shutter,
	}
	opts := capture.Options{
		Deadline:   cfg.CaptureDeadline(),
		RetryPause: cfg.CaptureRetryPause(),
	}
	if shutter != nil {
		opts.WiredRelease = s.wiredRelease
	}
	s.coord = capture.NewCoordinator(pipeline, opts)
	return s
}

// handle returns the currently held device handle, or nil.
func (s *Session) handle() tether.Driver {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drv
}

// storeHandle replaces the handle slot, closing any previous holder.
func (s *Session) storeHandle(drv tether.Driver) {
	s.mu.Lock()
	old := s.drv
	s.drv = drv
	s.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
}

// clearHandle empties the slot and returns what was held.
func (s *Session) clearHandle() tether.Driver {
	s.mu.Lock()
	defer s.mu.Unlock()
	drv := s.drv
	s.drv = nil
	return drv
}

// dropHandle performs the defensive reset both background loops use on a
// disconnect indication: clear the slot, release the device, notify.
func (s *Session) dropHandle(reason string) {
	if drv := s.clearHandle(); drv != nil {
		_ = drv.Close()
		debug.Disconnected(reason)
		s.notify.CameraStatus(StatusDisconnected)
	}
}

// Connect claims the first available camera and returns its parameters.
func (s *Session) Connect() (params.CameraParams, error) {
	drv, err := s.detect()
	if err != nil {
		if errors.Is(err, tether.ErrBusy) {
			return params.CameraParams{}, err
		}
		return params.CameraParams{}, fmt.Errorf("failed to autodetect: %w", err)
	}

	s.storeHandle(drv)

	p, err := s.Params()
	if err != nil {
		return params.CameraParams{}, err
	}

	s.notify.CameraStatus(StatusConnected)
	debug.Connected(p.Model, p.Port)
	return p, nil
}

// Disconnect releases the camera on user request.
func (s *Session) Disconnect() error {
	if drv := s.clearHandle(); drv != nil {
		_ = drv.Close()
	}
	debug.Disconnected("by user")
	s.notify.CameraStatus(StatusDisconnected)
	return nil
}

// Params produces a fresh settings snapshot from the live device.
func (s *Session) Params() (params.CameraParams, error) {
	drv := s.handle()
	if drv == nil {
		return params.CameraParams{}, ErrNoCamera
	}
	return params.NewAccessor(drv, s.cfg).Snapshot()
}

// Capture performs an explicit shutter release and download. If
// targetFolder is non-empty it becomes the new download-folder override,
// so subsequent button-triggered captures land there too.
func (s *Session) Capture(ctx context.Context, targetFolder string) (CaptureResult, error) {
	drv := s.handle()
	if drv == nil {
		return CaptureResult{}, ErrNoCamera
	}

	destDir := s.cfg.CaptureDir
	if targetFolder != "" {
		s.SetDownloadFolder(targetFolder)
		destDir = targetFolder
	}

	res, err := s.coord.Run(ctx, drv, destDir)
	if err != nil {
		return CaptureResult{}, err
	}

	s.notify.CameraCaptured(res.Path, res.Width, res.Height)
	return CaptureResult{FilePath: res.Path, Width: res.Width, Height: res.Height}, nil
}

// SetDownloadFolder sets the process-lifetime destination override for
// both the explicit-capture path and the button-triggered event path.
func (s *Session) SetDownloadFolder(folder string) {
	s.folderMu.Lock()
	s.downloadFolder = folder
	s.folderMu.Unlock()
}

// downloadDir returns the current destination: the override if set,
// otherwise the default capture directory.
func (s *Session) downloadDir() string {
	s.folderMu.Lock()
	defer s.folderMu.Unlock()
	if s.downloadFolder != "" {
		return s.downloadFolder
	}
	return s.cfg.CaptureDir
}

// ConfigChoices enumerates all legal values for a setting.
func (s *Session) ConfigChoices(key string) ([]string, error) {
	drv := s.handle()
	if drv == nil {
		return nil, ErrNoCamera
	}
	return params.NewAccessor(drv, s.cfg).Choices(key)
}

// SetConfigValue writes one choice setting to the device.
func (s *Session) SetConfigValue(key, value string) error {
	drv := s.handle()
	if drv == nil {
		return ErrNoCamera
	}
	return params.NewAccessor(drv, s.cfg).WriteChoice(key, value)
}

// StartMonitoring launches the connection monitor, which in turn starts
// the event monitor whenever a camera connects. Safe to call more than
// once; only the first call starts the loop.
func (s *Session) StartMonitoring(ctx context.Context) error {
	if !s.monitorStarted.CompareAndSwap(false, true) {
		return nil
	}
	go s.runConnectionMonitor(ctx)
	return nil
}
