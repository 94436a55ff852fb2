package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/myki-jim/RapidRAW/internal/debug"
	"github.com/myki-jim/RapidRAW/internal/hw/tether"
	"github.com/myki-jim/RapidRAW/internal/logic/params"
)

// Health-check failures carrying one of these substrings indicate a gone
// device rather than a transient fault; anything else leaves the handle
// in place.
var healthDisconnectIndicators = []string{
	"ptp",
	"i/o",
	"could not",
	"not found",
	"timeout",
	"unspecified",
}

// Event-poll failures carrying one of these substrings terminate the
// event monitor and release the handle.
var eventDisconnectIndicators = []string{
	"no device",
	"not found",
	"disconnected",
	"i/o error",
	"unspecified",
	"general error",
	"usb port",
}

func matchesAny(err error, indicators []string) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, ind := range indicators {
		if strings.Contains(msg, ind) {
			return true
		}
	}
	return false
}

// runConnectionMonitor is the outer reconnection loop. On every tick it
// either tries to acquire a camera or health-checks the one it has, and
// (re)starts the event monitor after each successful connect.
func (s *Session) runConnectionMonitor(ctx context.Context) {
	debug.Section("connection monitor started")
	ticker := time.NewTicker(s.cfg.MonitorTick())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			debug.Section("connection monitor stopped")
			return
		case <-ticker.C:
		}

		if s.handle() == nil {
			if _, err := s.autoConnect(); err != nil {
				debug.Trace("auto-connect: %v", err)
			}
			continue
		}

		s.maybeStartEventMonitor(ctx)

		if _, err := s.Params(); err != nil {
			if matchesAny(err, healthDisconnectIndicators) {
				s.dropHandle(err.Error())
			} else {
				debug.Verbose("health check transient failure: %v", err)
			}
		}
	}
}

// maybeStartEventMonitor launches the event loop unless one is already
// running. Returns whether a new loop was started.
func (s *Session) maybeStartEventMonitor(ctx context.Context) bool {
	if !s.eventActive.CompareAndSwap(false, true) {
		return false
	}
	go s.runEventMonitor(ctx)
	return true
}

// autoConnect retries detection a bounded number of times, verifying
// each candidate by reading a full parameter snapshot before accepting
// it. A handle that fails verification is released immediately.
func (s *Session) autoConnect() (params.CameraParams, error) {
	attempts := s.cfg.Timing.DetectAttempts
	for attempt := 1; attempt <= attempts; attempt++ {
		drv, err := s.detect()
		if err != nil {
			if errors.Is(err, tether.ErrBusy) {
				debug.Info("USB port occupied - close other camera applications")
			} else {
				debug.Trace("autodetect attempt %d: %v", attempt, err)
			}
		} else {
			s.storeHandle(drv)
			p, verr := s.Params()
			if verr == nil {
				s.notify.CameraStatus(StatusConnected)
				debug.Connected(p.Model, p.Port)
				return p, nil
			}
			if held := s.clearHandle(); held != nil {
				_ = held.Close()
			}
			debug.Verbose("verification failed: %v", verr)
		}
		if attempt < attempts {
			time.Sleep(s.cfg.DetectPause())
		}
	}
	return params.CameraParams{}, ErrDetectionFailed
}
