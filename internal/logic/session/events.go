package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/myki-jim/RapidRAW/internal/debug"
	"github.com/myki-jim/RapidRAW/internal/hw/tether"
)

// errDriverPanic marks a contained crash inside the native driver layer.
var errDriverPanic = errors.New("native driver crashed")

// waitEventContained polls for an event while converting a panic in the
// driver into an ordinary error, so a native-layer crash takes down the
// event loop but never the process.
func waitEventContained(drv tether.Driver, timeout time.Duration) (ev tether.Event, err error) {
	defer func() {
		if r := recover(); r != nil {
			ev = tether.Event{Type: tether.EventUnknown}
			err = fmt.Errorf("%w: %v", errDriverPanic, r)
		}
	}()
	return drv.WaitEvent(timeout)
}

// runEventMonitor is the inner per-connection loop: it polls the camera
// for events, downloads files added by the camera's own shutter button,
// and terminates on any disconnect indication. The connection monitor
// starts a fresh instance after the next successful connect.
func (s *Session) runEventMonitor(ctx context.Context) {
	defer s.eventActive.Store(false)
	debug.Section("event monitor started")
	ticker := time.NewTicker(s.cfg.EventTick())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			debug.Section("event monitor stopped")
			return
		case <-ticker.C:
		}

		drv := s.handle()
		if drv == nil {
			// released elsewhere between ticks
			debug.Section("event monitor stopped: no handle")
			return
		}

		ev, err := waitEventContained(drv, s.cfg.EventWait())
		if err != nil {
			if errors.Is(err, errDriverPanic) {
				debug.Error(err)
				s.dropHandle("driver crash")
				return
			}
			if matchesAny(err, eventDisconnectIndicators) {
				s.dropHandle(err.Error())
				return
			}
			// transient poll failure, no event this tick
			debug.Trace("event poll: %v", err)
			continue
		}

		switch ev.Type {
		case tether.EventNewFile:
			debug.Event("new file " + ev.File.Folder + "/" + ev.File.Name)
			if ch := s.takeClaim(); ch != nil {
				// reserved by an in-flight wired capture
				ch <- ev.File
				continue
			}
			go s.downloadEventFile(drv, ev.File, s.downloadDir())
		case tether.EventTimeout:
			// quiet tick
		default:
			debug.Event(ev.Type.String())
		}
	}
}

// registerClaim reserves the next new-file event. Only one wired capture
// can be in flight at a time.
func (s *Session) registerClaim() (chan tether.FileRef, error) {
	s.claimMu.Lock()
	defer s.claimMu.Unlock()
	if s.claim != nil {
		return nil, errors.New("wired capture already in progress")
	}
	ch := make(chan tether.FileRef, 1)
	s.claim = ch
	return ch, nil
}

// releaseClaim withdraws a reservation if it is still pending.
func (s *Session) releaseClaim(ch chan tether.FileRef) {
	s.claimMu.Lock()
	if s.claim == ch {
		s.claim = nil
	}
	s.claimMu.Unlock()
}

// takeClaim hands the current reservation to the event monitor, consuming
// it; a claim covers exactly one file.
func (s *Session) takeClaim() chan tether.FileRef {
	s.claimMu.Lock()
	defer s.claimMu.Unlock()
	ch := s.claim
	s.claim = nil
	return ch
}

// wiredRelease fires the wired remote and waits for the event monitor to
// hand over the resulting device file reference. The monitor stays the
// only consumer of the driver's event stream; if none is running yet one
// is started, bounded by the capture's context.
func (s *Session) wiredRelease(ctx context.Context) (tether.FileRef, error) {
	ch, err := s.registerClaim()
	if err != nil {
		return tether.FileRef{}, err
	}
	defer s.releaseClaim(ch)

	s.maybeStartEventMonitor(ctx)

	if err := s.shutter.Fire(); err != nil {
		return tether.FileRef{}, err
	}

	select {
	case ref := <-ch:
		return ref, nil
	case <-ctx.Done():
		return tether.FileRef{}, ctx.Err()
	}
}

// downloadEventFile runs the download pipeline for a button-triggered
// capture in the background so the event loop keeps polling.
func (s *Session) downloadEventFile(drv tether.Driver, ref tether.FileRef, destDir string) {
	res, err := s.pipeline.Run(drv, ref.Folder, ref.Name, destDir)
	if err != nil {
		debug.Error(fmt.Errorf("button capture download: %w", err))
		return
	}
	s.notify.CameraCaptured(res.Path, res.Width, res.Height)
}
