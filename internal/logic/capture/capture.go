package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/myki-jim/RapidRAW/internal/debug"
	"github.com/myki-jim/RapidRAW/internal/hw/tether"
	"github.com/myki-jim/RapidRAW/internal/logic/download"
)

var (
	// ErrTimeout is returned when the overall capture deadline elapses;
	// the in-flight device call is abandoned, its eventual result discarded.
	ErrTimeout = errors.New("capture timeout - camera may be disconnected or busy")
	// ErrFailed covers every terminal capture failure.
	ErrFailed = errors.New("capture failed")
)

// transientIndicator is the one error class eligible for a single retry.
const transientIndicator = "i/o in progress"

// Shutter is an alternative shutter-release mechanism (the wired GPIO
// remote) for bodies whose USB stack refuses the capture call.
type Shutter interface {
	Fire() error
}

// WiredReleaseFunc fires the wired remote and returns the device file
// reference of the resulting shot. The session provides it; file
// discovery goes through the session's event monitor so the coordinator
// never competes for the driver's event stream.
type WiredReleaseFunc func(ctx context.Context) (tether.FileRef, error)

// Options tunes a Coordinator. Zero durations get the standard values.
type Options struct {
	Deadline     time.Duration    // overall wall-clock bound for one capture
	RetryPause   time.Duration    // pause before the single transient retry
	WiredRelease WiredReleaseFunc // optional wired remote; nil = USB release
}

// Coordinator drives an explicit shutter-release request end-to-end:
// release, bounded retry, overall deadline, then the download pipeline.
type Coordinator struct {
	pipeline *download.Pipeline
	opts     Options
}

// NewCoordinator creates a coordinator over the given pipeline.
func NewCoordinator(pipeline *download.Pipeline, opts Options) *Coordinator {
	if opts.Deadline <= 0 {
		opts.Deadline = 60 * time.Second
	}
	if opts.RetryPause <= 0 {
		opts.RetryPause = time.Second
	}
	return &Coordinator{pipeline: pipeline, opts: opts}
}

// Run performs one capture-and-download against the given live handle,
// writing into destDir. The whole operation is bounded by the deadline.
func (c *Coordinator) Run(ctx context.Context, drv tether.Driver, destDir string) (download.Result, error) {
	type outcome struct {
		res download.Result
		err error
	}
	done := make(chan outcome, 1)

	// the release goroutine gets a deadline-bounded context so an
	// abandoned wired wait unwinds (and frees its file claim) instead of
	// lingering past the timeout
	relCtx, relCancel := context.WithTimeout(ctx, c.opts.Deadline)
	defer relCancel()

	go func() {
		ref, err := c.release(relCtx, drv)
		if err != nil {
			done <- outcome{err: err}
			return
		}
		res, err := c.pipeline.Run(drv, ref.Folder, ref.Name, destDir)
		done <- outcome{res: res, err: err}
	}()

	deadline := time.NewTimer(c.opts.Deadline)
	defer deadline.Stop()

	select {
	case out := <-done:
		return out.res, out.err
	case <-ctx.Done():
		return download.Result{}, ctx.Err()
	case <-deadline.C:
		return download.Result{}, fmt.Errorf("%w (after %s)", ErrTimeout, c.opts.Deadline)
	}
}

// release issues the shutter, retrying exactly once on the known-transient
// error class; any other failure, or a second failure, is terminal.
func (c *Coordinator) release(ctx context.Context, drv tether.Driver) (tether.FileRef, error) {
	if c.opts.WiredRelease != nil {
		debug.Capture("firing wired remote")
		ref, err := c.opts.WiredRelease(ctx)
		if err != nil {
			return tether.FileRef{}, fmt.Errorf("%w: %v", ErrFailed, err)
		}
		return ref, nil
	}

	debug.Capture("releasing shutter")
	ref, err := drv.Capture()
	if err == nil {
		return ref, nil
	}

	if strings.Contains(strings.ToLower(err.Error()), transientIndicator) {
		debug.Verbose("Transient capture error, retrying once: %v", err)
		time.Sleep(c.opts.RetryPause)
		ref, retryErr := drv.Capture()
		if retryErr != nil {
			return tether.FileRef{}, fmt.Errorf("%w after retry: %v", ErrFailed, retryErr)
		}
		return ref, nil
	}

	return tether.FileRef{}, fmt.Errorf("%w: %v", ErrFailed, err)
}
