package trigger

import (
	"time"

	"github.com/myki-jim/RapidRAW/internal/debug"
	"github.com/myki-jim/RapidRAW/internal/hw/gpio"
)

// Remote is a wired remote-release cable driven over two GPIO lines,
// for camera bodies whose USB stack refuses the shutter-release call.
// Wiring via the 3-pin remote connector:
// - GND: connected to ground
// - FOCUS: autofocus (activate by setting to LOW)
// - SHUTTER: trigger (activate by setting to LOW)
//
// Fire sequence:
// 1. FOCUS to LOW (activates autofocus)
// 2. Wait for autofocus to complete
// 3. SHUTTER to LOW (triggers the shot)
// 4. Hold for a moment
// 5. Set SHUTTER and FOCUS back to HIGH
type Remote struct {
	gpio         gpio.Driver
	focusPin     int
	shutterPin   int
	focusDelay   time.Duration // time for autofocus
	shutterDelay time.Duration // shutter hold time
}

// NewRemote creates a GPIO-driven remote release.
// focusPin and shutterPin are the GPIO pin numbers for the FOCUS and
// SHUTTER lines; focusDelay is the wait time for autofocus, shutterDelay
// the shutter hold time.
func NewRemote(g gpio.Driver, focusPin, shutterPin int, focusDelay, shutterDelay time.Duration) *Remote {
	_ = g.SetupOutput(focusPin)
	_ = g.SetupOutput(shutterPin)

	// By default, lines are HIGH (inactive)
	_ = g.WritePin(focusPin, gpio.High)
	_ = g.WritePin(shutterPin, gpio.High)

	return &Remote{
		gpio:         g,
		focusPin:     focusPin,
		shutterPin:   shutterPin,
		focusDelay:   focusDelay,
		shutterDelay: shutterDelay,
	}
}

// Fire triggers one shot over the cable.
// Sequence: FOCUS -> wait for AF -> SHUTTER -> hold -> release
func (r *Remote) Fire() error {
	debug.Trace("trigger: firing (focus=%d, shutter=%d)", r.focusPin, r.shutterPin)

	if err := r.gpio.WritePin(r.focusPin, gpio.Low); err != nil {
		return err
	}
	time.Sleep(r.focusDelay)

	if err := r.gpio.WritePin(r.shutterPin, gpio.Low); err != nil {
		// Release FOCUS on error
		_ = r.gpio.WritePin(r.focusPin, gpio.High)
		return err
	}
	time.Sleep(r.shutterDelay)

	if err := r.gpio.WritePin(r.shutterPin, gpio.High); err != nil {
		return err
	}
	if err := r.gpio.WritePin(r.focusPin, gpio.High); err != nil {
		return err
	}

	debug.Live("Shot triggered over wired remote")
	return nil
}
