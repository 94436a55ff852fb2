package gpio

import (
	"fmt"

	"github.com/myki-jim/RapidRAW/internal/debug"
	"github.com/stianeikeland/go-rpio/v4"
)

// RPiDriver is the real implementation for Raspberry Pi using go-rpio.
type RPiDriver struct {
	pins map[int]rpio.Pin
}

// NewRPiRealDriver creates a real GPIO driver for Raspberry Pi.
// Requires running on a Raspberry Pi with access to /dev/gpiomem or as root.
func NewRPiRealDriver() (*RPiDriver, error) {
	debug.Info("Initializing real GPIO driver (go-rpio)")

	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("failed to open GPIO: %w (are you running on a Raspberry Pi?)", err)
	}

	return &RPiDriver{
		pins: make(map[int]rpio.Pin),
	}, nil
}

func (r *RPiDriver) SetupOutput(pin int) error {
	debug.Driver("gpio setup", pin)

	p := rpio.Pin(pin)
	r.pins[pin] = p
	p.Output()
	return nil
}

func (r *RPiDriver) WritePin(pin int, level Level) error {
	debug.Driver("gpio write", debug.Fmt("pin=%d level=%v", pin, level))

	p, ok := r.pins[pin]
	if !ok {
		if err := r.SetupOutput(pin); err != nil {
			return err
		}
		p = r.pins[pin]
	}

	if level == High {
		p.High()
	} else {
		p.Low()
	}
	return nil
}

func (r *RPiDriver) Close() error {
	debug.Trace("GPIO Close (real driver)")

	// Reset all pins to input (safe state)
	for _, p := range r.pins {
		p.Input()
	}
	return rpio.Close()
}
