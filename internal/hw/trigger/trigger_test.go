package trigger

import (
	"testing"
	"time"

	"github.com/myki-jim/RapidRAW/internal/hw/gpio"
)

// recordingDriver records GPIO calls for verification.
type recordingDriver struct {
	calls []gpioCall
}

type gpioCall struct {
	op    string
	pin   int
	level gpio.Level
}

func (d *recordingDriver) SetupOutput(pin int) error {
	d.calls = append(d.calls, gpioCall{op: "setup", pin: pin})
	return nil
}

func (d *recordingDriver) WritePin(pin int, level gpio.Level) error {
	d.calls = append(d.calls, gpioCall{op: "write", pin: pin, level: level})
	return nil
}

func (d *recordingDriver) Close() error { return nil }

func (d *recordingDriver) writeCalls() []gpioCall {
	var result []gpioCall
	for _, c := range d.calls {
		if c.op == "write" {
			result = append(result, c)
		}
	}
	return result
}

func TestRemote_PinsInitializedHigh(t *testing.T) {
	drv := &recordingDriver{}
	NewRemote(drv, 24, 25, 500*time.Millisecond, 200*time.Millisecond)

	// After construction, both lines should have been set to HIGH (inactive)
	focusHigh := false
	shutterHigh := false
	for _, c := range drv.writeCalls() {
		if c.pin == 24 && c.level == gpio.High {
			focusHigh = true
		}
		if c.pin == 25 && c.level == gpio.High {
			shutterHigh = true
		}
	}
	if !focusHigh {
		t.Error("focus pin should be initialized to HIGH")
	}
	if !shutterHigh {
		t.Error("shutter pin should be initialized to HIGH")
	}
}

func TestRemote_FireSequence(t *testing.T) {
	drv := &recordingDriver{}
	r := NewRemote(drv, 24, 25, time.Microsecond, time.Microsecond)
	drv.calls = nil // reset after init

	if err := r.Fire(); err != nil {
		t.Fatalf("Fire: %v", err)
	}

	expected := []struct {
		pin   int
		level gpio.Level
		desc  string
	}{
		{24, gpio.Low, "focus LOW (activate AF)"},
		{25, gpio.Low, "shutter LOW (trigger)"},
		{25, gpio.High, "shutter HIGH (release)"},
		{24, gpio.High, "focus HIGH (release)"},
	}

	writes := drv.writeCalls()
	if len(writes) != len(expected) {
		t.Fatalf("expected %d writes, got %d: %v", len(expected), len(writes), writes)
	}
	for i, exp := range expected {
		if writes[i].pin != exp.pin || writes[i].level != exp.level {
			t.Errorf("step %d (%s): pin=%d level=%v, want pin=%d level=%v",
				i, exp.desc, writes[i].pin, writes[i].level, exp.pin, exp.level)
		}
	}
}
