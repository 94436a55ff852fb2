package params

import (
	"errors"
	"fmt"
	"time"

	"github.com/myki-jim/RapidRAW/internal/config"
	"github.com/myki-jim/RapidRAW/internal/debug"
	"github.com/myki-jim/RapidRAW/internal/hw/tether"
)

// ErrReadOnly is returned when writing a configuration the firmware marks
// read-only; no device write is attempted.
var ErrReadOnly = errors.New("config is read-only")

// CameraParams is a snapshot of device settings, produced fresh on each
// query. ISO, shutter speed and aperture are required; their absence is a
// connectivity failure. Everything else is optional.
type CameraParams struct {
	ISO                  string   `json:"iso"`
	ShutterSpeed         string   `json:"shutterSpeed"`
	Aperture             string   `json:"aperture"`
	ExposureCompensation *string  `json:"exposureCompensation,omitempty"`
	ShootingMode         *string  `json:"shootingMode,omitempty"`
	WhiteBalance         *string  `json:"whiteBalance,omitempty"`
	FocusMode            *string  `json:"focusMode,omitempty"`
	DriveMode            *string  `json:"driveMode,omitempty"`
	MeteringMode         *string  `json:"meteringMode,omitempty"`
	BatteryLevel         *float64 `json:"batteryLevel,omitempty"`
	ImagesRemaining      *uint    `json:"imagesRemaining,omitempty"`
	Model                string   `json:"model"`
	Port                 string   `json:"port"`
}

// Accessor reads and writes named device settings through the driver's
// widget model, trying an ordered list of alias keys per logical parameter
// (different firmwares expose the same concept under different names).
type Accessor struct {
	drv    tether.Driver
	cfg    *config.Config
	settle time.Duration
}

// NewAccessor creates an accessor bound to one live driver handle. The
// handle must not be retained by the caller across reconnects.
func NewAccessor(drv tether.Driver, cfg *config.Config) *Accessor {
	return &Accessor{drv: drv, cfg: cfg, settle: cfg.SettleDelay()}
}

// ReadChoice tries each alias key in order and returns the first
// successful choice value. The returned error is the last driver failure,
// for connectivity classification by the caller.
func (a *Accessor) ReadChoice(keys []string) (string, error) {
	var lastErr error
	for _, key := range keys {
		w, err := a.drv.Widget(key)
		if err != nil {
			lastErr = err
			continue
		}
		if w.Kind != tether.Choice {
			lastErr = fmt.Errorf("%s is not a choice widget", key)
			continue
		}
		return w.Value, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no alias keys given")
	}
	return "", lastErr
}

// ReadNumeric reads a range-typed widget (battery %, remaining shots).
func (a *Accessor) ReadNumeric(key string) (float64, error) {
	w, err := a.drv.Widget(key)
	if err != nil {
		return 0, err
	}
	if w.Kind != tether.Range {
		return 0, fmt.Errorf("%s is not a range widget", key)
	}
	return w.Number, nil
}

// Choices enumerates all legal values for a setting.
func (a *Accessor) Choices(key string) ([]string, error) {
	w, err := a.drv.Widget(key)
	if err != nil {
		return nil, fmt.Errorf("get config %q: %w", key, err)
	}
	if w.Kind != tether.Choice {
		return nil, fmt.Errorf("config %q has no choices", key)
	}
	return w.Choices, nil
}

// WriteChoice sets a choice widget and commits it to the device, then
// waits a short settle delay to let firmware apply the change before any
// immediately-following read.
func (a *Accessor) WriteChoice(key, value string) error {
	w, err := a.drv.Widget(key)
	if err != nil {
		return fmt.Errorf("get config %q: %w", key, err)
	}
	if w.ReadOnly {
		return fmt.Errorf("config %q: %w", key, ErrReadOnly)
	}
	if err := a.drv.SetChoice(key, value); err != nil {
		return fmt.Errorf("set %q for %q: %w", value, key, err)
	}
	debug.Verbose("Config %s set to %s", key, value)
	time.Sleep(a.settle)
	return nil
}

// Snapshot builds a full CameraParams from the live device. A missing
// required parameter fails the whole call.
func (a *Accessor) Snapshot() (CameraParams, error) {
	p := CameraParams{
		Model: a.drv.Model(),
		Port:  a.drv.Port(),
	}

	var err error
	if p.ISO, err = a.ReadChoice(a.cfg.Alias("iso")); err != nil {
		return CameraParams{}, fmt.Errorf("failed to get ISO - camera may be disconnected: %w", err)
	}
	if p.ShutterSpeed, err = a.ReadChoice(a.cfg.Alias("shutterspeed")); err != nil {
		return CameraParams{}, fmt.Errorf("failed to get shutter speed - camera may be disconnected: %w", err)
	}
	if p.Aperture, err = a.ReadChoice(a.cfg.Alias("aperture")); err != nil {
		return CameraParams{}, fmt.Errorf("failed to get aperture - camera may be disconnected: %w", err)
	}

	p.ExposureCompensation = a.optionalChoice("exposurecompensation")
	p.ShootingMode = a.optionalChoice("shootingmode")
	p.WhiteBalance = a.optionalChoice("whitebalance")
	p.FocusMode = a.optionalChoice("focusmode")
	p.DriveMode = a.optionalChoice("drivemode")
	p.MeteringMode = a.optionalChoice("meteringmode")

	if battery, err := a.ReadNumeric("batterylevel"); err == nil {
		p.BatteryLevel = &battery
	}
	if remaining, err := a.ReadNumeric("remainingimages"); err == nil {
		n := uint(remaining)
		p.ImagesRemaining = &n
	}

	return p, nil
}

// optionalChoice reads an optional parameter; absence is not an error.
func (a *Accessor) optionalChoice(param string) *string {
	v, err := a.ReadChoice(a.cfg.Alias(param))
	if err != nil {
		return nil
	}
	return &v
}
