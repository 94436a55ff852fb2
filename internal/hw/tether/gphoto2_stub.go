//go:build !gphoto2

package tether

import "errors"

// detectUSB is a stub for builds without libgphoto2. Build with
// -tags gphoto2 on a machine with libgphoto2 installed to drive a real
// camera; the mock driver is always available.
func detectUSB() (Driver, error) {
	return nil, errors.New("gphoto2 driver not compiled in (rebuild with -tags gphoto2)")
}
