package tether

import (
	"errors"
	"fmt"
	"time"
)

// WidgetKind indicates the value model of a camera configuration widget.
type WidgetKind int

const (
	// Choice widgets take one value out of an enumerated list (radio).
	Choice WidgetKind = iota
	// Range widgets take a numeric value within firmware bounds.
	Range
)

// Widget is a snapshot of one named, typed configuration point on the
// device. For Choice widgets, Value holds the current choice; for Range
// widgets, Number holds the current value.
type Widget struct {
	Key      string
	Kind     WidgetKind
	Value    string
	Number   float64
	Choices  []string
	ReadOnly bool
}

// EventType classifies an event reported by the camera.
type EventType int

const (
	EventTimeout EventType = iota
	EventNewFile
	EventNewFolder
	EventFileChanged
	EventCaptureComplete
	EventUnknown
)

// String returns the event kind name for logging.
func (t EventType) String() string {
	switch t {
	case EventTimeout:
		return "timeout"
	case EventNewFile:
		return "new-file"
	case EventNewFolder:
		return "new-folder"
	case EventFileChanged:
		return "file-changed"
	case EventCaptureComplete:
		return "capture-complete"
	default:
		return "unknown"
	}
}

// FileRef locates a file on the camera's own filesystem.
type FileRef struct {
	Folder string
	Name   string
}

// Event is one device-initiated notification.
type Event struct {
	Type EventType
	File FileRef // set for file/folder events
}

// Detection error classes. ErrNoDevice means no camera is present;
// ErrBusy means a camera is present but claimed by another process.
var (
	ErrNoDevice = errors.New("no camera detected")
	ErrBusy     = errors.New("usb device busy - close other camera apps")
	// ErrNotFound is returned by Widget when the device does not expose
	// the requested configuration key.
	ErrNotFound = errors.New("config key not found")
)

// Driver is the native camera-driver boundary. It represents the live,
// exclusive session with exactly one connected camera. All calls may block
// on the device and must never run on a latency-sensitive path.
//
// Implementations: the cgo libgphoto2 driver (build tag "gphoto2") and
// MockDriver for development and tests.
type Driver interface {
	// Model returns the device model identifier.
	Model() string
	// Port returns the transport label, e.g. "usb".
	Port() string

	// Widget reads a configuration widget snapshot by key.
	Widget(key string) (Widget, error)
	// SetChoice sets a choice widget's value and commits it to the device.
	// The read-only check is the caller's responsibility (via Widget).
	SetChoice(key, value string) error

	// Capture issues a shutter release and returns the device-side file
	// reference of the result.
	Capture() (FileRef, error)
	// Download copies a device-side file to a local path.
	Download(folder, name, localPath string) error
	// WaitEvent blocks up to timeout for the next device event.
	WaitEvent(timeout time.Duration) (Event, error)

	// Close releases the device.
	Close() error
}

// DetectFunc autodetects and claims one attached camera.
type DetectFunc func() (Driver, error)

// NewDetector returns the autodetection function for the configured driver
// type ("gphoto2" or "mock").
func NewDetector(driverType string) (DetectFunc, error) {
	switch driverType {
	case "mock":
		return detectMock, nil
	case "gphoto2":
		return detectUSB, nil
	default:
		return nil, fmt.Errorf("unsupported driver type: %s", driverType)
	}
}
