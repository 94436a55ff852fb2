package tether

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/myki-jim/RapidRAW/internal/debug"
)

// MockDriver simulates a connected camera for development on machines
// without libgphoto2 or a physical body, and for tests. It carries a small
// widget set, a fake device filesystem, and a scriptable event queue.
type MockDriver struct {
	mu      sync.Mutex
	widgets map[string]Widget
	files   map[FileRef][]byte
	events  []Event
	seq     int
	closed  bool
}

// detectMock always finds the simulated camera.
func detectMock() (Driver, error) {
	debug.Driver("autodetect", "mock")
	return NewMockDriver(), nil
}

// NewMockDriver creates a simulated camera exposing the widgets the
// session requires (iso, shutterspeed, aperture) plus a few optional ones.
func NewMockDriver() *MockDriver {
	return &MockDriver{
		widgets: map[string]Widget{
			"iso": {Key: "iso", Kind: Choice, Value: "400",
				Choices: []string{"100", "200", "400", "800", "1600", "3200"}},
			"shutterspeed": {Key: "shutterspeed", Kind: Choice, Value: "1/125",
				Choices: []string{"1/30", "1/60", "1/125", "1/250", "1/500"}},
			"aperture": {Key: "aperture", Kind: Choice, Value: "5.6",
				Choices: []string{"2.8", "4", "5.6", "8", "11"}},
			"whitebalance": {Key: "whitebalance", Kind: Choice, Value: "Auto",
				Choices: []string{"Auto", "Daylight", "Cloudy", "Tungsten"}},
			"shootingmode": {Key: "shootingmode", Kind: Choice, Value: "Manual",
				Choices: []string{"Manual", "Aperture Priority", "Shutter Priority"}, ReadOnly: true},
			"batterylevel": {Key: "batterylevel", Kind: Range, Number: 82},
		},
		files: make(map[FileRef][]byte),
	}
}

func (m *MockDriver) Model() string { return "Mock DSLR" }
func (m *MockDriver) Port() string  { return "usb" }

func (m *MockDriver) Widget(key string) (Widget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.widgets[key]
	if !ok {
		return Widget{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return w, nil
}

func (m *MockDriver) SetChoice(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.widgets[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	for _, c := range w.Choices {
		if c == value {
			w.Value = value
			m.widgets[key] = w
			return nil
		}
	}
	return fmt.Errorf("choice %q not valid for %q", value, key)
}

// Capture simulates a shutter release: a new JPEG appears on the fake
// device filesystem under /store/DCIM.
func (m *MockDriver) Capture() (FileRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	ref := FileRef{Folder: "/store/DCIM", Name: fmt.Sprintf("capt%04d.jpg", m.seq)}
	m.files[ref] = mockJPEG(640, 480)
	debug.Driver("capture", ref.Name)
	return ref, nil
}

func (m *MockDriver) Download(folder, name, localPath string) error {
	m.mu.Lock()
	data, ok := m.files[FileRef{Folder: folder, Name: name}]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("no such file on camera: %s/%s", folder, name)
	}
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(localPath, data, 0o644)
}

func (m *MockDriver) WaitEvent(timeout time.Duration) (Event, error) {
	m.mu.Lock()
	if len(m.events) > 0 {
		ev := m.events[0]
		m.events = m.events[1:]
		m.mu.Unlock()
		return ev, nil
	}
	m.mu.Unlock()
	time.Sleep(timeout)
	return Event{Type: EventTimeout}, nil
}

func (m *MockDriver) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// PushEvent queues an event for the next WaitEvent call. For a NewFile
// event the file also appears on the fake device filesystem.
func (m *MockDriver) PushEvent(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ev.Type == EventNewFile {
		if _, ok := m.files[ev.File]; !ok {
			m.files[ev.File] = mockJPEG(640, 480)
		}
	}
	m.events = append(m.events, ev)
}

// mockJPEG builds a minimal JPEG header carrying the given dimensions,
// enough for an image-header probe to read width and height.
func mockJPEG(w, h int) []byte {
	b := []byte{
		0xFF, 0xD8, // SOI
		0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00,
		0x01, 0x01, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, // APP0
		0xFF, 0xC0, 0x00, 0x11, 0x08, // SOF0, 8-bit precision
	}
	b = append(b, byte(h>>8), byte(h), byte(w>>8), byte(w))
	b = append(b,
		0x03, // 3 components
		0x01, 0x22, 0x00,
		0x02, 0x11, 0x01,
		0x03, 0x11, 0x01,
	)
	b = append(b, 0xFF, 0xD9) // EOI
	return b
}
