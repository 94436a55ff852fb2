package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/myki-jim/RapidRAW/internal/config"
	"github.com/myki-jim/RapidRAW/internal/hw/tether"
)

// fakeDriver is a scriptable device handle for session tests.
type fakeDriver struct {
	mu        sync.Mutex
	widgetErr error
	waitFunc  func(timeout time.Duration) (tether.Event, error)
	closed    bool
	seq       int
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{}
}

func (d *fakeDriver) Model() string { return "Canon EOS R5" }
func (d *fakeDriver) Port() string  { return "usb:001,004" }

func (d *fakeDriver) Widget(key string) (tether.Widget, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.widgetErr != nil {
		return tether.Widget{}, d.widgetErr
	}
	switch key {
	case "iso":
		return tether.Widget{Key: key, Kind: tether.Choice, Value: "400"}, nil
	case "shutterspeed":
		return tether.Widget{Key: key, Kind: tether.Choice, Value: "1/250"}, nil
	case "aperture":
		return tether.Widget{Key: key, Kind: tether.Choice, Value: "5.6", Choices: []string{"4", "5.6", "8"}}, nil
	}
	return tether.Widget{}, tether.ErrNotFound
}

func (d *fakeDriver) SetChoice(key, value string) error { return nil }

func (d *fakeDriver) Capture() (tether.FileRef, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq++
	return tether.FileRef{Folder: "/store/DCIM", Name: "capt0001.jpg"}, nil
}

func (d *fakeDriver) Download(folder, name, localPath string) error {
	return os.WriteFile(localPath, []byte("image-bytes"), 0o644)
}

func (d *fakeDriver) WaitEvent(timeout time.Duration) (tether.Event, error) {
	d.mu.Lock()
	fn := d.waitFunc
	d.mu.Unlock()
	if fn != nil {
		return fn(timeout)
	}
	return tether.Event{Type: tether.EventTimeout}, nil
}

func (d *fakeDriver) setWaitFunc(fn func(timeout time.Duration) (tether.Event, error)) {
	d.mu.Lock()
	d.waitFunc = fn
	d.mu.Unlock()
}

func (d *fakeDriver) setWidgetErr(err error) {
	d.mu.Lock()
	d.widgetErr = err
	d.mu.Unlock()
}

func (d *fakeDriver) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

func (d *fakeDriver) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// recordingNotifier collects emitted notifications for assertions.
type recordingNotifier struct {
	mu       sync.Mutex
	statuses []string
	paths    []string
	dims     [][2]int
}

func (n *recordingNotifier) CameraStatus(status string) {
	n.mu.Lock()
	n.statuses = append(n.statuses, status)
	n.mu.Unlock()
}

func (n *recordingNotifier) CameraCaptured(path string, width, height int) {
	n.mu.Lock()
	n.paths = append(n.paths, path)
	n.dims = append(n.dims, [2]int{width, height})
	n.mu.Unlock()
}

func (n *recordingNotifier) lastStatus() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.statuses) == 0 {
		return ""
	}
	return n.statuses[len(n.statuses)-1]
}

func (n *recordingNotifier) capturedPaths() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.paths))
	copy(out, n.paths)
	return out
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// nullProber always fails, forcing the fallback dimensions.
type nullProber struct{}

func (nullProber) Dimensions(path string) (int, int, error) {
	return 0, 0, errors.New("not an image")
}

func (nullProber) RawDimensions(path string) (int, int, error) {
	return 0, 0, errors.New("not a tiff")
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.CaptureDir = t.TempDir()
	cfg.Timing.MonitorTickMs = 5
	cfg.Timing.DetectAttempts = 2
	cfg.Timing.DetectPauseMs = 1
	cfg.Timing.EventTickMs = 2
	cfg.Timing.EventWaitMs = 1
	cfg.Timing.CaptureRetryPauseMs = 1
	cfg.Timing.SettleDelayMs = 1
	return cfg
}

func newTestSession(cfg *config.Config, detect tether.DetectFunc) (*Session, *recordingNotifier) {
	notify := &recordingNotifier{}
	return New(cfg, detect, notify, nullProber{}, nil), notify
}

func singleDriver(drv tether.Driver) tether.DetectFunc {
	return func() (tether.Driver, error) { return drv, nil }
}

func noDriver() tether.DetectFunc {
	return func() (tether.Driver, error) { return nil, tether.ErrNoDevice }
}

func TestConnectEmitsStatusAndParams(t *testing.T) {
	drv := newFakeDriver()
	s, notify := newTestSession(testConfig(t), singleDriver(drv))

	p, err := s.Connect()
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if p.ISO != "400" || p.ShutterSpeed != "1/250" || p.Aperture != "5.6" {
		t.Errorf("unexpected params: %+v", p)
	}
	if p.Model != "Canon EOS R5" {
		t.Errorf("model = %q", p.Model)
	}
	if got := notify.lastStatus(); got != StatusConnected {
		t.Errorf("last status = %q, want %q", got, StatusConnected)
	}
}

func TestConnectNoDevice(t *testing.T) {
	s, notify := newTestSession(testConfig(t), noDriver())

	if _, err := s.Connect(); err == nil {
		t.Fatal("expected error when no device is present")
	}
	if len(notify.statuses) != 0 {
		t.Errorf("no status should be emitted on failed connect, got %v", notify.statuses)
	}
}

func TestConnectBusyPassthrough(t *testing.T) {
	detect := func() (tether.Driver, error) { return nil, tether.ErrBusy }
	s, _ := newTestSession(testConfig(t), detect)

	_, err := s.Connect()
	if !errors.Is(err, tether.ErrBusy) {
		t.Fatalf("err = %v, want ErrBusy", err)
	}
}

func TestDisconnectReleasesHandle(t *testing.T) {
	drv := newFakeDriver()
	s, notify := newTestSession(testConfig(t), singleDriver(drv))

	if _, err := s.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := s.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if !drv.isClosed() {
		t.Error("driver not closed on disconnect")
	}
	if got := notify.lastStatus(); got != StatusDisconnected {
		t.Errorf("last status = %q, want %q", got, StatusDisconnected)
	}
	if _, err := s.Params(); !errors.Is(err, ErrNoCamera) {
		t.Errorf("Params after disconnect = %v, want ErrNoCamera", err)
	}
}

func TestOperationsWithoutCamera(t *testing.T) {
	s, _ := newTestSession(testConfig(t), noDriver())

	if _, err := s.Params(); !errors.Is(err, ErrNoCamera) {
		t.Errorf("Params: %v", err)
	}
	if _, err := s.Capture(context.Background(), ""); !errors.Is(err, ErrNoCamera) {
		t.Errorf("Capture: %v", err)
	}
	if _, err := s.ConfigChoices("aperture"); !errors.Is(err, ErrNoCamera) {
		t.Errorf("ConfigChoices: %v", err)
	}
	if err := s.SetConfigValue("aperture", "8"); !errors.Is(err, ErrNoCamera) {
		t.Errorf("SetConfigValue: %v", err)
	}
}

func TestCaptureDownloadsAndNotifies(t *testing.T) {
	cfg := testConfig(t)
	drv := newFakeDriver()
	s, notify := newTestSession(cfg, singleDriver(drv))

	if _, err := s.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	res, err := s.Capture(context.Background(), "")
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if filepath.Dir(res.FilePath) != cfg.CaptureDir {
		t.Errorf("capture landed in %s, want %s", filepath.Dir(res.FilePath), cfg.CaptureDir)
	}
	if res.Width != 1920 || res.Height != 1080 {
		t.Errorf("dims = %dx%d, want fallback 1920x1080", res.Width, res.Height)
	}
	if res.RawPath != nil || res.JpgPath != nil || res.PreviewPath != nil {
		t.Error("reserved paths must be null")
	}
	if got := notify.capturedPaths(); len(got) != 1 || got[0] != res.FilePath {
		t.Errorf("captured notifications = %v", got)
	}
	if _, err := os.Stat(res.FilePath); err != nil {
		t.Errorf("downloaded file missing: %v", err)
	}
}

func TestCaptureTargetFolderBecomesOverride(t *testing.T) {
	cfg := testConfig(t)
	drv := newFakeDriver()
	s, _ := newTestSession(cfg, singleDriver(drv))

	if _, err := s.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	target := filepath.Join(t.TempDir(), "shoot")
	res, err := s.Capture(context.Background(), target)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if filepath.Dir(res.FilePath) != target {
		t.Errorf("capture landed in %s, want %s", filepath.Dir(res.FilePath), target)
	}
	if got := s.downloadDir(); got != target {
		t.Errorf("override = %q, want %q", got, target)
	}
}

func TestMonitoringConnectsAndStartsEventLoop(t *testing.T) {
	cfg := testConfig(t)
	drv := newFakeDriver()
	s, notify := newTestSession(cfg, singleDriver(drv))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.StartMonitoring(ctx); err != nil {
		t.Fatalf("StartMonitoring: %v", err)
	}

	waitFor(t, "auto-connect", func() bool { return notify.lastStatus() == StatusConnected })
	waitFor(t, "event monitor", func() bool { return s.eventActive.Load() })
}

func TestMonitoringIsIdempotent(t *testing.T) {
	s, _ := newTestSession(testConfig(t), noDriver())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.StartMonitoring(ctx); err != nil {
		t.Fatalf("first StartMonitoring: %v", err)
	}
	if err := s.StartMonitoring(ctx); err != nil {
		t.Fatalf("second StartMonitoring: %v", err)
	}
	if !s.monitorStarted.Load() {
		t.Error("monitor flag not set")
	}
}

func TestEventMonitorSingleInstance(t *testing.T) {
	s, _ := newTestSession(testConfig(t), noDriver())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.storeHandle(newFakeDriver())
	if !s.maybeStartEventMonitor(ctx) {
		t.Fatal("first start refused")
	}
	if s.maybeStartEventMonitor(ctx) {
		t.Error("second event monitor started while one is active")
	}
	cancel()
	waitFor(t, "event monitor exit", func() bool { return !s.eventActive.Load() })
}

func TestHealthCheckDisconnectDropsHandle(t *testing.T) {
	cfg := testConfig(t)
	drv := newFakeDriver()
	s, notify := newTestSession(cfg, singleDriver(drv))

	if _, err := s.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	drv.setWidgetErr(errors.New("PTP I/O error"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.StartMonitoring(ctx); err != nil {
		t.Fatalf("StartMonitoring: %v", err)
	}

	waitFor(t, "disconnect", func() bool { return drv.isClosed() })
	waitFor(t, "status", func() bool { return notify.lastStatus() == StatusDisconnected })
}

func TestEventMonitorDisconnectIndicator(t *testing.T) {
	cfg := testConfig(t)
	drv := newFakeDriver()
	drv.setWaitFunc(func(time.Duration) (tether.Event, error) {
		return tether.Event{}, errors.New("Camera not found on USB port")
	})
	s, notify := newTestSession(cfg, singleDriver(drv))

	if _, err := s.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.maybeStartEventMonitor(ctx)

	waitFor(t, "handle released", func() bool { return drv.isClosed() })
	waitFor(t, "event loop exit", func() bool { return !s.eventActive.Load() })
	if got := notify.lastStatus(); got != StatusDisconnected {
		t.Errorf("last status = %q, want %q", got, StatusDisconnected)
	}
}

func TestEventMonitorContainsDriverPanic(t *testing.T) {
	cfg := testConfig(t)
	drv := newFakeDriver()
	drv.setWaitFunc(func(time.Duration) (tether.Event, error) {
		panic("segfault in native layer")
	})
	s, notify := newTestSession(cfg, singleDriver(drv))

	if _, err := s.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.maybeStartEventMonitor(ctx)

	waitFor(t, "handle released after crash", func() bool { return drv.isClosed() })
	waitFor(t, "event loop exit", func() bool { return !s.eventActive.Load() })
	if got := notify.lastStatus(); got != StatusDisconnected {
		t.Errorf("last status = %q, want %q", got, StatusDisconnected)
	}
	if _, err := s.Params(); !errors.Is(err, ErrNoCamera) {
		t.Errorf("Params after crash = %v, want ErrNoCamera", err)
	}
}

func TestEventMonitorTransientErrorKeepsPolling(t *testing.T) {
	cfg := testConfig(t)
	drv := newFakeDriver()
	var calls int
	var mu sync.Mutex
	drv.setWaitFunc(func(time.Duration) (tether.Event, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return tether.Event{}, errors.New("event queue hiccup")
	})
	s, _ := newTestSession(cfg, singleDriver(drv))

	if _, err := s.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.maybeStartEventMonitor(ctx)

	waitFor(t, "repeated polls", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls >= 3
	})
	if drv.isClosed() {
		t.Error("transient error must not release the handle")
	}
}

func TestButtonCaptureDownloadsToOverride(t *testing.T) {
	cfg := testConfig(t)
	drv := newFakeDriver()
	fired := make(chan struct{})
	var once sync.Once
	drv.setWaitFunc(func(time.Duration) (tether.Event, error) {
		var ev tether.Event
		ev.Type = tether.EventTimeout
		once.Do(func() {
			ev = tether.Event{
				Type: tether.EventNewFile,
				File: tether.FileRef{Folder: "/store/DCIM", Name: "capt0005.cr2"},
			}
			close(fired)
		})
		return ev, nil
	})
	s, notify := newTestSession(cfg, singleDriver(drv))

	if _, err := s.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	override := t.TempDir()
	s.SetDownloadFolder(override)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.maybeStartEventMonitor(ctx)

	<-fired
	waitFor(t, "captured notification", func() bool { return len(notify.capturedPaths()) == 1 })

	path := notify.capturedPaths()[0]
	if filepath.Dir(path) != override {
		t.Errorf("download landed in %s, want %s", filepath.Dir(path), override)
	}
	base := filepath.Base(path)
	if !strings.HasPrefix(base, "capture_") || !strings.HasSuffix(base, ".cr2") {
		t.Errorf("unexpected local name %q", base)
	}
	notify.mu.Lock()
	dims := notify.dims[0]
	notify.mu.Unlock()
	if dims != [2]int{1920, 1080} {
		t.Errorf("dims = %v, want fallback 1920x1080", dims)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("downloaded file missing: %v", err)
	}
}

func TestReconnectRestartsEventMonitor(t *testing.T) {
	cfg := testConfig(t)
	drv := newFakeDriver()
	drv.setWaitFunc(func(time.Duration) (tether.Event, error) {
		return tether.Event{}, errors.New("no device present")
	})
	s, notify := newTestSession(cfg, singleDriver(drv))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.StartMonitoring(ctx); err != nil {
		t.Fatalf("StartMonitoring: %v", err)
	}

	// first connect, event loop dies on the disconnect indicator, then
	// the next monitor tick reconnects and starts a fresh loop
	waitFor(t, "first disconnect", func() bool {
		n := notify
		n.mu.Lock()
		defer n.mu.Unlock()
		return len(n.statuses) >= 2
	})
	drv.setWaitFunc(nil)
	waitFor(t, "reconnect", func() bool { return notify.lastStatus() == StatusConnected })
	waitFor(t, "event loop restarted", func() bool { return s.eventActive.Load() })
}

// wiredShutter is a recording remote release whose fire is observed by
// the driver fake's event stream.
type wiredShutter struct {
	mu    sync.Mutex
	fired bool
}

func (s *wiredShutter) Fire() error {
	s.mu.Lock()
	s.fired = true
	s.mu.Unlock()
	return nil
}

func (s *wiredShutter) takeFired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.fired
	s.fired = false
	return f
}

func TestWiredCaptureSharesEventStreamWithMonitor(t *testing.T) {
	cfg := testConfig(t)
	drv := newFakeDriver()
	shutter := &wiredShutter{}

	// one blocking wait at a time, like the real driver's native layer
	var serial sync.Mutex
	drv.setWaitFunc(func(timeout time.Duration) (tether.Event, error) {
		serial.Lock()
		defer serial.Unlock()
		if shutter.takeFired() {
			return tether.Event{
				Type: tether.EventNewFile,
				File: tether.FileRef{Folder: "/store/DCIM", Name: "capt0007.cr2"},
			}, nil
		}
		time.Sleep(timeout)
		return tether.Event{Type: tether.EventTimeout}, nil
	})

	notify := &recordingNotifier{}
	s := New(cfg, singleDriver(drv), notify, nullProber{}, shutter)
	if _, err := s.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.maybeStartEventMonitor(ctx)
	// let the monitor park inside a wait before firing
	time.Sleep(5 * time.Millisecond)

	res, err := s.Capture(ctx, "")
	if err != nil {
		t.Fatalf("wired capture with running event monitor: %v", err)
	}
	if !strings.HasSuffix(res.FilePath, ".cr2") {
		t.Errorf("file path = %q, want the device-reported cr2", res.FilePath)
	}
	if res.Width != 1920 || res.Height != 1080 {
		t.Errorf("dims = %dx%d, want fallback", res.Width, res.Height)
	}

	// give a stray button-path download time to show up
	time.Sleep(20 * time.Millisecond)
	if got := notify.capturedPaths(); len(got) != 1 || got[0] != res.FilePath {
		t.Errorf("captured notifications = %v, want exactly the explicit capture", got)
	}
}

func TestWiredCaptureWithoutMonitorStartsEventLoop(t *testing.T) {
	cfg := testConfig(t)
	drv := newFakeDriver()
	shutter := &wiredShutter{}
	drv.setWaitFunc(func(timeout time.Duration) (tether.Event, error) {
		if shutter.takeFired() {
			return tether.Event{
				Type: tether.EventNewFile,
				File: tether.FileRef{Folder: "/store/DCIM", Name: "capt0008.jpg"},
			}, nil
		}
		time.Sleep(timeout)
		return tether.Event{Type: tether.EventTimeout}, nil
	})

	notify := &recordingNotifier{}
	s := New(cfg, singleDriver(drv), notify, nullProber{}, shutter)
	if _, err := s.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	res, err := s.Capture(ctx, "")
	if err != nil {
		t.Fatalf("wired capture: %v", err)
	}
	if res.FilePath == "" {
		t.Error("expected a downloaded file path")
	}
}

func TestWiredClaimSingleFlight(t *testing.T) {
	s, _ := newTestSession(testConfig(t), noDriver())

	ch, err := s.registerClaim()
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if _, err := s.registerClaim(); err == nil {
		t.Error("second concurrent claim must fail")
	}
	s.releaseClaim(ch)
	if ch2, err := s.registerClaim(); err != nil {
		t.Errorf("claim after release: %v", err)
	} else {
		s.releaseClaim(ch2)
	}
}
