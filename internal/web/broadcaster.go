package web

import (
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// Event names on the SSE stream.
const (
	EventCameraStatus   = "camera:status"
	EventCameraCaptured = "camera:captured"
	EventLog            = "log"
)

// Frame is one named SSE event with a JSON payload.
type Frame struct {
	Event string
	Data  string
}

// capturedPayload is the camera:captured body.
type capturedPayload struct {
	FilePath string `json:"filePath"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// logPayload is the log body, mirroring debug output to the stream.
type logPayload struct {
	Time string `json:"t"`
	Msg  string `json:"msg"`
}

// Broadcaster distributes named events to multiple SSE clients. It is the
// session's Notifier: connection-state changes and finished captures fan
// out to every subscriber.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[chan Frame]struct{}
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		clients: make(map[chan Frame]struct{}),
	}
}

// Subscribe returns a channel receiving broadcast frames and a cleanup
// function. The caller must call cleanup when done (client disconnect).
func (b *Broadcaster) Subscribe() (<-chan Frame, func()) {
	ch := make(chan Frame, 64)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	unsub := func() {
		b.mu.Lock()
		delete(b.clients, ch)
		b.mu.Unlock()
		close(ch)
	}
	return ch, unsub
}

// Broadcast sends one named event to all subscribers. Slow clients may
// miss frames (non-blocking, buffered).
func (b *Broadcaster) Broadcast(event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	frame := Frame{Event: event, Data: string(data)}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- frame:
		default:
			// channel full, skip
		}
	}
}

// CameraStatus broadcasts a connection-state change. The payload is the
// bare status string ("Connected" / "Disconnected"), not an object.
func (b *Broadcaster) CameraStatus(status string) {
	b.Broadcast(EventCameraStatus, status)
}

// CameraCaptured broadcasts a finished download.
func (b *Broadcaster) CameraCaptured(path string, width, height int) {
	b.Broadcast(EventCameraCaptured, capturedPayload{FilePath: path, Width: width, Height: height})
}

// BroadcastWriter wraps the broadcaster as an io.Writer so debug log
// output can be mirrored into the SSE stream via log.SetOutput.
func BroadcastWriter(b *Broadcaster) *broadcastWriter {
	return &broadcastWriter{b: b}
}

type broadcastWriter struct {
	b *Broadcaster
}

func (w *broadcastWriter) Write(p []byte) (n int, err error) {
	msg := strings.TrimSpace(string(p))
	if msg != "" {
		w.b.Broadcast(EventLog, logPayload{
			Time: time.Now().Format(time.RFC3339),
			Msg:  msg,
		})
	}
	return len(p), nil
}
