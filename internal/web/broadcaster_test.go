package web

import (
	"encoding/json"
	"testing"
	"time"
)

func TestBroadcaster_CameraStatus(t *testing.T) {
	b := NewBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	b.CameraStatus("Connected")

	select {
	case frame := <-ch:
		if frame.Event != EventCameraStatus {
			t.Errorf("event = %q, want %q", frame.Event, EventCameraStatus)
		}
		if frame.Data != `"Connected"` {
			t.Errorf("data = %s, want the bare JSON string \"Connected\"", frame.Data)
		}
		var status string
		if err := json.Unmarshal([]byte(frame.Data), &status); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if status != "Connected" {
			t.Errorf("status = %q, want \"Connected\"", status)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for broadcast")
	}
}

func TestBroadcaster_CameraCaptured(t *testing.T) {
	b := NewBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	b.CameraCaptured("/photos/capture_1756450000.cr2", 6000, 4000)

	select {
	case frame := <-ch:
		if frame.Event != EventCameraCaptured {
			t.Errorf("event = %q, want %q", frame.Event, EventCameraCaptured)
		}
		var p capturedPayload
		if err := json.Unmarshal([]byte(frame.Data), &p); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if p.FilePath != "/photos/capture_1756450000.cr2" || p.Width != 6000 || p.Height != 4000 {
			t.Errorf("payload = %+v", p)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for broadcast")
	}
}

func TestBroadcaster_MultipleSubscribers(t *testing.T) {
	b := NewBroadcaster()
	ch1, unsub1 := b.Subscribe()
	defer unsub1()
	ch2, unsub2 := b.Subscribe()
	defer unsub2()

	b.CameraStatus("Disconnected")

	for i, ch := range []<-chan Frame{ch1, ch2} {
		select {
		case frame := <-ch:
			if frame.Event != EventCameraStatus {
				t.Errorf("subscriber %d: event = %q", i, frame.Event)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d: timeout", i)
		}
	}
}

func TestBroadcaster_UnsubscribeClosesChannel(t *testing.T) {
	b := NewBroadcaster()
	ch, unsub := b.Subscribe()
	unsub()

	_, ok := <-ch
	if ok {
		t.Error("expected channel to be closed after unsubscribe")
	}
}

func TestBroadcaster_FullChannelDropsFrames(t *testing.T) {
	b := NewBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	for i := 0; i < 64; i++ {
		b.CameraStatus("Connected")
	}

	// must not panic or block
	b.CameraStatus("overflow")

	count := 0
drain:
	for {
		select {
		case <-ch:
			count++
		default:
			break drain
		}
	}
	if count != 64 {
		t.Errorf("received %d frames, want 64 (overflow dropped)", count)
	}
}

func TestBroadcastWriter_MirrorsLogLines(t *testing.T) {
	b := NewBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	w := BroadcastWriter(b)
	if _, err := w.Write([]byte("[Tether] [INFO] Camera connected\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case frame := <-ch:
		if frame.Event != EventLog {
			t.Errorf("event = %q, want %q", frame.Event, EventLog)
		}
		var p logPayload
		if err := json.Unmarshal([]byte(frame.Data), &p); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if p.Msg != "[Tether] [INFO] Camera connected" {
			t.Errorf("msg = %q", p.Msg)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for log frame")
	}
}

func TestBroadcastWriter_SkipsBlankLines(t *testing.T) {
	b := NewBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	w := BroadcastWriter(b)
	if _, err := w.Write([]byte("  \n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case <-ch:
		t.Error("blank line must not be broadcast")
	case <-time.After(50 * time.Millisecond):
	}
}
