package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/myki-jim/RapidRAW/internal/hw/tether"
	"github.com/myki-jim/RapidRAW/internal/logic/capture"
	"github.com/myki-jim/RapidRAW/internal/logic/params"
	"github.com/myki-jim/RapidRAW/internal/logic/session"
)

// Tether is the session surface the handlers need. *session.Session
// satisfies it.
type Tether interface {
	Connect() (params.CameraParams, error)
	Disconnect() error
	Params() (params.CameraParams, error)
	Capture(ctx context.Context, targetFolder string) (session.CaptureResult, error)
	SetDownloadFolder(folder string)
	ConfigChoices(key string) ([]string, error)
	SetConfigValue(key, value string) error
	StartMonitoring(ctx context.Context) error
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Tether      Tether
	Broadcaster *Broadcaster

	// monitorCtx is the long-lived context for the background loops,
	// independent of any single request.
	monitorCtx context.Context
}

// NewHandlers creates handlers with the given dependencies. monitorCtx
// bounds the background loops started by POST /monitor.
func NewHandlers(tether Tether, broadcaster *Broadcaster, monitorCtx context.Context) *Handlers {
	return &Handlers{
		Tether:      tether,
		Broadcaster: broadcaster,
		monitorCtx:  monitorCtx,
	}
}

// writeJSON encodes v with a 200 status.
func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrNoCamera):
		code = http.StatusConflict
	case errors.Is(err, tether.ErrBusy):
		code = http.StatusServiceUnavailable
	case errors.Is(err, tether.ErrNoDevice):
		code = http.StatusNotFound
	case errors.Is(err, capture.ErrTimeout):
		code = http.StatusGatewayTimeout
	case errors.Is(err, params.ErrReadOnly):
		code = http.StatusUnprocessableEntity
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// HandleConnect handles POST /api/camera/connect.
func (h *Handlers) HandleConnect(w http.ResponseWriter, r *http.Request) {
	p, err := h.Tether.Connect()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, p)
}

// HandleDisconnect handles POST /api/camera/disconnect.
func (h *Handlers) HandleDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.Tether.Disconnect(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "disconnected"})
}

// HandleParams handles GET /api/camera/params.
func (h *Handlers) HandleParams(w http.ResponseWriter, r *http.Request) {
	p, err := h.Tether.Params()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, p)
}

type captureRequest struct {
	TargetFolder string `json:"targetFolder"`
}

// HandleCapture handles POST /api/camera/capture. The request blocks
// until the capture completes or its deadline elapses.
func (h *Handlers) HandleCapture(w http.ResponseWriter, r *http.Request) {
	var req captureRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON", http.StatusBadRequest)
			return
		}
	}

	res, err := h.Tether.Capture(r.Context(), req.TargetFolder)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, res)
}

// HandleMonitor handles POST /api/camera/monitor.
func (h *Handlers) HandleMonitor(w http.ResponseWriter, r *http.Request) {
	if err := h.Tether.StartMonitoring(h.monitorCtx); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, map[string]string{"status": "monitoring"})
}

type downloadFolderRequest struct {
	Folder string `json:"folder"`
}

// HandleDownloadFolder handles PUT /api/camera/download-folder.
func (h *Handlers) HandleDownloadFolder(w http.ResponseWriter, r *http.Request) {
	var req downloadFolderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Folder == "" {
		http.Error(w, "folder must not be empty", http.StatusBadRequest)
		return
	}
	h.Tether.SetDownloadFolder(req.Folder)
	writeJSON(w, map[string]string{"folder": req.Folder})
}

// HandleConfigChoices handles GET /api/camera/config/{key}/choices.
func (h *Handlers) HandleConfigChoices(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	choices, err := h.Tether.ConfigChoices(key)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string][]string{"choices": choices})
}

type configValueRequest struct {
	Value string `json:"value"`
}

// HandleSetConfig handles PUT /api/camera/config/{key}.
func (h *Handlers) HandleSetConfig(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var req configValueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if err := h.Tether.SetConfigValue(key, req.Value); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]string{key: req.Value})
}

// HandleEvents handles GET /api/events for SSE. Each frame is a named
// event with a JSON data line.
func (h *Handlers) HandleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	// initial comment to establish the connection
	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case frame, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("event: " + frame.Event + "\ndata: " + frame.Data + "\n\n"))
			flusher.Flush()
		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
