package web

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server wraps the HTTP server and handlers.
type Server struct {
	addr     string
	handlers *Handlers
}

// NewServer creates a server for the given address and dependencies.
// monitorCtx bounds the background loops, independent of request lifetimes.
func NewServer(addr string, tether Tether, broadcaster *Broadcaster, monitorCtx context.Context) *Server {
	return &Server{
		addr:     addr,
		handlers: NewHandlers(tether, broadcaster, monitorCtx),
	}
}

// Router returns the chi router with all routes registered.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Route("/camera", func(r chi.Router) {
			r.Post("/connect", s.handlers.HandleConnect)
			r.Post("/disconnect", s.handlers.HandleDisconnect)
			r.Get("/params", s.handlers.HandleParams)
			r.Post("/capture", s.handlers.HandleCapture)
			r.Post("/monitor", s.handlers.HandleMonitor)
			r.Put("/download-folder", s.handlers.HandleDownloadFolder)
			r.Get("/config/{key}/choices", s.handlers.HandleConfigChoices)
			r.Put("/config/{key}", s.handlers.HandleSetConfig)
		})
		r.Get("/events", s.handlers.HandleEvents)
	})

	return r
}

// Run starts the server and blocks until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.Router()}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("web server listening on %s", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
