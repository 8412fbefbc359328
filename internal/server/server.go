// Package server provides the HTTP server for doccapture.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/doccapture/internal/app"
	"github.com/ayusman/doccapture/internal/logger"
	"github.com/ayusman/doccapture/internal/server/api"
)

// Config holds the server configuration.
type Config struct {
	StaticDir string
	App       *app.App
	// StateInterval is how often /api/quad checks for a new detector state.
	StateInterval time.Duration
}

// Server represents the HTTP server for the doccapture application.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
	state  *StateHandler
	log    *zap.Logger
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	if config.StateInterval <= 0 {
		config.StateInterval = 66 * time.Millisecond
	}
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
		log:    logger.Named("server"),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if a := s.config.App; a != nil {
		devices := api.NewDeviceHandler(a)
		s.mux.Handle("/api/devices", devices)
		s.mux.Handle("/api/devices/", devices)

		s.mux.Handle("/api/capture", api.NewCaptureHandler(a))

		cropHandler := api.NewCropHandler(a)
		s.mux.Handle("/api/crop", cropHandler)
		s.mux.Handle("/api/crop/", cropHandler)

		s.mux.Handle("/api/stream", NewStreamHandler(a.Overlay(), time.Second/time.Duration(a.Detector().Config().FPS)))

		s.state = NewStateHandler(a, s.config.StateInterval)
		s.mux.Handle("/api/quad", s.state)

		if st := a.Store(); st != nil {
			documents := api.NewDocumentHandler(st)
			s.mux.Handle("/api/documents", documents)
			s.mux.Handle("/api/documents/", documents)
		}

		if m := a.Metrics(); m != nil {
			s.mux.Handle("/metrics", m.Handler())
		}
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	}
	if a := s.config.App; a != nil {
		st := a.State()
		response["running"] = st.Running
		response["enabled"] = st.Enabled
		response["stable"] = st.Stable
		response["device"] = st.Device
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// Run serves on addr until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		// Open streams end with ctx.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.Close()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Close()
	err := srv.Shutdown(shutdownCtx)
	if errors.Is(err, context.DeadlineExceeded) {
		return srv.Close()
	}
	return err
}

// Close stops the state broadcaster.
func (s *Server) Close() {
	if s.state != nil {
		s.state.Close()
	}
}
