// Package server provides the local HTTP server of fastcheck: the screening
// controls, the attempt history, the live preview and the overlay feed.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ayusman/fastcheck/internal/screening"
	"github.com/ayusman/fastcheck/internal/server/api"
	"github.com/ayusman/fastcheck/internal/store"
)

// App is the running application as seen by the server.
type App interface {
	api.Screening
	Preview() ([]byte, bool)
	OnOverlay(fn func(screening.Overlay))
}

// Config holds the server configuration.
type Config struct {
	StaticDir string
	Store     *store.Store
	App       App
	Auth      api.Auth
	ArmImages api.ArmImages
	// FPS caps the preview stream rate.
	FPS int
	Log zerolog.Logger
}

// Server represents the HTTP server for the fastcheck application.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
	hub    *OverlayHub
	http   *http.Server
	log    zerolog.Logger

	quit     chan struct{}
	quitOnce sync.Once
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
		log:    config.Log.With().Str("component", "server").Logger(),
		quit:   make(chan struct{}),
	}
	s.http = &http.Server{Handler: s, ReadHeaderTimeout: 10 * time.Second}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.Store != nil {
		attempts := api.NewAttemptsHandler(s.config.Store)
		s.mux.Handle("/api/attempts", attempts)
		s.mux.Handle("/api/attempts/", attempts)
	}

	if s.config.App != nil {
		screeningHandler := api.NewScreeningHandler(s.config.App)
		s.mux.Handle("/api/screening", screeningHandler)
		s.mux.Handle("/api/screening/", screeningHandler)

		s.mux.Handle("/api/stream", NewStreamHandler(s.config.App, s.config.FPS, s.quit))

		s.hub = NewOverlayHub(s.log)
		s.config.App.OnOverlay(s.hub.Publish)
		s.mux.Handle("/api/overlay", s.hub)
	}

	if s.config.Auth != nil {
		s.mux.Handle("/api/auth/", api.NewAuthHandler(s.config.Auth))
	}

	if s.config.ArmImages != nil {
		s.mux.Handle("/api/arm/", api.NewArmImageHandler(s.config.ArmImages))
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

	response := map[string]any{
		"status": "ok",
		"uptime": time.Since(s.start).Round(time.Second).String(),
	}
	if s.config.App != nil {
		response["running"] = s.config.App.Running()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// ListenAndServe starts the HTTP server on the given address and blocks
// until Shutdown is called or the listener fails.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.log.Info().Str("addr", ln.Addr().String()).Msg("listening")
	if err := s.http.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown ends the preview streams and the overlay feed, then stops the
// listener, waiting for open requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.quitOnce.Do(func() { close(s.quit) })
	if s.hub != nil {
		s.hub.Close()
	}
	return s.http.Shutdown(ctx)
}
