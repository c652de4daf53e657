package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/bdobrica/Kotae/common/version"
)

// Server carries the webhook handler plus the /healthz endpoint on one
// listener.
type Server struct {
	addr      string
	startedAt time.Time
	server    *http.Server
	mux       *http.ServeMux
}

// healthResponse is returned by GET /healthz.
type healthResponse struct {
	Status     string  `json:"status"`
	Version    string  `json:"version"`
	Commit     string  `json:"commit"`
	UptimeSecs float64 `json:"uptime_seconds"`
}

// NewServer creates and configures the HTTP server (does not start it).
// The webhook handler owns every route except /healthz.
func NewServer(addr string, hook http.Handler) *Server {
	mux := http.NewServeMux()
	s := &Server{
		addr:      addr,
		startedAt: time.Now(),
		mux:       mux,
	}
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/", hook)
	return s
}

// ServeHTTP implements http.Handler so the server can be tested without a
// live network listener (e.g. with httptest.NewRecorder).
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Start begins listening in the background. Blocks until the listener is
// established so the caller knows the port is open before returning.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.addr, err)
	}

	s.server = &http.Server{
		Handler:      s,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server listening", "addr", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("server stopped", "err", err)
		}
	}()

	// Shutdown when ctx is cancelled.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			slog.Warn("server shutdown error", "err", err)
		}
	}()

	return nil
}

// Stop shuts down the HTTP server, letting in-flight turns finish.
func (s *Server) Stop() {
	if s.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		slog.Warn("server shutdown error", "err", err)
	}
}

// handleHealth responds with a simple ok JSON payload.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:     "ok",
		Version:    version.Version,
		Commit:     version.GitCommit,
		UptimeSecs: time.Since(s.startedAt).Seconds(),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Warn("server: encode health response", "err", err)
	}
}
