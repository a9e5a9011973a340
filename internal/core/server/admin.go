package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// AdminServer serves /metrics and /healthz over HTTP.
type AdminServer struct {
	server *http.Server
	logger zerolog.Logger
}

// NewAdminRouter builds the admin routes. check may be nil.
func NewAdminRouter(registry *prometheus.Registry, check HealthCheck) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	}).Methods(http.MethodGet)
	return r
}

// NewAdminServer creates the admin server on addr.
func NewAdminServer(addr string, registry *prometheus.Registry, check HealthCheck, logger zerolog.Logger) *AdminServer {
	return &AdminServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           NewAdminRouter(registry, check),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.With().Str("component", "admin").Logger(),
	}
}

// Start listens and serves until Shutdown. A clean shutdown returns nil.
func (s *AdminServer) Start() error {
	listener, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", s.server.Addr, err)
	}
	s.logger.Info().Str("addr", listener.Addr().String()).Msg("Admin server listening")
	if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *AdminServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
