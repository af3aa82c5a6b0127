// Package api exposes the watch-mode status server: health, stats, and
// prometheus metrics. Batch runs don't start it.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/snarg/psola/internal/config"
	"github.com/snarg/psola/internal/watch"
)

// StatsSource supplies live watcher counters to the stats endpoint.
type StatsSource func() watch.Stats

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

func NewServer(cfg *config.Config, stats StatsSource, version string, log zerolog.Logger) *Server {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(Logger(log))
	r.Use(Recoverer)

	health := NewHealthHandler(stats, version)
	r.Get("/healthz", health.ServeHTTP)
	r.Get("/api/v1/stats", health.Stats)
	r.Handle("/metrics", promhttp.Handler())

	return &Server{
		http: &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		log: log,
	}
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("status server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("status server shutting down")
	return s.http.Shutdown(ctx)
}
