// Package api serves an ActionKV store over HTTP.
//
// @title           ActionKV REST API
// @version         1.0.0
// @description     Key-value access to an ActionKV data file.
// @BasePath        /api/v1
//
// @securityDefinitions.apikey ApiKeyAuth
// @in              header
// @name            X-API-Key
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/phuslu/log"
)

const (
	statsInterval   = 30 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Routes builds the router with all routes configured
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Prometheus metrics endpoint (unprotected for scraping)
	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.metrics.InstrumentAuthMiddleware(apiKeyMiddleware(s.config.APIKey)))

		r.Get("/health", s.metrics.InstrumentHandler("GET", "/api/v1/health", s.handleHealth))

		// KV operations
		r.Put("/kv/{key}", s.metrics.InstrumentHandler("PUT", "/api/v1/kv/{key}", s.handlePut))
		r.Get("/kv/{key}", s.metrics.InstrumentHandler("GET", "/api/v1/kv/{key}", s.handleGet))
		r.Delete("/kv/{key}", s.metrics.InstrumentHandler("DELETE", "/api/v1/kv/{key}", s.handleDelete))
		r.Get("/kv", s.metrics.InstrumentHandler("GET", "/api/v1/kv", s.handleListKeys))

		// Diagnostics
		r.Get("/stats", s.metrics.InstrumentHandler("GET", "/api/v1/stats", s.handleStats))
		r.Post("/cache/flush", s.metrics.InstrumentHandler("POST", "/api/v1/cache/flush", s.handleFlush))
	})

	return r
}

// Addr returns the listen address
func (c ServerConfig) Addr() string {
	return net.JoinHostPort(c.Bind, strconv.Itoa(c.Port))
}

// StartServer serves the store until ctx is cancelled, then shuts down gracefully
func StartServer(ctx context.Context, kv IKVStore, config ServerConfig, logger *log.Logger) error {
	server := NewServer(kv, config, NewMetrics(), logger)

	listener, err := net.Listen("tcp", config.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", config.Addr(), err)
	}
	return server.Serve(ctx, listener)
}

// Serve accepts HTTP connections on listener until ctx is cancelled
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	updaterCtx, stopUpdater := context.WithCancel(ctx)
	defer stopUpdater()
	go s.runStatsUpdater(updaterCtx, statsInterval)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", listener.Addr().String()).Msg("REST API listening")
		errCh <- httpServer.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown REST API: %w", err)
	}
	s.logger.Info().Msg("REST API stopped")
	return nil
}
