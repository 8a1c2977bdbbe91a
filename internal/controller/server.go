// Package controller contains the HTTP API of the orchestrator: health
// probes, record inspection and the guarded operator triggers.
package controller

import (
	"context"
	"net/http"
	"time"

	"driveplane/internal/controller/handlers"
	"driveplane/internal/controller/middleware"
)

// Server is the HTTP server for the orchestrator API.
type Server struct {
	httpServer *http.Server
}

// New creates a new API server. metricsHandler serves /metrics;
// internalSecret guards the mutating operator endpoints.
func New(addr string, h *handlers.Handlers, metricsHandler http.Handler, internalSecret string) *Server {
	internalMW := middleware.RequireInternalAuth(internalSecret)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	mux.Handle("GET /metrics", metricsHandler)

	// Read-only record inspection
	mux.HandleFunc("GET /pipelines", h.ListRecords)
	mux.HandleFunc("GET /pipelines/{id}", h.GetRecord)

	// Operator endpoints: bypass the schedule.
	// These should run on a restricted network or behind strict rules.
	mux.Handle("POST /internal/run", internalMW(http.HandlerFunc(h.InternalRun)))
	mux.Handle("POST /internal/run/pending", internalMW(http.HandlerFunc(h.InternalRunPending)))
	mux.Handle("POST /internal/sweep", internalMW(http.HandlerFunc(h.InternalSweep)))

	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Minute, // manual runs block until the pass ends
		},
	}
}

// Run starts the HTTP server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutDownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return s.Shutdown(shutDownCtx)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
