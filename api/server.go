// Package api is the HTTP facade of the state service. It translates REST
// verbs to store operations and health state to probe responses; all store
// logic lives behind the selector.
package api

import (
	"context"
	"errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/miguelmartens/sidekv/lib/selector"
	"github.com/miguelmartens/sidekv/lib/telemetry"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// shutdownTimeout bounds the connection drain on graceful shutdown.
const shutdownTimeout = 10 * time.Second

// Server serves the state API and the health/metrics probe endpoints.
type Server struct {
	sel    *selector.Selector
	logger *slog.Logger
}

// NewServer creates a new HTTP facade over the given selector.
func NewServer(sel *selector.Selector, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		sel:    sel,
		logger: logger,
	}
}

// Router builds the chi router with all routes and middleware registered.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer,
		middleware.RequestID,
		s.logRequests,
	)

	r.Get("/livez", s.handleLivez)
	r.Get("/readyz", s.handleReadyz)
	r.Get("/health", s.handleLivez)
	r.Get("/metrics", s.handleMetrics)

	r.Get("/api/v1/state/{key}", s.handleGet)
	r.Post("/api/v1/state/{key}", s.handleSet)
	r.Delete("/api/v1/state/{key}", s.handleDelete)

	return r
}

// Serve listens on endpoint until ctx is canceled, then drains connections
// with a bounded timeout.
func (s *Server) Serve(ctx context.Context, endpoint string) error {
	srv := &http.Server{
		Addr:    endpoint,
		Handler: s.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	s.logger.Info("server starting", "endpoint", endpoint)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		s.logger.Info("server stopped")
		return nil
	}
}

// --------------------------------------------------------------------------
// State Handlers
// --------------------------------------------------------------------------

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if key == "" {
		http.Error(w, "missing key", http.StatusBadRequest)
		return
	}

	value, found, _, err := s.sel.Get(r.Context(), key)
	if err != nil {
		s.failOp(w, r, "get", key, err)
		return
	}
	if !found {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(value); err != nil {
		s.logger.Debug("failed to write response", "key", key, "err", err)
	}
}

func (s *Server) handleSet(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if key == "" {
		http.Error(w, "missing key", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	if _, err := s.sel.Set(r.Context(), key, body); err != nil {
		s.failOp(w, r, "set", key, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if key == "" {
		http.Error(w, "missing key", http.StatusBadRequest)
		return
	}

	if _, err := s.sel.Delete(r.Context(), key); err != nil {
		s.failOp(w, r, "delete", key, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// failOp maps a failed store operation to a server-error response. The
// response never reveals whether the sidecar or the fallback was active -
// that is an internal and telemetry concern, not part of the public contract.
func (s *Server) failOp(w http.ResponseWriter, r *http.Request, op, key string, err error) {
	if errors.Is(err, context.Canceled) {
		// Client went away, nobody is reading the response
		return
	}
	s.logger.Error(op+" state failed", "key", key, "err", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

// --------------------------------------------------------------------------
// Probe and Metrics Handlers
// --------------------------------------------------------------------------

func (s *Server) handleLivez(w http.ResponseWriter, _ *http.Request) {
	if !s.sel.Liveness() {
		http.Error(w, "faulted", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	if state := s.sel.Readiness(); state != selector.Ready {
		http.Error(w, state.String(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	telemetry.WritePrometheus(w)
}

// --------------------------------------------------------------------------
// Middleware (logging)
// --------------------------------------------------------------------------

// logRequests logs every request with its status code and duration.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Debug("request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
