// Package http exposes a worker over HTTP: the websocket endpoint clients
// dial, plus an admin API to list clients, reach their storage and trigger
// a controller handoff.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/aretw0/servicemocker"
	"github.com/aretw0/servicemocker/internal/logging"
	"github.com/aretw0/servicemocker/pkg/adapters/ws"
	"github.com/aretw0/servicemocker/pkg/message"
	"github.com/aretw0/servicemocker/pkg/worker"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server serves the admin API for one worker.
type Server struct {
	Worker   *worker.Worker
	logger   *slog.Logger
	gatherer prometheus.Gatherer
}

// Option configures the handler.
type Option func(*Server)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics mounts /metrics for g.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// NewHandler creates the HTTP handler for w.
func NewHandler(w *worker.Worker, opts ...Option) http.Handler {
	s := &Server{Worker: w, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Handle("/ws", ws.Handler(s.serveLink, ws.WithLogger(s.logger)))
	r.Get("/clients", s.ListClients)
	r.Post("/activate", s.Activate)
	r.Route("/clients/{id}/storage", func(r chi.Router) {
		r.Delete("/", s.ClearStorage)
		r.Get("/*", s.GetItem)
		r.Put("/*", s.SetItem)
		r.Delete("/*", s.RemoveItem)
	})
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) serveLink(ctx context.Context, conn *ws.Conn) {
	if err := s.Worker.Serve(ctx, conn); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("client link ended", "err", err)
	}
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"app":            "servicemocker-worker",
		"version":        servicemocker.Version,
		"worker_version": s.Worker.Version(),
	})
}

// ListClients handles the GET /clients request.
func (s *Server) ListClients(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Worker.Clients())
}

// Activate handles the POST /activate request: a new worker version takes control.
func (s *Server) Activate(w http.ResponseWriter, r *http.Request) {
	version, err := s.Worker.Activate(r.Context())
	if err != nil {
		s.logger.Warn("activation did not reach every client", "err", err)
	}
	writeJSON(w, http.StatusOK, map[string]int{"version": version})
}

// GetItem handles GET /clients/{id}/storage/{key}.
func (s *Server) GetItem(w http.ResponseWriter, r *http.Request) {
	store, ok := s.storage(w, r)
	if !ok {
		return
	}
	value, err := store.Get(r.Context(), chi.URLParam(r, "*"))
	if err != nil {
		s.fail(w, "GetItem", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"value": value})
}

// SetItem handles PUT /clients/{id}/storage/{key}. The body is the JSON value.
func (s *Server) SetItem(w http.ResponseWriter, r *http.Request) {
	store, ok := s.storage(w, r)
	if !ok {
		return
	}

	var value any
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&value); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("SetItem: Invalid request body", "error", err)
		return
	}

	stored, err := store.Set(r.Context(), chi.URLParam(r, "*"), value)
	if err != nil {
		s.fail(w, "SetItem", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"value": stored})
}

// RemoveItem handles DELETE /clients/{id}/storage/{key}.
func (s *Server) RemoveItem(w http.ResponseWriter, r *http.Request) {
	store, ok := s.storage(w, r)
	if !ok {
		return
	}
	if err := store.Remove(r.Context(), chi.URLParam(r, "*")); err != nil {
		s.fail(w, "RemoveItem", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearStorage handles DELETE /clients/{id}/storage.
func (s *Server) ClearStorage(w http.ResponseWriter, r *http.Request) {
	store, ok := s.storage(w, r)
	if !ok {
		return
	}
	if err := store.Clear(r.Context()); err != nil {
		s.fail(w, "ClearStorage", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) storage(w http.ResponseWriter, r *http.Request) (*worker.RemoteStorage, bool) {
	store, err := s.Worker.Storage(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return nil, false
	}
	return store, true
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	status := http.StatusInternalServerError
	var replyErr *message.ReplyError
	switch {
	case errors.Is(err, message.ErrTimeout):
		status = http.StatusGatewayTimeout
	case errors.As(err, &replyErr):
		status = http.StatusBadGateway
	}
	s.logger.Error(op+" failed", "error", err)
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", "error", err)
	}
}
