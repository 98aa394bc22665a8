// Package api serves the worker's read-only registry API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	temporalclient "go.temporal.io/sdk/client"

	mw "github.com/edvin/clientops/internal/api/middleware"
	"github.com/edvin/clientops/internal/metrics"
	"github.com/edvin/clientops/internal/model"
	"github.com/edvin/clientops/internal/registry"
)

// HealthChecker is the part of the Temporal client used by /readyz.
type HealthChecker interface {
	CheckHealth(ctx context.Context, request *temporalclient.CheckHealthRequest) (*temporalclient.CheckHealthResponse, error)
}

type Server struct {
	router   chi.Router
	logger   zerolog.Logger
	store    registry.Store
	temporal HealthChecker
}

// NewServer builds the router. temporal may be nil, in which case /readyz
// only checks the registry.
func NewServer(logger zerolog.Logger, store registry.Store, temporal HealthChecker) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		logger:   logger,
		store:    store,
		temporal: temporal,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(mw.RequestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(mw.Metrics)
}

func (s *Server) setupRoutes() {
	s.router.Handle("/metrics", metrics.Handler())

	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/readyz", s.handleReadyz)

	s.router.Get("/clients", s.handleListClients)
	s.router.Get("/clients/{name}", s.handleGetClient)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	if _, err := s.store.List(ctx, registry.Filter{Status: model.StatusPending}); err != nil {
		checks["registry"] = err.Error()
		healthy = false
	} else {
		checks["registry"] = "ok"
	}

	if s.temporal != nil {
		if _, err := s.temporal.CheckHealth(ctx, &temporalclient.CheckHealthRequest{}); err != nil {
			checks["temporal"] = err.Error()
			healthy = false
		} else {
			checks["temporal"] = "ok"
		}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, checks)
}

func (s *Server) handleListClients(w http.ResponseWriter, r *http.Request) {
	var f registry.Filter
	if v := r.URL.Query().Get("status"); v != "" {
		st, err := model.ParseStatus(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		f.Status = st
	}
	if v := r.URL.Query().Get("role"); v != "" {
		role, err := model.ParseRole(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		f.Role = role
	}

	clients, err := s.store.List(r.Context(), f)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("list clients")
		writeError(w, http.StatusInternalServerError, "registry unavailable")
		return
	}
	if clients == nil {
		clients = []*model.Client{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": clients})
}

func (s *Server) handleGetClient(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	c, err := s.store.Get(r.Context(), name)
	if errors.Is(err, registry.ErrNotFound) {
		writeError(w, http.StatusNotFound, "client "+name+" not found")
		return
	}
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("client", name).Msg("get client")
		writeError(w, http.StatusInternalServerError, "registry unavailable")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
