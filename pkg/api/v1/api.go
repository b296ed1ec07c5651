// SPDX-FileCopyrightText: Copyright 2025 Fulcrum Authors
// SPDX-License-Identifier: Apache-2.0

// Package v1 is the operator HTTP API. The console commands consume it;
// it exposes registry snapshots, profile management, and evacuation.
package v1

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/haroldDOTsh/fulcrum/pkg/errors"
	"github.com/haroldDOTsh/fulcrum/pkg/logger"
	"github.com/haroldDOTsh/fulcrum/pkg/netconfig"
	"github.com/haroldDOTsh/fulcrum/pkg/registry"
	"github.com/haroldDOTsh/fulcrum/pkg/registry/evacuation"
	"github.com/haroldDOTsh/fulcrum/pkg/telemetry"
)

// Deps are the core components the API reads from and commands.
type Deps struct {
	Proxies     *registry.ProxyRegistry
	Backends    *registry.BackendRegistry
	Profiles    *netconfig.Manager
	Evacuations *evacuation.Coordinator
	// Metrics, when set, is mounted at /metrics and fed apply outcomes.
	Metrics *telemetry.Metrics
}

// Router builds the API router.
func Router(deps Deps) http.Handler {
	routes := &apiRoutes{deps: deps}

	r := chi.NewRouter()
	r.Get("/health", routes.getHealth)
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.Handler())
	}
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/proxies", routes.listProxies)
		r.Get("/backends", routes.listBackends)
		r.Get("/profiles", routes.listProfiles)
		r.Post("/profiles/{id}/apply", routes.applyProfile)
		r.Post("/backends/{id}/evacuate", routes.evacuateBackend)
		r.Post("/proxies/{id}/release", routes.releaseProxyID)
		r.Post("/backends/{id}/release", routes.releaseBackendID)
	})
	return r
}

type apiRoutes struct {
	deps Deps
}

// errorResponse is the JSON error body.
type errorResponse struct {
	Error string `json:"error"`
	Type  string `json:"type,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Errorw("encoding API response", "error", err)
	}
}

// writeError maps the core error kinds onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var errType string
	switch {
	case errors.IsNotFound(err):
		status = http.StatusNotFound
		errType = string(errors.ErrNotFound)
	case errors.IsValidation(err):
		status = http.StatusUnprocessableEntity
		errType = string(errors.ErrValidation)
	case errors.IsInvariant(err):
		status = http.StatusConflict
		errType = string(errors.ErrInvariant)
	case errors.IsInvalidArgument(err):
		status = http.StatusBadRequest
		errType = string(errors.ErrInvalidArgument)
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Type: errType})
}

func (a *apiRoutes) getHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// proxyListResponse wraps the proxy snapshot.
type proxyListResponse struct {
	Proxies []registry.ProxyEntry `json:"proxies"`
}

func (a *apiRoutes) listProxies(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, proxyListResponse{Proxies: a.deps.Proxies.Snapshot()})
}

// backendListResponse wraps the backend snapshot.
type backendListResponse struct {
	Backends []registry.BackendEntry `json:"backends"`
}

func (a *apiRoutes) listBackends(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, backendListResponse{Backends: a.deps.Backends.Snapshot()})
}

// profileListResponse wraps the profile catalog.
type profileListResponse struct {
	Profiles []netconfig.Summary `json:"profiles"`
}

func (a *apiRoutes) listProfiles(w http.ResponseWriter, r *http.Request) {
	summaries, err := a.deps.Profiles.ListProfiles(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profileListResponse{Profiles: summaries})
}

func (a *apiRoutes) applyProfile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := a.deps.Profiles.ApplyProfile(r.Context(), id)
	if a.deps.Metrics != nil {
		a.deps.Metrics.RecordProfileApply(err == nil)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"applied": id})
}

// evacuateRequest is the evacuation command body.
type evacuateRequest struct {
	Reason string `json:"reason"`
}

func (a *apiRoutes) evacuateBackend(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req evacuateRequest
	if r.Body != nil {
		// An empty body means an unexplained drain; that is allowed.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if err := a.deps.Evacuations.Evacuate(r.Context(), registry.KindBackend, id, req.Reason); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"evacuating": id})
}

func (a *apiRoutes) releaseProxyID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.deps.Proxies.ForceRelease(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"released": id})
}

func (a *apiRoutes) releaseBackendID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.deps.Backends.ForceRelease(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"released": id})
}
