package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/eltrade/mnconfig/internal/service"
)

const maxBodyBytes = 1 << 20

func (s *HTTPServer) registerConfigHandlers(r *mux.Router) {
	r.HandleFunc("/api/mn-config", s.handleEffectiveAll).Methods(http.MethodGet)
	r.HandleFunc("/api/mn-config", s.handleClear).Methods(http.MethodDelete)
	// history must be registered before the generic component route
	r.HandleFunc("/api/mn-config/history/{componentKey}", s.handleHistory).Methods(http.MethodGet)
	r.HandleFunc("/api/mn-config/{componentKey}", s.handleEffective).Methods(http.MethodGet)
	r.HandleFunc("/api/mn-config/{componentKey}", s.handleUpsert).Methods(http.MethodPut)
	r.HandleFunc("/api/mn-config/{componentKey}", s.handleDeleteComponent).Methods(http.MethodDelete)
}

// decodeQuery reads tenant, env, route and page from the query string
func (s *HTTPServer) decodeQuery(r *http.Request) (service.Query, error) {
	var q service.Query
	if err := s.decoder.Decode(&q, r.URL.Query()); err != nil {
		return q, errors.Wrap(err, "invalid query parameters")
	}
	return q, nil
}

// handleEffectiveAll returns the merged configuration of every component
func (s *HTTPServer) handleEffectiveAll(w http.ResponseWriter, r *http.Request) {
	q, err := s.decodeQuery(r)
	if err != nil {
		badRequest(w, "%v", err)
		return
	}

	result, err := s.svc.EffectiveAll(r.Context(), q)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleEffective returns the merged configuration of one component
func (s *HTTPServer) handleEffective(w http.ResponseWriter, r *http.Request) {
	q, err := s.decodeQuery(r)
	if err != nil {
		badRequest(w, "%v", err)
		return
	}

	result, err := s.svc.Effective(r.Context(), getVar(r, "componentKey"), q)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleHistory returns every stored version of a component
func (s *HTTPServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	q, err := s.decodeQuery(r)
	if err != nil {
		badRequest(w, "%v", err)
		return
	}

	docs, err := s.svc.History(r.Context(), getVar(r, "componentKey"), q.Tenant, q.Env)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

type upsertResponse struct {
	Status  string `json:"status"`
	Version int    `json:"version"`
}

// upsertQuery is the query string of a PUT. tenant_q and env_q are the
// names existing clients send; tenant and env are accepted as well.
type upsertQuery struct {
	TenantQ string `schema:"tenant_q"`
	EnvQ    string `schema:"env_q"`
	Tenant  string `schema:"tenant"`
	Env     string `schema:"env"`
}

func (q upsertQuery) tenant() string {
	if q.TenantQ != "" {
		return q.TenantQ
	}
	return q.Tenant
}

func (q upsertQuery) env() string {
	if q.EnvQ != "" {
		return q.EnvQ
	}
	return q.Env
}

// handleUpsert appends a new version for a component scope. Tenant and env
// in the body win over the query string.
func (s *HTTPServer) handleUpsert(w http.ResponseWriter, r *http.Request) {
	var q upsertQuery
	if err := s.decoder.Decode(&q, r.URL.Query()); err != nil {
		badRequest(w, "%v", errors.Wrap(err, "invalid query parameters"))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		badRequest(w, "unable to read request body: %v", err)
		return
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		badRequest(w, "request body is required")
		return
	}

	var req service.UpsertRequest
	if err := json.Unmarshal(body, &req); err != nil {
		badRequest(w, "invalid JSON body: %v", err)
		return
	}
	if req.Tenant == "" {
		req.Tenant = q.tenant()
	}
	if req.Env == "" {
		req.Env = q.env()
	}

	version, err := s.svc.Upsert(r.Context(), getVar(r, "componentKey"), req)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, upsertResponse{Status: "ok", Version: version})
}

type statusResponse struct {
	Status  string `json:"status"`
	Removed *int   `json:"removed,omitempty"`
}

// handleDeleteComponent removes every document of a component for the
// tenant and environment (dev helper)
func (s *HTTPServer) handleDeleteComponent(w http.ResponseWriter, r *http.Request) {
	if !s.devHelpersAllowed(w) {
		return
	}
	q, err := s.decodeQuery(r)
	if err != nil {
		badRequest(w, "%v", err)
		return
	}

	n, err := s.svc.DeleteComponent(r.Context(), getVar(r, "componentKey"), q.Tenant, q.Env)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "deleted", Removed: &n})
}

// handleClear removes every stored document (dev helper)
func (s *HTTPServer) handleClear(w http.ResponseWriter, r *http.Request) {
	if !s.devHelpersAllowed(w) {
		return
	}
	if err := s.svc.Clear(r.Context()); err != nil {
		s.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "cleared"})
}

// serviceError maps a service error to its HTTP response
func (s *HTTPServer) serviceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		validationFailed(w, verr.Details)
	case errors.Is(err, service.ErrInvalidScope),
		errors.Is(err, service.ErrInvalidValue),
		errors.Is(err, service.ErrInvalidComponent):
		badRequest(w, "%v", err)
	default:
		s.internalError(w, r, err)
	}
}

func (s *HTTPServer) devHelpersAllowed(w http.ResponseWriter) bool {
	if s.cfg.Server.DevHelpersEnabled {
		return true
	}
	writeDetail(w, http.StatusForbidden, "dev helpers are disabled")
	return false
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
