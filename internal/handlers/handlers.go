// Package handlers provides the HTTP and WebSocket surface of the dashboard
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/example/trafficwatch/internal/analysis"
	"github.com/example/trafficwatch/internal/fraudform"
	"github.com/example/trafficwatch/internal/jobs"
	"github.com/example/trafficwatch/internal/metrics"
	"github.com/example/trafficwatch/internal/models"
	"github.com/example/trafficwatch/internal/report"
	"github.com/example/trafficwatch/internal/storage"
	"github.com/example/trafficwatch/internal/theme"
	"github.com/example/trafficwatch/internal/workspace"
)

// Options wires a Handler to the rest of the service. Archiver, Evidence,
// Metrics and Hub are optional.
type Options struct {
	Manager  *workspace.Manager
	Theme    *theme.Store
	Hub      *Hub
	Metrics  *metrics.Metrics
	Archiver *jobs.Archiver
	Evidence storage.Provider
	Factory  *storage.Factory
	SpoolDir string
	Now      func() time.Time
}

// Handler serves the dashboard API
type Handler struct {
	manager  *workspace.Manager
	theme    *theme.Store
	hub      *Hub
	metrics  *metrics.Metrics
	archiver *jobs.Archiver
	evidence storage.Provider
	factory  *storage.Factory
	spool    *spool
	now      func() time.Time
}

// NewHandler creates the API handler
func NewHandler(o Options) *Handler {
	if o.Theme == nil {
		o.Theme = theme.Default()
	}
	if o.Factory == nil {
		o.Factory = storage.DefaultFactory
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return &Handler{
		manager:  o.Manager,
		theme:    o.Theme,
		hub:      o.Hub,
		metrics:  o.Metrics,
		archiver: o.Archiver,
		evidence: o.Evidence,
		factory:  o.Factory,
		spool:    &spool{dir: o.SpoolDir},
		now:      o.Now,
	}
}

// Routes registers every endpoint on r
func (h *Handler) Routes(r *mux.Router) {
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics.Handler()).Methods(http.MethodGet)
	}
	if h.hub != nil {
		r.HandleFunc("/ws", h.hub.ServeWs)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/categories", h.ListCategories).Methods(http.MethodGet)
	api.HandleFunc("/samples/{name}", h.GetSample).Methods(http.MethodGet)
	api.HandleFunc("/storage/status", h.GetStorageStatus).Methods(http.MethodGet)
	api.HandleFunc("/theme", h.GetTheme).Methods(http.MethodGet)
	api.HandleFunc("/theme/toggle", h.ToggleTheme).Methods(http.MethodPost)

	api.HandleFunc("/workspaces", h.ListWorkspaces).Methods(http.MethodGet)
	api.HandleFunc("/workspaces", h.CreateWorkspace).Methods(http.MethodPost)
	api.HandleFunc("/workspaces/{id}", h.GetWorkspace).Methods(http.MethodGet)
	api.HandleFunc("/workspaces/{id}", h.DeleteWorkspace).Methods(http.MethodDelete)
	api.HandleFunc("/workspaces/{id}/file", h.SelectFile).Methods(http.MethodPost)
	api.HandleFunc("/workspaces/{id}/file", h.RemoveFile).Methods(http.MethodDelete)
	api.HandleFunc("/workspaces/{id}/form", h.GetForm).Methods(http.MethodGet)
	api.HandleFunc("/workspaces/{id}/form", h.ReplaceForm).Methods(http.MethodPut)
	api.HandleFunc("/workspaces/{id}/form/scenario/{name}", h.LoadScenario).Methods(http.MethodPost)
	api.HandleFunc("/workspaces/{id}/form/submit", h.SubmitForm).Methods(http.MethodPost)
	api.HandleFunc("/workspaces/{id}/report", h.ExportReport).Methods(http.MethodGet)
	api.HandleFunc("/workspaces/{id}/overlay", h.GetOverlay).Methods(http.MethodGet)
	api.HandleFunc("/workspaces/{id}/evidence", h.ListEvidence).Methods(http.MethodGet)
}

// Health reports liveness
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

type categoryEntry struct {
	models.CategoryInfo
	Endpoints []analysis.Endpoint `json:"endpoints"`
}

// ListCategories describes every category page and its detector routes
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	out := make([]categoryEntry, 0, len(models.Categories))
	for _, info := range models.Categories {
		entry := categoryEntry{CategoryInfo: info, Endpoints: []analysis.Endpoint{}}
		for _, ep := range analysis.Endpoints {
			if ep.Category == info.Category {
				entry.Endpoints = append(entry.Endpoints, ep)
			}
		}
		out = append(out, entry)
	}
	sendJSONResponse(w, models.APIResponse{Success: true, Data: out}, http.StatusOK)
}

// GetStorageStatus reports which archive providers can be used
func (h *Handler) GetStorageStatus(w http.ResponseWriter, r *http.Request) {
	status := make(map[string]interface{})
	for _, t := range h.factory.Types() {
		available, reason := h.factory.IsAvailable(t)
		status[t] = map[string]interface{}{"available": available, "reason": reason}
	}
	data := map[string]interface{}{"providers": status}
	if h.evidence != nil {
		data["active"] = h.evidence.Type()
	}
	sendJSONResponse(w, models.APIResponse{Success: true, Data: data}, http.StatusOK)
}

func (h *Handler) workspace(w http.ResponseWriter, r *http.Request) (*workspace.Workspace, bool) {
	ws, err := h.manager.Get(mux.Vars(r)["id"])
	if err != nil {
		h.sendError(w, r, err)
		return nil, false
	}
	return ws, true
}

// statusFor maps domain errors onto HTTP statuses
func statusFor(err error) int {
	var validation *analysis.ValidationError
	switch {
	case errors.Is(err, workspace.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, workspace.ErrClosed):
		return http.StatusGone
	case errors.Is(err, workspace.ErrUnknownCategory),
		errors.Is(err, workspace.ErrNoForm),
		errors.Is(err, fraudform.ErrUnknownField),
		errors.Is(err, fraudform.ErrNoSuchVehicle),
		errors.Is(err, report.ErrUnknownFormat):
		return http.StatusBadRequest
	case errors.Is(err, fraudform.ErrUnknownScenario):
		return http.StatusNotFound
	case errors.Is(err, report.ErrNoResult):
		return http.StatusConflict
	case errors.As(err, &validation):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func (h *Handler) sendError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	}
	sendJSONError(w, err.Error(), status)
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// sendJSONResponse sends a JSON response to the client
func sendJSONResponse(w http.ResponseWriter, response interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Warn().Err(err).Msg("Failed to encode response")
	}
}

// sendJSONError sends a JSON error response to the client
func sendJSONError(w http.ResponseWriter, message string, status int) {
	sendJSONResponse(w, models.APIResponse{Success: false, Error: message}, status)
}
