package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"incidentscope/core/store"
	"incidentscope/core/tenant"
	"incidentscope/core/utils"
)

type IncidentsHandler struct {
	store  store.IncidentsStore
	logger *utils.Logger
}

func NewIncidentsHandler(is store.IncidentsStore, logger *utils.Logger) *IncidentsHandler {
	return &IncidentsHandler{store: is, logger: logger}
}

type createIncidentRequest struct {
	EnvID            string            `json:"envId"`
	PrimaryServiceID string            `json:"primaryServiceId"`
	Severity         int               `json:"severity"`
	Title            string            `json:"title"`
	DetectedAtUnixMs int64             `json:"detectedAtUnixMs"`
	CreatedBy        string            `json:"createdBy"`
	Labels           map[string]string `json:"labels"`
}

type resolveIncidentRequest struct {
	ResolvedBy *string `json:"resolvedBy"`
}

func (h *IncidentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenant.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusBadRequest, "Missing tenant header")
		return
	}
	var req createIncidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	inc, err := h.store.CreateIncident(r.Context(), tc, &store.NewIncident{
		EnvID:            req.EnvID,
		PrimaryServiceID: req.PrimaryServiceID,
		Severity:         req.Severity,
		Title:            req.Title,
		DetectedAtUnixMs: req.DetectedAtUnixMs,
		CreatedBy:        req.CreatedBy,
		Labels:           req.Labels,
	})
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/incidents/%s", inc.ID))
	writeJSON(w, http.StatusCreated, inc)
}

func (h *IncidentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenant.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusBadRequest, "Missing tenant header")
		return
	}
	inc, err := h.store.GetIncident(r.Context(), tc, urlParam(r, "id"))
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

func (h *IncidentsHandler) List(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenant.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusBadRequest, "Missing tenant header")
		return
	}
	filter := store.IncidentFilter{
		EnvID:  strings.TrimSpace(r.URL.Query().Get("envId")),
		Status: strings.TrimSpace(r.URL.Query().Get("status")),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("severity")); raw != "" {
		sev, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid severity: must be an integer")
			return
		}
		filter.Severity = &sev
	}
	items, err := h.store.ListIncidents(r.Context(), tc, filter)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	if items == nil {
		items = []store.Incident{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *IncidentsHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenant.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusBadRequest, "Missing tenant header")
		return
	}
	var req resolveIncidentRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "malformed request body")
			return
		}
	}
	if err := h.store.ResolveIncident(r.Context(), tc, urlParam(r, "id"), req.ResolvedBy); err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *IncidentsHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenant.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusBadRequest, "Missing tenant header")
		return
	}
	events, err := h.store.ListIncidentEvents(r.Context(), tc, urlParam(r, "id"))
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	if events == nil {
		events = []store.IncidentEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

// respondStoreError maps the store taxonomy onto status codes: malformed
// input 400, tenant-scoped miss 404, anything else 500.
func (h *IncidentsHandler) respondStoreError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *store.ValidationError
	if errors.As(err, &ve) {
		writeError(w, http.StatusBadRequest, ve.Error())
		return
	}
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "incident not found")
		return
	}
	if h.logger != nil {
		h.logger.Errorf("store failure %s %s: %v", r.Method, r.URL.Path, err)
	}
	writeError(w, http.StatusInternalServerError, "server error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
