package gateway

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"incidentscope/core/tenant"
)

// proxyIncidents forwards the request to the incident service under the
// same path minus the /api prefix and relays the response untouched.
// Status codes pass through so the error taxonomy stays identical on
// both surfaces.
func (s *Server) proxyIncidents(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenant.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusBadRequest, "Missing tenant header")
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/api")
	if r.URL.RawQuery != "" {
		path += "?" + r.URL.RawQuery
	}
	// A zero-length inbound body stays absent downstream; forwarding it
	// as a chunked empty stream would make the service decode EOF.
	var body io.Reader
	if r.Method == http.MethodPost && r.ContentLength != 0 {
		body = r.Body
	}
	resp, err := s.backend.do(r.Context(), r.Method, path, tc, body)
	if err != nil {
		s.logger.Errorf("proxy %s %s: %v", r.Method, path, err)
		writeError(w, http.StatusBadGateway, "Incident service unavailable")
		return
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	if loc := resp.Header.Get("Location"); loc != "" {
		w.Header().Set("Location", "/api"+loc)
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

// incidentOverview is the aggregated view the UI incident page renders.
// Timeline, hypotheses and suspect services are collected by analysis
// components that do not exist yet; the slices are always present so
// the page never branches on null.
type incidentOverview struct {
	Incident        json.RawMessage `json:"incident"`
	Timeline        []any           `json:"timeline"`
	Hypotheses      []any           `json:"hypotheses"`
	SuspectServices []any           `json:"suspectServices"`
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenant.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusBadRequest, "Missing tenant header")
		return
	}
	id := chi.URLParam(r, "incidentID")
	resp, err := s.backend.get(r.Context(), "/incidents/"+id, tc)
	if err != nil {
		s.logger.Errorf("overview %s: %v", id, err)
		writeError(w, http.StatusBadGateway, "Incident service unavailable")
		return
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		s.logger.Errorf("overview %s: read body: %v", id, err)
		writeError(w, http.StatusBadGateway, "Incident service unavailable")
		return
	}
	if resp.StatusCode != http.StatusOK {
		if ct := resp.Header.Get("Content-Type"); ct != "" {
			w.Header().Set("Content-Type", ct)
		}
		w.WriteHeader(resp.StatusCode)
		_, _ = w.Write(payload)
		return
	}
	writeJSON(w, http.StatusOK, incidentOverview{
		Incident:        json.RawMessage(payload),
		Timeline:        []any{},
		Hypotheses:      []any{},
		SuspectServices: []any{},
	})
}
