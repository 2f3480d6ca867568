package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"incidentscope/api"
	"incidentscope/config"
	"incidentscope/core/store"
	"incidentscope/core/tenant"
	"incidentscope/core/utils"
)

const (
	tenantOne = "00000000-0000-0000-0000-000000000001"
	envTwo    = "00000000-0000-0000-0000-000000000002"
)

// setupGateway stands up a real incident service on an httptest
// listener and a gateway pointed at it.
func setupGateway(t *testing.T) (*Server, http.Handler) {
	t.Helper()
	cfg := &config.AppConfig{
		DBDriver: "sqlite",
		DBPath:   filepath.Join(t.TempDir(), "gw.db"),
		Tenancy:  config.TenancyConfig{HeaderPolicy: "strict"},
	}
	logger := utils.NewLogger()
	db, err := store.NewDB(cfg, logger)
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := store.ApplyMigrations(context.Background(), db, logger); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	backendSrv := httptest.NewServer(api.NewServer(cfg, db, logger).Router())
	t.Cleanup(backendSrv.Close)

	cfg.Gateway.IncidentServiceURL = backendSrv.URL
	gw := NewServer(cfg, logger)
	return gw, gw.Router()
}

func gwRequest(t *testing.T, h http.Handler, method, path, tenantID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if tenantID != "" {
		req.Header.Set(tenant.Header, tenantID)
	}
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func createViaGateway(t *testing.T, h http.Handler, title string) store.Incident {
	t.Helper()
	rr := gwRequest(t, h, http.MethodPost, "/api/incidents", tenantOne, map[string]any{
		"envId": envTwo, "severity": 2, "title": title,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create via gateway: expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	var inc store.Incident
	if err := json.Unmarshal(rr.Body.Bytes(), &inc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return inc
}

func TestGatewayProxiesIncidentLifecycle(t *testing.T) {
	_, h := setupGateway(t)

	inc := createViaGateway(t, h, "checkout errors")

	rr := gwRequest(t, h, http.MethodGet, "/api/incidents/"+inc.ID, tenantOne, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", rr.Code)
	}

	rr = gwRequest(t, h, http.MethodPost, "/api/incidents/"+inc.ID+"/resolve", tenantOne, map[string]any{})
	if rr.Code != http.StatusOK {
		t.Fatalf("resolve: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = gwRequest(t, h, http.MethodGet, "/api/incidents?status=resolved", tenantOne, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", rr.Code)
	}
	var items []store.Incident
	if err := json.Unmarshal(rr.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(items) != 1 || items[0].ID != inc.ID {
		t.Fatalf("unexpected list: %+v", items)
	}
}

func TestGatewayRewritesLocationHeader(t *testing.T) {
	_, h := setupGateway(t)
	rr := gwRequest(t, h, http.MethodPost, "/api/incidents", tenantOne, map[string]any{
		"envId": envTwo, "severity": 1, "title": "edge locate",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rr.Code)
	}
	var inc store.Incident
	if err := json.Unmarshal(rr.Body.Bytes(), &inc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if loc := rr.Header().Get("Location"); loc != "/api/incidents/"+inc.ID {
		t.Fatalf("unexpected location %q", loc)
	}
}

func TestGatewayForwardsBodylessResolve(t *testing.T) {
	_, h := setupGateway(t)
	inc := createViaGateway(t, h, "quiet resolve")

	rr := gwRequest(t, h, http.MethodPost, "/api/incidents/"+inc.ID+"/resolve", tenantOne, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("bodyless resolve: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	rr = gwRequest(t, h, http.MethodGet, "/api/incidents/"+inc.ID, tenantOne, nil)
	var got store.Incident
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Status != store.StatusResolved {
		t.Fatalf("expected resolved, got %q", got.Status)
	}
}

func TestGatewayRequiresTenantHeader(t *testing.T) {
	_, h := setupGateway(t)
	rr := gwRequest(t, h, http.MethodGet, "/api/incidents", "", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 at the edge, got %d", rr.Code)
	}
}

func TestGatewayPassesBackendStatusCodes(t *testing.T) {
	_, h := setupGateway(t)
	rr := gwRequest(t, h, http.MethodGet, "/api/incidents/00000000-0000-0000-0000-00000000dead", tenantOne, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 passthrough, got %d", rr.Code)
	}
	rr = gwRequest(t, h, http.MethodGet, "/api/incidents/new", tenantOne, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 passthrough, got %d", rr.Code)
	}
}

func TestGatewayOverviewShape(t *testing.T) {
	_, h := setupGateway(t)
	inc := createViaGateway(t, h, "payment timeouts")

	rr := gwRequest(t, h, http.MethodGet, "/api/incidents/"+inc.ID+"/overview", tenantOne, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("overview: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var overview struct {
		Incident        store.Incident `json:"incident"`
		Timeline        []any          `json:"timeline"`
		Hypotheses      []any          `json:"hypotheses"`
		SuspectServices []any          `json:"suspectServices"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &overview); err != nil {
		t.Fatalf("decode overview: %v", err)
	}
	if overview.Incident.ID != inc.ID {
		t.Fatalf("overview incident mismatch: %+v", overview.Incident)
	}
	if overview.Timeline == nil || overview.Hypotheses == nil || overview.SuspectServices == nil {
		t.Fatalf("overview sections must be empty arrays, not null: %s", rr.Body.String())
	}

	rr = gwRequest(t, h, http.MethodGet, "/api/incidents/00000000-0000-0000-0000-00000000dead/overview", tenantOne, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("overview of unknown incident: expected 404, got %d", rr.Code)
	}
}

func TestGatewayReportsBackendOutage(t *testing.T) {
	cfg := &config.AppConfig{
		Tenancy: config.TenancyConfig{HeaderPolicy: "strict"},
	}
	cfg.Gateway.IncidentServiceURL = "http://127.0.0.1:1" // nothing listens here
	gw := NewServer(cfg, utils.NewLogger())
	h := gw.Router()

	rr := gwRequest(t, h, http.MethodGet, "/api/incidents", tenantOne, nil)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rr.Code)
	}
}

func TestReadyzFollowsProbeState(t *testing.T) {
	gw, h := setupGateway(t)

	// Before any probe the gateway is not ready.
	rr := gwRequest(t, h, http.MethodGet, "/readyz", "", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before first probe, got %d", rr.Code)
	}

	gw.health.probe()
	rr = gwRequest(t, h, http.MethodGet, "/readyz", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 after successful probe, got %d body=%s", rr.Code, rr.Body.String())
	}
}
