package tenant

import (
	"errors"
	"net/http/httptest"
	"testing"

	"incidentscope/config"
)

func strictConfig() *config.AppConfig {
	return &config.AppConfig{Tenancy: config.TenancyConfig{HeaderPolicy: "strict"}}
}

func defaultingConfig() *config.AppConfig {
	return &config.AppConfig{Tenancy: config.TenancyConfig{
		HeaderPolicy:    "default",
		DefaultTenantID: "00000000-0000-0000-0000-000000000001",
		DefaultUserID:   "dev-user",
	}}
}

func TestResolveStrictRejectsMissingHeader(t *testing.T) {
	req := httptest.NewRequest("GET", "/incidents", nil)
	_, err := Resolve(req, strictConfig())
	if !errors.Is(err, ErrMissingTenant) {
		t.Fatalf("expected ErrMissingTenant, got %v", err)
	}
}

func TestResolveStrictRejectsMalformedTenant(t *testing.T) {
	req := httptest.NewRequest("GET", "/incidents", nil)
	req.Header.Set(Header, "not-a-uuid")
	_, err := Resolve(req, strictConfig())
	if !errors.Is(err, ErrInvalidTenant) {
		t.Fatalf("expected ErrInvalidTenant, got %v", err)
	}
}

func TestResolveStrictReadsHeaders(t *testing.T) {
	req := httptest.NewRequest("GET", "/incidents", nil)
	req.Header.Set(Header, "00000000-0000-0000-0000-000000000002")
	req.Header.Set(UserHeader, "alice")
	tc, err := Resolve(req, strictConfig())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if tc.TenantID != "00000000-0000-0000-0000-000000000002" || tc.UserID != "alice" {
		t.Fatalf("unexpected context: %+v", tc)
	}
}

func TestResolveDefaultPolicySubstitutesPlaceholderTenant(t *testing.T) {
	req := httptest.NewRequest("GET", "/incidents", nil)
	tc, err := Resolve(req, defaultingConfig())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if tc.TenantID != "00000000-0000-0000-0000-000000000001" {
		t.Fatalf("expected placeholder tenant, got %q", tc.TenantID)
	}
	if tc.UserID != "dev-user" {
		t.Fatalf("expected placeholder user, got %q", tc.UserID)
	}
}

func TestResolveDefaultPolicyStillValidatesSuppliedHeader(t *testing.T) {
	req := httptest.NewRequest("GET", "/incidents", nil)
	req.Header.Set(Header, "garbage")
	_, err := Resolve(req, defaultingConfig())
	if !errors.Is(err, ErrInvalidTenant) {
		t.Fatalf("expected ErrInvalidTenant, got %v", err)
	}
}

func TestContextRoundTrip(t *testing.T) {
	req := httptest.NewRequest("GET", "/incidents", nil)
	ctx := WithContext(req.Context(), Context{TenantID: "t", UserID: "u"})
	tc, ok := FromContext(ctx)
	if !ok || tc.TenantID != "t" || tc.UserID != "u" {
		t.Fatalf("context round trip failed: %+v ok=%v", tc, ok)
	}
}
