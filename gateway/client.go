package gateway

import (
	"context"
	"io"
	"net/http"
	"strings"

	"incidentscope/config"
	"incidentscope/core/tenant"
)

// backendClient talks to the incident service. The gateway never reuses
// the inbound request verbatim; it builds a fresh request so only the
// headers we choose to forward cross the boundary.
type backendClient struct {
	base   string
	client *http.Client
}

func newBackendClient(cfg *config.AppConfig) *backendClient {
	return &backendClient{
		base: strings.TrimRight(cfg.Gateway.IncidentServiceURL, "/"),
		client: &http.Client{
			Timeout: cfg.Gateway.RequestTimeout,
		},
	}
}

func (c *backendClient) do(ctx context.Context, method, pathAndQuery string, tc tenant.Context, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+pathAndQuery, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set(tenant.Header, tc.TenantID)
	if tc.UserID != "" {
		req.Header.Set(tenant.UserHeader, tc.UserID)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.client.Do(req)
}

func (c *backendClient) get(ctx context.Context, pathAndQuery string, tc tenant.Context) (*http.Response, error) {
	return c.do(ctx, http.MethodGet, pathAndQuery, tc, nil)
}

// ping checks the incident service health endpoint without tenant
// context; used by the readiness poller.
func (c *backendClient) ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return &backendStatusError{status: resp.StatusCode}
	}
	return nil
}

type backendStatusError struct {
	status int
}

func (e *backendStatusError) Error() string {
	return "incident service returned status " + http.StatusText(e.status)
}
