package tenant

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gofrs/uuid/v5"

	"incidentscope/config"
)

// Header carries the tenant identity on every request crossing a service
// boundary. UserHeader is the unauthenticated stand-in for a caller
// identity; it is optional.
const (
	Header     = "x-tenant-id"
	UserHeader = "x-user-id"
)

var (
	ErrMissingTenant = errors.New("missing tenant header")
	ErrInvalidTenant = errors.New("tenant id is not a valid uuid")
)

type contextKey struct{}

// Context identifies the tenant a request may act for. It is threaded
// explicitly into every store call; no package-level state.
type Context struct {
	TenantID string
	UserID   string
}

// Resolve extracts the tenant context from request headers under the
// configured policy. With the strict policy a missing header fails with
// ErrMissingTenant; the default policy substitutes the configured
// placeholder tenant and user.
func Resolve(r *http.Request, cfg *config.AppConfig) (Context, error) {
	raw := strings.TrimSpace(r.Header.Get(Header))
	user := strings.TrimSpace(r.Header.Get(UserHeader))
	if raw == "" {
		if cfg.StrictTenantHeader() {
			return Context{}, ErrMissingTenant
		}
		raw = cfg.Tenancy.DefaultTenantID
		if user == "" {
			user = cfg.Tenancy.DefaultUserID
		}
	}
	id, err := uuid.FromString(raw)
	if err != nil {
		return Context{}, ErrInvalidTenant
	}
	return Context{TenantID: id.String(), UserID: user}, nil
}

// WithContext attaches tc to ctx for handler-side retrieval.
func WithContext(ctx context.Context, tc Context) context.Context {
	return context.WithValue(ctx, contextKey{}, tc)
}

// FromContext returns the tenant context placed by the middleware.
func FromContext(ctx context.Context) (Context, bool) {
	tc, ok := ctx.Value(contextKey{}).(Context)
	return tc, ok
}
