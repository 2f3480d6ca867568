package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"runtime/debug"
	"time"

	"incidentscope/core/tenant"
)

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if s.logger != nil {
					s.logger.Errorf("PANIC %s %s: %v\n%s", r.Method, r.URL.Path, rec, string(debug.Stack()))
				}
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if s.logger != nil {
			tenantID := "-"
			if tc, ok := tenant.FromContext(r.Context()); ok {
				tenantID = tc.TenantID
			}
			s.logger.Printf("RESP %s %s tenant=%s status=%d dur=%s bytes=%d", r.Method, r.URL.Path, tenantID, rec.status, time.Since(start), rec.size)
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	n, err := r.ResponseWriter.Write(b)
	r.size += n
	return n, err
}

// tenantMiddleware resolves the tenant context from headers and rejects
// requests that fail the configured policy. Handlers downstream read the
// context with tenant.FromContext.
func (s *Server) tenantMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tc, err := tenant.Resolve(r, s.cfg)
		if err != nil {
			if s.logger != nil {
				s.logger.Printf("TENANT reject %s %s: %v", r.Method, r.URL.Path, err)
			}
			if errors.Is(err, tenant.ErrMissingTenant) {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing tenant header"})
				return
			}
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid tenant header"})
			return
		}
		next.ServeHTTP(w, r.WithContext(tenant.WithContext(r.Context(), tc)))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
