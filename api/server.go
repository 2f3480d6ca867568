package api

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"incidentscope/api/handlers"
	"incidentscope/config"
	"incidentscope/core/store"
	"incidentscope/core/utils"
)

// Server is the incident service HTTP surface: tenant-scoped incident
// CRUD over the store plus a health probe.
type Server struct {
	cfg       *config.AppConfig
	logger    *utils.Logger
	db        *sql.DB
	incidents store.IncidentsStore

	httpServer *http.Server
}

func NewServer(cfg *config.AppConfig, db *sql.DB, logger *utils.Logger) *Server {
	return &Server{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		incidents: store.NewIncidentsStore(cfg, db),
	}
}

func (s *Server) Router() http.Handler {
	h := handlers.NewIncidentsHandler(s.incidents, s.logger)

	r := chi.NewRouter()
	r.Use(s.recoverMiddleware)
	r.Use(s.loggingMiddleware)

	r.Get("/healthz", s.handleHealthz)

	r.Group(func(r chi.Router) {
		r.Use(s.tenantMiddleware)
		r.Post("/incidents", h.Create)
		r.Get("/incidents", h.List)
		r.Get("/incidents/{id}", h.Get)
		r.Post("/incidents/{id}/resolve", h.Resolve)
		r.Get("/incidents/{id}/events", h.ListEvents)
	})
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		if s.logger != nil {
			s.logger.Errorf("healthz db ping: %v", err)
		}
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if s.logger != nil {
		s.logger.Printf("incident service listening on %s", s.cfg.ListenAddr)
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
