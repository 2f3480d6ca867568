package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"incidentscope/config"
	"incidentscope/core/tenant"
	"incidentscope/core/utils"
)

// Server is the browser-facing edge. It owns CORS, tenant resolution
// and the readiness poller; all incident semantics live in the incident
// service behind it.
type Server struct {
	cfg        *config.AppConfig
	logger     *utils.Logger
	backend    *backendClient
	health     *healthPoller
	httpServer *http.Server
}

func NewServer(cfg *config.AppConfig, logger *utils.Logger) *Server {
	backend := newBackendClient(cfg)
	return &Server{
		cfg:     cfg,
		logger:  logger,
		backend: backend,
		health:  newHealthPoller(backend, logger),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.recoverMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.Gateway.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", tenant.Header, tenant.UserHeader},
		MaxAge:         300,
	}))

	r.Get("/readyz", s.handleReadyz)

	r.Group(func(gr chi.Router) {
		gr.Use(s.tenantMiddleware)
		gr.Route("/api/incidents", func(ir chi.Router) {
			ir.Post("/", s.proxyIncidents)
			ir.Get("/", s.proxyIncidents)
			ir.Get("/{incidentID}", s.proxyIncidents)
			ir.Post("/{incidentID}/resolve", s.proxyIncidents)
			ir.Get("/{incidentID}/events", s.proxyIncidents)
			ir.Get("/{incidentID}/overview", s.handleOverview)
		})
	})
	return r
}

func (s *Server) Start() error {
	if err := s.health.start(s.cfg.Gateway.HealthPollSpec); err != nil {
		return err
	}
	s.httpServer = &http.Server{
		Addr:              s.cfg.Gateway.ListenAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Printf("gateway listening on %s (incident service %s)", s.cfg.Gateway.ListenAddr, s.cfg.Gateway.IncidentServiceURL)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.health.stop()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
