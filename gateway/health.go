package gateway

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"incidentscope/core/utils"
)

// healthPoller probes the incident service on a cron schedule and keeps
// the last observation for /readyz. The gateway reports ready only once
// a probe has succeeded, so load balancers do not route to a gateway
// whose backend is still coming up.
type healthPoller struct {
	backend *backendClient
	logger  *utils.Logger
	cron    *cron.Cron

	mu        sync.RWMutex
	healthy   bool
	checkedAt time.Time
	lastErr   string
}

func newHealthPoller(backend *backendClient, logger *utils.Logger) *healthPoller {
	return &healthPoller{
		backend: backend,
		logger:  logger,
		cron:    cron.New(),
	}
}

func (p *healthPoller) start(spec string) error {
	if _, err := p.cron.AddFunc(spec, p.probe); err != nil {
		return err
	}
	// Probe once up front; the first cron tick may be far away.
	go p.probe()
	p.cron.Start()
	return nil
}

func (p *healthPoller) stop() {
	ctx := p.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		p.logger.Errorf("health poller did not stop in time")
	}
}

func (p *healthPoller) probe() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := p.backend.ping(ctx)

	p.mu.Lock()
	p.checkedAt = time.Now().UTC()
	p.healthy = err == nil
	if err != nil {
		p.lastErr = err.Error()
	} else {
		p.lastErr = ""
	}
	p.mu.Unlock()

	if err != nil {
		p.logger.Errorf("incident service health probe failed: %v", err)
	}
}

func (p *healthPoller) status() (bool, time.Time, string) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.healthy, p.checkedAt, p.lastErr
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	healthy, checkedAt, lastErr := s.health.status()
	body := map[string]any{
		"status":          "ready",
		"incidentService": "up",
	}
	if !checkedAt.IsZero() {
		body["checkedAt"] = checkedAt.Format(time.RFC3339)
	}
	if healthy {
		writeJSON(w, http.StatusOK, body)
		return
	}
	body["status"] = "not ready"
	body["incidentService"] = "down"
	if lastErr != "" {
		body["error"] = lastErr
	}
	writeJSON(w, http.StatusServiceUnavailable, body)
}
