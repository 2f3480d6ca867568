package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"

	"incidentscope/config"
	"incidentscope/core/tenant"
)

// ErrNotFound reports that no row matched the tenant+id pair. A record
// owned by another tenant is indistinguishable from one that does not
// exist.
var ErrNotFound = errors.New("not found")

// ValidationError reports malformed input rejected before any statement
// runs. It is distinct from ErrNotFound so callers can map it to a 400.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

const (
	StatusOpen     = "open"
	StatusResolved = "resolved"

	// StatusMitigating is part of the UI status palette but no backend
	// operation transitions into it. Declared so list filters accept it.
	StatusMitigating = "mitigating"

	EventTypeDetection  = "detection"
	EventTypeResolution = "resolution"

	listLimit = 100
)

type Incident struct {
	ID               string            `json:"id"`
	TenantID         string            `json:"tenantId"`
	EnvID            string            `json:"envId"`
	PrimaryServiceID *string           `json:"primaryServiceId"`
	Severity         int               `json:"severity"`
	Status           string            `json:"status"`
	Title            string            `json:"title"`
	CreatedAt        time.Time         `json:"createdAt"`
	DetectedAt       *time.Time        `json:"detectedAt"`
	ResolvedAt       *time.Time        `json:"resolvedAt"`
	CreatedBy        *string           `json:"createdBy"`
	Assignee         *string           `json:"assignee"`
	Labels           map[string]string `json:"labels"`
}

type IncidentEvent struct {
	ID         string          `json:"id"`
	TenantID   string          `json:"tenantId"`
	IncidentID string          `json:"incidentId"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// NewIncident is the creation request. Severity is passed through
// unchecked; the presentation layer owns the 1..4 contract.
type NewIncident struct {
	EnvID            string
	PrimaryServiceID string
	Severity         int
	Title            string
	DetectedAtUnixMs int64
	CreatedBy        string
	Labels           map[string]string
}

// IncidentFilter combines with AND; zero values are not applied.
type IncidentFilter struct {
	EnvID    string
	Status   string
	Severity *int
}

type IncidentsStore interface {
	CreateIncident(ctx context.Context, tc tenant.Context, in *NewIncident) (*Incident, error)
	GetIncident(ctx context.Context, tc tenant.Context, incidentID string) (*Incident, error)
	ListIncidents(ctx context.Context, tc tenant.Context, filter IncidentFilter) ([]Incident, error)
	ResolveIncident(ctx context.Context, tc tenant.Context, incidentID string, resolvedBy *string) error
	ListIncidentEvents(ctx context.Context, tc tenant.Context, incidentID string) ([]IncidentEvent, error)
}

type incidentsStore struct {
	db *sql.DB
	pg bool
}

// NewIncidentsStore builds the store over db. The dialect comes from
// configuration; probing it at query time would compete with open
// transactions for a pool connection.
func NewIncidentsStore(cfg *config.AppConfig, db *sql.DB) IncidentsStore {
	return &incidentsStore{db: db, pg: cfg.DBDriver != "sqlite"}
}

// q rebinds placeholders for the configured dialect.
func (s *incidentsStore) q(query string) string {
	return rebind(s.pg, query)
}

func (s *incidentsStore) CreateIncident(ctx context.Context, tc tenant.Context, in *NewIncident) (*Incident, error) {
	envID, err := parseUUIDField("envId", in.EnvID)
	if err != nil {
		return nil, err
	}
	var primaryServiceID *string
	if raw := strings.TrimSpace(in.PrimaryServiceID); raw != "" {
		id, err := parseUUIDField("primaryServiceId", raw)
		if err != nil {
			return nil, err
		}
		primaryServiceID = &id
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, &ValidationError{Field: "title", Reason: "must not be empty"}
	}

	now := time.Now().UTC()
	detectedAt := now
	if in.DetectedAtUnixMs > 0 {
		detectedAt = time.UnixMilli(in.DetectedAtUnixMs).UTC()
	}
	var createdBy *string
	if v := strings.TrimSpace(in.CreatedBy); v != "" {
		createdBy = &v
	} else if tc.UserID != "" {
		user := tc.UserID
		createdBy = &user
	}
	labels := in.Labels
	if labels == nil {
		labels = map[string]string{}
	}

	incident := &Incident{
		ID:               uuid.Must(uuid.NewV4()).String(),
		TenantID:         tc.TenantID,
		EnvID:            envID,
		PrimaryServiceID: primaryServiceID,
		Severity:         in.Severity,
		Status:           StatusOpen,
		Title:            title,
		CreatedAt:        now,
		DetectedAt:       &detectedAt,
		CreatedBy:        createdBy,
		Labels:           labels,
	}

	// The incident row and its detection event are one unit: both land
	// or neither does.
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, s.q(`
		INSERT INTO incidents(id, tenant_id, env_id, primary_service_id, severity, status, title, created_at, detected_at, resolved_at, created_by, assignee, labels)
		VALUES(?,?,?,?,?,?,?,?,?,NULL,?,NULL,?)`),
		incident.ID, incident.TenantID, incident.EnvID, nullableString(incident.PrimaryServiceID), incident.Severity, incident.Status, incident.Title, incident.CreatedAt, detectedAt, nullableString(incident.CreatedBy), labelsToJSON(labels)); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := s.appendEventTx(ctx, tx, tc.TenantID, incident.ID, EventTypeDetection, map[string]any{"source": "manual"}, now); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return incident, nil
}

func (s *incidentsStore) GetIncident(ctx context.Context, tc tenant.Context, incidentID string) (*Incident, error) {
	id, err := parseUUIDField("id", incidentID)
	if err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, s.q(`
		SELECT id, tenant_id, env_id, primary_service_id, severity, status, title, created_at, detected_at, resolved_at, created_by, assignee, labels
		FROM incidents WHERE id=? AND tenant_id=?`), id, tc.TenantID)
	return scanIncident(row)
}

func (s *incidentsStore) ListIncidents(ctx context.Context, tc tenant.Context, filter IncidentFilter) ([]Incident, error) {
	clauses := []string{"tenant_id=?"}
	args := []any{tc.TenantID}
	if raw := strings.TrimSpace(filter.EnvID); raw != "" {
		envID, err := parseUUIDField("envId", raw)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, "env_id=?")
		args = append(args, envID)
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, status)
	}
	if filter.Severity != nil {
		clauses = append(clauses, "severity=?")
		args = append(args, *filter.Severity)
	}
	query := fmt.Sprintf(`
		SELECT id, tenant_id, env_id, primary_service_id, severity, status, title, created_at, detected_at, resolved_at, created_by, assignee, labels
		FROM incidents WHERE %s ORDER BY created_at DESC LIMIT %d`, strings.Join(clauses, " AND "), listLimit)
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Incident
	for rows.Next() {
		inc, err := scanIncidentRow(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *inc)
	}
	return res, rows.Err()
}

func (s *incidentsStore) ResolveIncident(ctx context.Context, tc tenant.Context, incidentID string, resolvedBy *string) error {
	id, err := parseUUIDField("id", incidentID)
	if err != nil {
		return err
	}
	actor := resolvedBy
	if actor == nil && tc.UserID != "" {
		user := tc.UserID
		actor = &user
	}
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	// Unconditional transition: resolving an already-resolved incident
	// re-stamps resolved_at and assignee.
	res, err := tx.ExecContext(ctx, s.q(`
		UPDATE incidents SET status=?, resolved_at=?, assignee=?
		WHERE id=? AND tenant_id=?`),
		StatusResolved, now, nullableString(actor), id, tc.TenantID)
	if err != nil {
		tx.Rollback()
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		tx.Rollback()
		return ErrNotFound
	}
	// The event payload carries the caller-supplied resolver, null when
	// the actor was defaulted from the tenant context.
	payload := map[string]any{"resolved_by": nil}
	if resolvedBy != nil {
		payload["resolved_by"] = *resolvedBy
	}
	if err := s.appendEventTx(ctx, tx, tc.TenantID, id, EventTypeResolution, payload, now); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *incidentsStore) ListIncidentEvents(ctx context.Context, tc tenant.Context, incidentID string) ([]IncidentEvent, error) {
	id, err := parseUUIDField("id", incidentID)
	if err != nil {
		return nil, err
	}
	var owner string
	err = s.db.QueryRowContext(ctx, s.q(`SELECT id FROM incidents WHERE id=? AND tenant_id=?`), id, tc.TenantID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT id, tenant_id, incident_id, type, payload, created_at
		FROM incident_events WHERE incident_id=? AND tenant_id=? ORDER BY created_at ASC`), id, tc.TenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []IncidentEvent
	for rows.Next() {
		var ev IncidentEvent
		var payload string
		if err := rows.Scan(&ev.ID, &ev.TenantID, &ev.IncidentID, &ev.Type, &payload, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.Payload = json.RawMessage(payload)
		ev.CreatedAt = ev.CreatedAt.UTC()
		res = append(res, ev)
	}
	return res, rows.Err()
}

func (s *incidentsStore) appendEventTx(ctx context.Context, tx *sql.Tx, tenantID, incidentID, eventType string, payload map[string]any, now time.Time) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, s.q(`
		INSERT INTO incident_events(id, tenant_id, incident_id, type, payload, created_at)
		VALUES(?,?,?,?,?,?)`),
		uuid.Must(uuid.NewV4()).String(), tenantID, incidentID, eventType, string(raw), now)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIncident(row *sql.Row) (*Incident, error) {
	inc, err := scanIncidentRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return inc, nil
}

func scanIncidentRow(row rowScanner) (*Incident, error) {
	var inc Incident
	var primaryServiceID, createdBy, assignee sql.NullString
	var detectedAt, resolvedAt sql.NullTime
	var labelsRaw string
	if err := row.Scan(&inc.ID, &inc.TenantID, &inc.EnvID, &primaryServiceID, &inc.Severity, &inc.Status, &inc.Title, &inc.CreatedAt, &detectedAt, &resolvedAt, &createdBy, &assignee, &labelsRaw); err != nil {
		return nil, err
	}
	inc.CreatedAt = inc.CreatedAt.UTC()
	if primaryServiceID.Valid {
		inc.PrimaryServiceID = &primaryServiceID.String
	}
	if createdBy.Valid {
		inc.CreatedBy = &createdBy.String
	}
	if assignee.Valid {
		inc.Assignee = &assignee.String
	}
	if detectedAt.Valid {
		t := detectedAt.Time.UTC()
		inc.DetectedAt = &t
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time.UTC()
		inc.ResolvedAt = &t
	}
	inc.Labels = map[string]string{}
	_ = json.Unmarshal([]byte(labelsRaw), &inc.Labels)
	return &inc, nil
}

func parseUUIDField(field, raw string) (string, error) {
	id, err := uuid.FromString(strings.TrimSpace(raw))
	if err != nil {
		return "", &ValidationError{Field: field, Reason: "must be a valid uuid"}
	}
	return id.String(), nil
}

func nullableString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func labelsToJSON(labels map[string]string) string {
	raw, err := json.Marshal(labels)
	if err != nil {
		return "{}"
	}
	return string(raw)
}
