package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/medishare/medishare/internal/platform/db"
)

// Actions recorded against record shares.
const (
	ActionCreate = "create"
	ActionAccess = "access"
	ActionRevoke = "revoke"
)

// Outcomes. Denied access attempts are recorded with the internal reason so
// the audit trail can distinguish a bad PIN from an expired link even though
// the anonymous caller never sees that distinction.
const (
	OutcomeSuccess = "success"
	OutcomeDenied  = "denied"
)

// Event is a single audit record. Every share create, access attempt
// (granted or denied) and revocation produces exactly one event.
type Event struct {
	ID           uuid.UUID         `json:"id"`
	TenantID     string            `json:"tenant_id"`
	Action       string            `json:"action"`
	Outcome      string            `json:"outcome"`
	ResourceType string            `json:"resource_type"`
	ResourceID   string            `json:"resource_id"`
	ActorID      string            `json:"actor_id"` // staff user id, or "anonymous"
	SourceIP     string            `json:"source_ip,omitempty"`
	Details      map[string]string `json:"details,omitempty"`
	Recorded     time.Time         `json:"recorded"`
}

// Emitter is the write-only audit sink consumed by the sharing service.
type Emitter interface {
	Emit(ctx context.Context, event *Event) error
}

// NewEvent builds an event with the recorded timestamp set.
func NewEvent(tenantID, action, outcome, resourceType, resourceID, actorID string) *Event {
	return &Event{
		TenantID:     tenantID,
		Action:       action,
		Outcome:      outcome,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		ActorID:      actorID,
		Recorded:     time.Now().UTC(),
	}
}

// PGEmitter persists audit events to the shared.audit_event table. It uses
// the tenant-scoped connection from context when available, falling back to
// the pool.
type PGEmitter struct {
	pool *pgxpool.Pool
}

func NewPGEmitter(pool *pgxpool.Pool) *PGEmitter {
	return &PGEmitter{pool: pool}
}

func (e *PGEmitter) Emit(ctx context.Context, event *Event) error {
	if event.Recorded.IsZero() {
		event.Recorded = time.Now().UTC()
	}

	var details []byte
	if event.Details != nil {
		var err error
		details, err = json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("audit: marshal details: %w", err)
		}
	}

	const query = `
		INSERT INTO shared.audit_event (
			tenant_id, action, outcome, resource_type, resource_id,
			actor_id, source_ip, details, recorded
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING id`

	args := []any{
		event.TenantID, event.Action, event.Outcome, event.ResourceType,
		event.ResourceID, event.ActorID, event.SourceIP, details, event.Recorded,
	}

	if conn := db.ConnFromContext(ctx); conn != nil {
		return conn.QueryRow(ctx, query, args...).Scan(&event.ID)
	}

	poolConn, err := e.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("audit: acquire connection: %w", err)
	}
	defer poolConn.Release()

	return poolConn.QueryRow(ctx, query, args...).Scan(&event.ID)
}

// LogEmitter writes audit events to the structured log. Used in development
// and as a fallback when no database-backed sink is configured.
type LogEmitter struct {
	logger zerolog.Logger
}

func NewLogEmitter(logger zerolog.Logger) *LogEmitter {
	return &LogEmitter{logger: logger}
}

func (e *LogEmitter) Emit(_ context.Context, event *Event) error {
	if event.Recorded.IsZero() {
		event.Recorded = time.Now().UTC()
	}

	evt := e.logger.Info().
		Str("tenant_id", event.TenantID).
		Str("action", event.Action).
		Str("outcome", event.Outcome).
		Str("resource_type", event.ResourceType).
		Str("resource_id", event.ResourceID).
		Str("actor_id", event.ActorID).
		Time("recorded", event.Recorded)

	if event.SourceIP != "" {
		evt = evt.Str("source_ip", event.SourceIP)
	}
	for k, v := range event.Details {
		evt = evt.Str("detail_"+k, v)
	}

	evt.Msg("audit event")
	return nil
}
