package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Lead event types appended by the scoring engine.
const (
	EventScoreChange = "score_change"
	EventStageChange = "stage_change"
)

type LeadEvent struct {
	ID        uuid.UUID
	LeadID    uuid.UUID
	TenantID  uuid.UUID
	EventType string
	Metadata  map[string]any
	CreatedAt time.Time
}

type UpdateScoreStageParams struct {
	LeadID   uuid.UUID
	TenantID uuid.UUID
	NewScore int
	NewStage string
	// Events are appended in the same transaction as the lead update.
	Events []LeadEventParams
}

type LeadEventParams struct {
	EventType string
	Metadata  map[string]any
}

// UpdateScoreStage persists the new score and stage together with the
// associated lead events in a single transaction.
func (r *Repository) UpdateScoreStage(ctx context.Context, params UpdateScoreStageParams) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	tag, err := tx.Exec(ctx, `
		UPDATE leads SET score = $3, stage = $4, updated_at = now()
		WHERE id = $1 AND tenant_id = $2
	`, params.LeadID, params.TenantID, params.NewScore, params.NewStage)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	for _, event := range params.Events {
		if err := insertLeadEvent(ctx, tx, params.LeadID, params.TenantID, event); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func insertLeadEvent(ctx context.Context, tx pgx.Tx, leadID, tenantID uuid.UUID, event LeadEventParams) error {
	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO lead_events (id, lead_id, tenant_id, event_type, metadata)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.New(), leadID, tenantID, event.EventType, metadata)
	return err
}

// ListLeadEvents returns the append-only event stream for a lead, newest first.
func (r *Repository) ListLeadEvents(ctx context.Context, leadID, tenantID uuid.UUID, limit int) ([]LeadEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, lead_id, tenant_id, event_type, metadata, created_at
		FROM lead_events
		WHERE lead_id = $1 AND tenant_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`, leadID, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]LeadEvent, 0)
	for rows.Next() {
		var ev LeadEvent
		var metadata []byte
		if err := rows.Scan(&ev.ID, &ev.LeadID, &ev.TenantID, &ev.EventType, &metadata, &ev.CreatedAt); err != nil {
			return nil, err
		}
		if len(metadata) > 0 {
			_ = json.Unmarshal(metadata, &ev.Metadata)
		}
		items = append(items, ev)
	}
	return items, rows.Err()
}
