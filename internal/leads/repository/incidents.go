package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type SecurityIncident struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	ConversationID uuid.UUID
	LeadID         uuid.UUID
	IncidentType   string
	Severity       string
	LeadMessage    string
	AIResponse     *string
	DetectionLayer string
	ActionTaken    string
	CreatedAt      time.Time
}

type CreateSecurityIncidentParams struct {
	TenantID       uuid.UUID
	ConversationID uuid.UUID
	LeadID         uuid.UUID
	IncidentType   string
	Severity       string
	LeadMessage    string
	AIResponse     *string
	DetectionLayer string
	ActionTaken    string
}

// CreateSecurityIncident appends one incident record. Incidents are never
// updated after creation.
func (r *Repository) CreateSecurityIncident(ctx context.Context, params CreateSecurityIncidentParams) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO security_incidents
			(id, tenant_id, conversation_id, lead_id, incident_type, severity,
			 lead_message, ai_response, detection_layer, action_taken)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, uuid.New(), params.TenantID, params.ConversationID, params.LeadID,
		params.IncidentType, params.Severity, params.LeadMessage,
		params.AIResponse, params.DetectionLayer, params.ActionTaken)
	return err
}
