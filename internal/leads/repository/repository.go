package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("record not found")

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type Lead struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	Name      string
	Phone     string
	Email     *string
	Interest  *string
	Score     int
	Stage     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Conversation struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	LeadID        uuid.UUID
	Channel       string
	Status        string
	AiTurnCount   int
	LastMessageAt *time.Time
	CreatedAt     time.Time
}

type Message struct {
	ID                uuid.UUID
	ConversationID    uuid.UUID
	TenantID          uuid.UUID
	Direction         string
	Body              string
	ProviderMessageID *string
	ProcessedAt       *time.Time
	CreatedAt         time.Time
}

// Conversation statuses.
const (
	ConversationStatusAI           = "ai"
	ConversationStatusWaitingHuman = "waiting_human"
	ConversationStatusHuman        = "human"
	ConversationStatusClosed       = "closed"
)

// Message directions.
const (
	DirectionInbound  = "in"
	DirectionOutbound = "out"
)

func (r *Repository) GetLead(ctx context.Context, id, tenantID uuid.UUID) (Lead, error) {
	var lead Lead
	err := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, phone, email, interest, score, stage, created_at, updated_at
		FROM leads
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID).Scan(
		&lead.ID, &lead.TenantID, &lead.Name, &lead.Phone, &lead.Email,
		&lead.Interest, &lead.Score, &lead.Stage, &lead.CreatedAt, &lead.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Lead{}, ErrNotFound
	}
	if err != nil {
		return Lead{}, err
	}
	return lead, nil
}

// UpdateLeadContact fills lead attributes extracted by the model. Empty
// values never overwrite existing data.
func (r *Repository) UpdateLeadContact(ctx context.Context, id, tenantID uuid.UUID, name, email, interest string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE leads SET
			name = CASE WHEN $3 <> '' AND (name = '' OR name = phone) THEN $3 ELSE name END,
			email = COALESCE(NULLIF($4, ''), email),
			interest = COALESCE(NULLIF($5, ''), interest),
			updated_at = now()
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID, name, email, interest)
	return err
}

func (r *Repository) GetConversation(ctx context.Context, id, tenantID uuid.UUID) (Conversation, error) {
	var conv Conversation
	err := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, lead_id, channel, status, ai_turn_count, last_message_at, created_at
		FROM conversations
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID).Scan(
		&conv.ID, &conv.TenantID, &conv.LeadID, &conv.Channel, &conv.Status,
		&conv.AiTurnCount, &conv.LastMessageAt, &conv.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, err
	}
	return conv, nil
}

func (r *Repository) UpdateConversationStatus(ctx context.Context, id, tenantID uuid.UUID, status string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE conversations SET status = $3, last_message_at = now()
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementAiTurn bumps the conversation's AI reply counter and returns the
// new count.
func (r *Repository) IncrementAiTurn(ctx context.Context, id, tenantID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		UPDATE conversations
		SET ai_turn_count = ai_turn_count + 1, last_message_at = now()
		WHERE id = $1 AND tenant_id = $2
		RETURNING ai_turn_count
	`, id, tenantID).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	return count, err
}

type InsertInboundMessageParams struct {
	ConversationID    uuid.UUID
	TenantID          uuid.UUID
	Body              string
	ProviderMessageID string
}

// InsertInboundMessage records one inbound message and marks it processed.
// The provider message ID carries the idempotency: a duplicate delivery
// returns inserted=false and must be acknowledged without reprocessing.
func (r *Repository) InsertInboundMessage(ctx context.Context, params InsertInboundMessageParams) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, tenant_id, direction, body, provider_message_id, processed_at)
		VALUES ($1, $2, $3, 'in', $4, $5, now())
		ON CONFLICT (provider_message_id) DO NOTHING
	`, uuid.New(), params.ConversationID, params.TenantID, params.Body, params.ProviderMessageID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) InsertOutboundMessage(ctx context.Context, conversationID, tenantID uuid.UUID, body string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, tenant_id, direction, body)
		VALUES ($1, $2, $3, 'out', $4)
	`, uuid.New(), conversationID, tenantID, body)
	return err
}

// ListConversationMessages returns the full exchange, oldest first.
func (r *Repository) ListConversationMessages(ctx context.Context, conversationID, tenantID uuid.UUID) ([]Message, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, conversation_id, tenant_id, direction, body, provider_message_id, processed_at, created_at
		FROM messages
		WHERE conversation_id = $1 AND tenant_id = $2
		ORDER BY created_at ASC
	`, conversationID, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Message, 0)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.TenantID, &m.Direction, &m.Body,
			&m.ProviderMessageID, &m.ProcessedAt, &m.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

// FindStaleWaitingConversations returns conversations that have waited for a
// human beyond the cutoff.
func (r *Repository) FindStaleWaitingConversations(ctx context.Context, cutoff time.Time, limit int) ([]Conversation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, tenant_id, lead_id, channel, status, ai_turn_count, last_message_at, created_at
		FROM conversations
		WHERE status = $1 AND last_message_at < $2
		ORDER BY last_message_at ASC
		LIMIT $3
	`, ConversationStatusWaitingHuman, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Conversation, 0)
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.TenantID, &c.LeadID, &c.Channel, &c.Status,
			&c.AiTurnCount, &c.LastMessageAt, &c.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

// IncrementMonthlyLeadCount upserts the tenant's processed-lead counter for
// the given month (first day of month).
func (r *Repository) IncrementMonthlyLeadCount(ctx context.Context, tenantID uuid.UUID, month time.Time) error {
	month = time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
	_, err := r.pool.Exec(ctx, `
		INSERT INTO monthly_lead_counts (tenant_id, month, lead_count)
		VALUES ($1, $2, 1)
		ON CONFLICT (tenant_id, month) DO UPDATE SET lead_count = monthly_lead_counts.lead_count + 1
	`, tenantID, month)
	return err
}

type TenantSettings struct {
	TenantID    uuid.UUID
	Name        string
	NotifyEmail *string
}

func (r *Repository) GetTenantSettings(ctx context.Context, tenantID uuid.UUID) (TenantSettings, error) {
	var settings TenantSettings
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, notify_email FROM tenants WHERE id = $1
	`, tenantID).Scan(&settings.TenantID, &settings.Name, &settings.NotifyEmail)
	if errors.Is(err, pgx.ErrNoRows) {
		return TenantSettings{}, ErrNotFound
	}
	return settings, err
}
