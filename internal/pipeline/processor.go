// Package pipeline orchestrates the processing of one inbound lead message:
// sanitize, prompt, call the model, parse, score, decide handoff, persist
// and reply.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"leadchat_backend/internal/ai"
	"leadchat_backend/internal/handoff"
	"leadchat_backend/internal/leads/repository"
	"leadchat_backend/internal/leads/scoring"
	"leadchat_backend/internal/pipeline/parser"
	"leadchat_backend/internal/pipeline/sanitizer"
	"leadchat_backend/internal/promptcfg"
	"leadchat_backend/internal/queue"
	"leadchat_backend/internal/security"
	"leadchat_backend/platform/logger"

	"github.com/google/uuid"
)

// Store is the slice of the repository the processor needs.
type Store interface {
	InsertInboundMessage(ctx context.Context, params repository.InsertInboundMessageParams) (bool, error)
	GetLead(ctx context.Context, id, tenantID uuid.UUID) (repository.Lead, error)
	GetConversation(ctx context.Context, id, tenantID uuid.UUID) (repository.Conversation, error)
	ListConversationMessages(ctx context.Context, conversationID, tenantID uuid.UUID) ([]repository.Message, error)
	GetTenantPromptConfig(ctx context.Context, tenantID uuid.UUID) (promptcfg.TenantPromptConfig, error)
	GetActiveCampaignConfig(ctx context.Context, tenantID uuid.UUID) (*promptcfg.CampaignPromptConfig, error)
	UpdateLeadContact(ctx context.Context, id, tenantID uuid.UUID, name, email, interest string) error
	IncrementAiTurn(ctx context.Context, id, tenantID uuid.UUID) (int, error)
	UpdateConversationStatus(ctx context.Context, id, tenantID uuid.UUID, status string) error
	InsertOutboundMessage(ctx context.Context, conversationID, tenantID uuid.UUID, body string) error
	IncrementMonthlyLeadCount(ctx context.Context, tenantID uuid.UUID, month time.Time) error
}

// Generator produces one model completion.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (ai.Completion, error)
}

// Scorer applies a score delta and recomputes the stage.
type Scorer interface {
	UpdateScore(ctx context.Context, leadID, tenantID uuid.UUID, currentScore int, currentStage string, delta int, source string) (scoring.UpdateResult, error)
}

// IncidentSink records security incidents, best-effort.
type IncidentSink interface {
	LogSanitizationIncident(ctx context.Context, sc security.SanitizationContext, flags []string)
	LogValidationIncident(ctx context.Context, vf security.ValidationFailure)
}

// Sender delivers the reply back to the lead's channel.
type Sender interface {
	SendMessage(ctx context.Context, phoneNumber, message string) error
}

// Notifier enqueues agent notifications about handoffs.
type Notifier interface {
	EnqueueNotification(ctx context.Context, payload queue.NotificationPayload) error
}

// Archiver snapshots a conversation when it leaves AI handling.
type Archiver interface {
	ArchiveConversation(ctx context.Context, tenantID, conversationID uuid.UUID, flags []string, outcome string) error
}

type Processor struct {
	store     Store
	generator Generator
	scorer    Scorer
	incidents IncidentSink
	sender    Sender
	notifier  Notifier
	archiver  Archiver
	log       *logger.Logger
}

func NewProcessor(
	store Store,
	generator Generator,
	scorer Scorer,
	incidents IncidentSink,
	sender Sender,
	notifier Notifier,
	archiver Archiver,
	log *logger.Logger,
) *Processor {
	return &Processor{
		store:     store,
		generator: generator,
		scorer:    scorer,
		incidents: incidents,
		sender:    sender,
		notifier:  notifier,
		archiver:  archiver,
		log:       log,
	}
}

// ProcessMessage runs the full pipeline for one inbound message. A returned
// error means the job should be retried by the queue; duplicate deliveries
// and conversations no longer handled by AI return nil so the job is
// acknowledged.
func (p *Processor) ProcessMessage(ctx context.Context, payload queue.ProcessMessagePayload) error {
	tenantID, err := uuid.Parse(payload.TenantID)
	if err != nil {
		p.log.Error("invalid tenant id in payload", "error", err, "raw", payload.TenantID)
		return nil
	}
	leadID, err := uuid.Parse(payload.LeadID)
	if err != nil {
		p.log.Error("invalid lead id in payload", "error", err, "raw", payload.LeadID)
		return nil
	}
	conversationID, err := uuid.Parse(payload.ConversationID)
	if err != nil {
		p.log.Error("invalid conversation id in payload", "error", err, "raw", payload.ConversationID)
		return nil
	}

	log := &logger.Logger{Logger: p.log.With("tenantId", tenantID, "leadId", leadID,
		"conversationId", conversationID, "correlationId", payload.CorrelationID)}

	// At-least-once delivery: the provider message ID is the idempotency
	// key. A duplicate is acknowledged without reprocessing.
	inserted, err := p.store.InsertInboundMessage(ctx, repository.InsertInboundMessageParams{
		ConversationID:    conversationID,
		TenantID:          tenantID,
		Body:              payload.Text,
		ProviderMessageID: payload.ProviderMsgID,
	})
	if err != nil {
		return fmt.Errorf("record inbound message: %w", err)
	}
	if !inserted {
		log.Info("duplicate delivery acknowledged", "providerMessageId", payload.ProviderMsgID)
		return nil
	}

	conv, err := p.store.GetConversation(ctx, conversationID, tenantID)
	if err != nil {
		return fmt.Errorf("load conversation: %w", err)
	}
	if conv.Status != repository.ConversationStatusAI {
		log.Info("conversation not handled by ai, skipping", "status", conv.Status)
		return nil
	}

	lead, err := p.store.GetLead(ctx, leadID, tenantID)
	if err != nil {
		return fmt.Errorf("load lead: %w", err)
	}

	if conv.AiTurnCount == 0 {
		if err := p.store.IncrementMonthlyLeadCount(ctx, tenantID, time.Now().UTC()); err != nil {
			log.Error("failed to bump monthly lead count", "error", err)
		}
	}

	sanitized := sanitizer.Sanitize(payload.Text)
	p.incidents.LogSanitizationIncident(ctx, security.SanitizationContext{
		TenantID:       tenantID,
		ConversationID: conversationID,
		LeadID:         leadID,
		LeadMessage:    payload.Text,
	}, sanitized.Flags)

	cfg, err := p.loadPromptConfig(ctx, tenantID)
	if err != nil {
		return err
	}

	history, err := p.store.ListConversationMessages(ctx, conversationID, tenantID)
	if err != nil {
		return fmt.Errorf("load conversation history: %w", err)
	}
	// The inbound insert above already appended the new message.
	if n := len(history); n > 0 {
		history = history[:n-1]
	}

	systemPrompt := buildSystemPrompt(cfg)
	userPrompt := buildUserPrompt(history, lead.Name, sanitized.CleanMessage)

	completion, err := p.generator.Generate(ctx, systemPrompt, userPrompt)
	if err != nil {
		// Breaker-open and transient provider errors surface here; the
		// queue's job retry spaces out further attempts.
		return fmt.Errorf("ai call: %w", err)
	}

	parsed := parser.Parse(completion.Text)
	parseFailed := parsed.HandoffReason == parser.ParseFailureReason
	if parseFailed {
		p.incidents.LogValidationIncident(ctx, security.ValidationFailure{
			TenantID:       tenantID,
			ConversationID: conversationID,
			LeadID:         leadID,
			LeadMessage:    payload.Text,
			AIResponse:     completion.Text,
			Reason:         "validation_failed",
			ActionTaken:    "fallback response sent",
		})
	}

	replyText := parsed.Response
	if parseFailed {
		if fb := deref(cfg.FallbackMessage); fb != "" {
			replyText = fb
		}
	}

	scoreResult, err := p.scorer.UpdateScore(ctx, leadID, tenantID, lead.Score, lead.Stage, parsed.ScoreDelta, "ai")
	if err != nil {
		return fmt.Errorf("update score: %w", err)
	}

	info := parsed.ExtractedInfo
	if info.Name != "" || info.Email != "" || info.Interest != "" {
		if err := p.store.UpdateLeadContact(ctx, leadID, tenantID, info.Name, info.Email, info.Interest); err != nil {
			log.Error("failed to persist extracted lead info", "error", err)
		}
	}

	decision := handoff.Decide(handoff.Signals{
		ExplicitRequest: sanitized.HasFlag(sanitizer.FlagExplicitHandoff),
		ParseFailed:     parseFailed,
		AIShouldHandoff: parsed.ShouldHandoff,
		AIReason:        parsed.HandoffReason,
		Intent:          parsed.Intent,
		Confidence:      parsed.Confidence,
		Score:           scoreResult.NewScore,
		TurnCount:       conv.AiTurnCount,
	}, cfg.HandoffRules)

	if err := p.sender.SendMessage(ctx, lead.Phone, replyText); err != nil {
		return fmt.Errorf("deliver reply: %w", err)
	}
	if err := p.store.InsertOutboundMessage(ctx, conversationID, tenantID, replyText); err != nil {
		log.Error("failed to record outbound message", "error", err)
	}
	if _, err := p.store.IncrementAiTurn(ctx, conversationID, tenantID); err != nil {
		log.Error("failed to increment ai turn count", "error", err)
	}

	if decision.ShouldHandoff {
		if err := p.handOff(ctx, log, tenantID, conversationID, lead, scoreResult.NewScore, conv.Channel, decision, sanitized); err != nil {
			return err
		}
	}

	log.Info("message processed",
		"intent", parsed.Intent,
		"confidence", parsed.Confidence,
		"scoreDelta", parsed.ScoreDelta,
		"newScore", scoreResult.NewScore,
		"stage", scoreResult.NewStage,
		"handoff", decision.ShouldHandoff,
		"handoffSource", string(decision.Source),
	)
	return nil
}

func (p *Processor) loadPromptConfig(ctx context.Context, tenantID uuid.UUID) (promptcfg.TenantPromptConfig, error) {
	tenantCfg, err := p.store.GetTenantPromptConfig(ctx, tenantID)
	if err != nil {
		return promptcfg.TenantPromptConfig{}, fmt.Errorf("load tenant prompt config: %w", err)
	}

	campaign, err := p.store.GetActiveCampaignConfig(ctx, tenantID)
	if err != nil {
		return promptcfg.TenantPromptConfig{}, fmt.Errorf("load campaign config: %w", err)
	}

	return promptcfg.Merge(tenantCfg, campaign), nil
}

func (p *Processor) handOff(
	ctx context.Context,
	log *logger.Logger,
	tenantID, conversationID uuid.UUID,
	lead repository.Lead,
	score int,
	channel string,
	decision handoff.Decision,
	sanitized sanitizer.Result,
) error {
	if err := p.store.UpdateConversationStatus(ctx, conversationID, tenantID, repository.ConversationStatusWaitingHuman); err != nil {
		return fmt.Errorf("mark conversation waiting human: %w", err)
	}

	err := p.notifier.EnqueueNotification(ctx, queue.NotificationPayload{
		TenantID:       tenantID.String(),
		ConversationID: conversationID.String(),
		LeadID:         lead.ID.String(),
		LeadName:       lead.Name,
		LeadScore:      score,
		LeadChannel:    channel,
		Reason:         decision.Reason,
	})
	if err != nil {
		log.Error("failed to enqueue handoff notification", "error", err)
	}

	if p.archiver != nil {
		outcome := "handoff:" + string(decision.Source)
		if err := p.archiver.ArchiveConversation(ctx, tenantID, conversationID, sanitizer.SecurityFlags(sanitized.Flags), outcome); err != nil {
			log.Error("failed to archive conversation", "error", err)
		}
	}

	return nil
}
