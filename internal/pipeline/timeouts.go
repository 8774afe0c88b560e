package pipeline

import (
	"context"
	"errors"
	"fmt"

	"leadchat_backend/internal/leads/repository"
	"leadchat_backend/internal/queue"
	"leadchat_backend/platform/logger"

	"github.com/google/uuid"
)

// reengagementMessage is sent when a conversation falls back to AI after
// no human picked it up within the timeout.
const reengagementMessage = "Desculpe a demora! Nossos atendentes estão ocupados no momento, mas posso continuar te ajudando por aqui. O que você gostaria de saber?"

// TimeoutStore is the slice of the repository the timeout handler needs.
type TimeoutStore interface {
	GetConversation(ctx context.Context, id, tenantID uuid.UUID) (repository.Conversation, error)
	GetLead(ctx context.Context, id, tenantID uuid.UUID) (repository.Lead, error)
	UpdateConversationStatus(ctx context.Context, id, tenantID uuid.UUID, status string) error
	InsertOutboundMessage(ctx context.Context, conversationID, tenantID uuid.UUID, body string) error
}

// TimeoutHandler returns conversations stuck in waiting_human to AI
// handling so the lead is not left hanging.
type TimeoutHandler struct {
	store  TimeoutStore
	sender Sender
	log    *logger.Logger
}

func NewTimeoutHandler(store TimeoutStore, sender Sender, log *logger.Logger) *TimeoutHandler {
	return &TimeoutHandler{store: store, sender: sender, log: log}
}

func (h *TimeoutHandler) HandleHandoffTimeout(ctx context.Context, payload queue.HandoffTimeoutPayload) error {
	tenantID, err := uuid.Parse(payload.TenantID)
	if err != nil {
		h.log.Error("invalid tenant id in timeout payload", "error", err)
		return nil
	}
	conversationID, err := uuid.Parse(payload.ConversationID)
	if err != nil {
		h.log.Error("invalid conversation id in timeout payload", "error", err)
		return nil
	}

	conv, err := h.store.GetConversation(ctx, conversationID, tenantID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load conversation: %w", err)
	}

	// A human may have picked up between the sweep and this job.
	if conv.Status != repository.ConversationStatusWaitingHuman {
		return nil
	}

	if err := h.store.UpdateConversationStatus(ctx, conversationID, tenantID, repository.ConversationStatusAI); err != nil {
		return fmt.Errorf("reopen conversation: %w", err)
	}

	lead, err := h.store.GetLead(ctx, conv.LeadID, tenantID)
	if err != nil {
		h.log.Error("failed to load lead for reengagement", "error", err,
			"conversationId", conversationID)
		return nil
	}

	if err := h.sender.SendMessage(ctx, lead.Phone, reengagementMessage); err != nil {
		h.log.Error("failed to send reengagement message", "error", err,
			"conversationId", conversationID)
		return nil
	}
	if err := h.store.InsertOutboundMessage(ctx, conversationID, tenantID, reengagementMessage); err != nil {
		h.log.Error("failed to record reengagement message", "error", err)
	}

	h.log.Info("conversation returned to ai after handoff timeout",
		"tenantId", tenantID, "conversationId", conversationID)
	return nil
}
