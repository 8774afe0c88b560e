package queue

import (
	"context"
	"time"

	"leadchat_backend/internal/leads/repository"
	"leadchat_backend/platform/config"
	"leadchat_backend/platform/logger"
)

// SweepStore is the slice of the repository the sweeper needs.
type SweepStore interface {
	FindStaleWaitingConversations(ctx context.Context, cutoff time.Time, limit int) ([]repository.Conversation, error)
}

// HandoffSweeper periodically scans for conversations that have waited on
// a human past the timeout and enqueues a handoff-timeout job for each.
// The job handler owns the state change; the sweeper only detects and
// enqueues, so a crashed sweep loses nothing.
type HandoffSweeper struct {
	store    SweepStore
	enqueuer Enqueuer
	timeout  time.Duration
	interval time.Duration
	log      *logger.Logger
}

const sweepBatchSize = 100

func NewHandoffSweeper(cfg config.SweepConfig, store SweepStore, enqueuer Enqueuer, log *logger.Logger) *HandoffSweeper {
	return &HandoffSweeper{
		store:    store,
		enqueuer: enqueuer,
		timeout:  cfg.GetHandoffTimeout(),
		interval: cfg.GetSweepInterval(),
		log:      log,
	}
}

func (s *HandoffSweeper) Run(ctx context.Context) {
	if s == nil || s.interval <= 0 {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *HandoffSweeper) sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.timeout)

	stale, err := s.store.FindStaleWaitingConversations(ctx, cutoff, sweepBatchSize)
	if err != nil {
		s.log.Error("handoff sweep query failed", "error", err)
		return
	}

	for _, conv := range stale {
		err := s.enqueuer.EnqueueHandoffTimeout(ctx, HandoffTimeoutPayload{
			TenantID:       conv.TenantID.String(),
			ConversationID: conv.ID.String(),
		})
		if err != nil {
			s.log.Error("failed to enqueue handoff timeout", "error", err,
				"conversationId", conv.ID)
			continue
		}
	}

	if len(stale) > 0 {
		s.log.Info("handoff sweep enqueued timeouts", "count", len(stale))
	}
}
