// Package scoring applies AI score deltas to leads and recomputes their
// qualification stage.
package scoring

import (
	"context"

	"leadchat_backend/internal/leads/domain"
	"leadchat_backend/internal/leads/repository"
	"leadchat_backend/platform/logger"

	"github.com/google/uuid"
)

// Store is the slice of the repository the scoring engine needs.
type Store interface {
	UpdateScoreStage(ctx context.Context, params repository.UpdateScoreStageParams) error
}

type Service struct {
	store Store
	log   *logger.Logger
}

func New(store Store, log *logger.Logger) *Service {
	return &Service{store: store, log: log}
}

// UpdateResult describes one applied score change.
type UpdateResult struct {
	NewScore     int
	OldStage     string
	NewStage     string
	StageChanged bool
}

// UpdateScore applies a bounded delta to the lead's score, recomputes the
// stage (terminal stages are never recomputed), and persists the new values
// together with the corresponding lead events.
func (s *Service) UpdateScore(ctx context.Context, leadID, tenantID uuid.UUID, currentScore int, currentStage string, delta int, source string) (UpdateResult, error) {
	newScore := domain.ApplyDelta(currentScore, delta)

	newStage := currentStage
	if !domain.IsTerminal(currentStage) {
		newStage = domain.StageFromScore(newScore)
	}

	result := UpdateResult{
		NewScore:     newScore,
		OldStage:     currentStage,
		NewStage:     newStage,
		StageChanged: newStage != currentStage,
	}

	events := make([]repository.LeadEventParams, 0, 2)
	if delta != 0 {
		events = append(events, repository.LeadEventParams{
			EventType: repository.EventScoreChange,
			Metadata: map[string]any{
				"oldScore": currentScore,
				"newScore": newScore,
				"delta":    delta,
				"source":   source,
			},
		})
	}
	if result.StageChanged {
		events = append(events, repository.LeadEventParams{
			EventType: repository.EventStageChange,
			Metadata: map[string]any{
				"oldStage": currentStage,
				"newStage": newStage,
				"score":    newScore,
			},
		})
	}

	err := s.store.UpdateScoreStage(ctx, repository.UpdateScoreStageParams{
		LeadID:   leadID,
		TenantID: tenantID,
		NewScore: newScore,
		NewStage: newStage,
		Events:   events,
	})
	if err != nil {
		s.log.DatabaseError("scoring.update_score", err)
		return UpdateResult{}, err
	}

	if result.StageChanged {
		s.log.Info("lead stage changed",
			"leadId", leadID,
			"oldStage", currentStage,
			"newStage", newStage,
			"score", newScore,
		)
	}

	return result, nil
}
