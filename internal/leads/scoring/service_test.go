package scoring

import (
	"context"
	"testing"

	"leadchat_backend/internal/leads/domain"
	"leadchat_backend/internal/leads/repository"
	"leadchat_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeStore struct {
	calls []repository.UpdateScoreStageParams
	err   error
}

func (f *fakeStore) UpdateScoreStage(_ context.Context, params repository.UpdateScoreStageParams) error {
	f.calls = append(f.calls, params)
	return f.err
}

func newService(store *fakeStore) *Service {
	return New(store, logger.New("development"))
}

func TestUpdateScoreAppliesDelta(t *testing.T) {
	store := &fakeStore{}
	svc := newService(store)

	result, err := svc.UpdateScore(context.Background(), uuid.New(), uuid.New(), 10, domain.StageNew, 15, "ai")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.NewScore != 25 {
		t.Errorf("expected score 25, got %d", result.NewScore)
	}
	if result.NewStage != domain.StageQualifying || !result.StageChanged {
		t.Errorf("expected stage change to qualifying, got %+v", result)
	}
}

func TestUpdateScoreFloorsAtZero(t *testing.T) {
	store := &fakeStore{}
	svc := newService(store)

	result, err := svc.UpdateScore(context.Background(), uuid.New(), uuid.New(), 10, domain.StageNew, -50, "ai")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.NewScore != 0 {
		t.Errorf("expected floor at 0, got %d", result.NewScore)
	}
}

func TestUpdateScoreTerminalStageNeverChanges(t *testing.T) {
	for _, stage := range []string{domain.StageHuman, domain.StageConverted, domain.StageLost} {
		store := &fakeStore{}
		svc := newService(store)

		result, err := svc.UpdateScore(context.Background(), uuid.New(), uuid.New(), 10, stage, 30, "ai")
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", stage, err)
		}
		if result.NewStage != stage || result.StageChanged {
			t.Errorf("%s: terminal stage changed: %+v", stage, result)
		}
	}
}

func TestUpdateScoreEmitsScoreChangeEvent(t *testing.T) {
	store := &fakeStore{}
	svc := newService(store)

	leadID := uuid.New()
	_, err := svc.UpdateScore(context.Background(), leadID, uuid.New(), 30, domain.StageQualifying, 10, "ai")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(store.calls) != 1 {
		t.Fatalf("expected 1 persistence call, got %d", len(store.calls))
	}
	params := store.calls[0]
	if params.LeadID != leadID || params.NewScore != 40 {
		t.Errorf("unexpected params: %+v", params)
	}
	if len(params.Events) != 1 || params.Events[0].EventType != repository.EventScoreChange {
		t.Fatalf("expected single score_change event, got %+v", params.Events)
	}
	if params.Events[0].Metadata["delta"] != 10 {
		t.Errorf("delta missing from metadata: %+v", params.Events[0].Metadata)
	}
}

func TestUpdateScoreEmitsBothEventsOnStageChange(t *testing.T) {
	store := &fakeStore{}
	svc := newService(store)

	_, err := svc.UpdateScore(context.Background(), uuid.New(), uuid.New(), 55, domain.StageQualifying, 10, "ai")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	events := store.calls[0].Events
	if len(events) != 2 {
		t.Fatalf("expected score_change + stage_change, got %+v", events)
	}
	if events[0].EventType != repository.EventScoreChange || events[1].EventType != repository.EventStageChange {
		t.Errorf("unexpected event types: %+v", events)
	}
}

func TestUpdateScoreZeroDeltaEmitsNoScoreEvent(t *testing.T) {
	store := &fakeStore{}
	svc := newService(store)

	_, err := svc.UpdateScore(context.Background(), uuid.New(), uuid.New(), 30, domain.StageQualifying, 0, "ai")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.calls[0].Events) != 0 {
		t.Errorf("zero delta without stage change must emit no events, got %+v", store.calls[0].Events)
	}
}
