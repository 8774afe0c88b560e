package handoff

import (
	"testing"

	"leadchat_backend/internal/promptcfg"
)

func defaultRules() promptcfg.HandoffRules {
	return promptcfg.HandoffRules{
		ScoreThreshold: 70,
		MaxAiTurns:     10,
		HandoffIntents: []string{"complaint"},
	}
}

func confidentSignals() Signals {
	return Signals{
		Intent:     "question",
		Confidence: 80,
		Score:      30,
		TurnCount:  2,
	}
}

func TestDecideNoTriggerIsNegative(t *testing.T) {
	got := Decide(confidentSignals(), defaultRules())
	if got.ShouldHandoff {
		t.Errorf("expected no handoff, got %+v", got)
	}
	if got.Source != "" {
		t.Errorf("negative decision must have empty source, got %s", got.Source)
	}
}

func TestDecideExplicitRequestWinsOverEverything(t *testing.T) {
	sig := confidentSignals()
	sig.ExplicitRequest = true
	sig.AIShouldHandoff = true
	sig.Score = 99
	sig.Confidence = 0

	got := Decide(sig, defaultRules())
	if !got.ShouldHandoff || got.Source != SourceExplicit {
		t.Errorf("expected explicit source, got %+v", got)
	}
}

func TestDecideParseFailure(t *testing.T) {
	sig := confidentSignals()
	sig.ParseFailed = true
	sig.AIShouldHandoff = true
	sig.AIReason = "AI response parse failure"

	got := Decide(sig, defaultRules())
	if got.Source != SourceValidationFailure {
		t.Errorf("expected validation_failure source, got %s", got.Source)
	}
	if got.Reason != "AI response parse failure" {
		t.Errorf("reason lost: %q", got.Reason)
	}
}

func TestDecideAIRecommendation(t *testing.T) {
	sig := confidentSignals()
	sig.AIShouldHandoff = true
	sig.AIReason = "cliente pediu gerente"

	got := Decide(sig, defaultRules())
	if got.Source != SourceAI || got.Reason != "cliente pediu gerente" {
		t.Errorf("expected ai source with reason, got %+v", got)
	}
}

func TestDecideAIRecommendationWithoutReason(t *testing.T) {
	sig := confidentSignals()
	sig.AIShouldHandoff = true

	got := Decide(sig, defaultRules())
	if got.Source != SourceAI || got.Reason == "" {
		t.Errorf("expected default reason, got %+v", got)
	}
}

func TestDecideHandoffIntent(t *testing.T) {
	sig := confidentSignals()
	sig.Intent = "complaint"

	got := Decide(sig, defaultRules())
	if got.Source != SourceIntent {
		t.Errorf("expected intent source, got %+v", got)
	}
}

func TestDecideAutoHandoffOnPrice(t *testing.T) {
	rules := defaultRules()
	rules.AutoHandoffOnPrice = true

	sig := confidentSignals()
	sig.Intent = "buying"

	got := Decide(sig, rules)
	if got.Source != SourceIntent {
		t.Errorf("expected intent source for buying, got %+v", got)
	}
}

func TestDecideScoreThresholdInclusive(t *testing.T) {
	sig := confidentSignals()
	sig.Score = 70

	got := Decide(sig, defaultRules())
	if got.Source != SourceScore {
		t.Errorf("expected score source at boundary, got %+v", got)
	}

	sig.Score = 69
	got = Decide(sig, defaultRules())
	if got.ShouldHandoff {
		t.Errorf("score below threshold must not trigger, got %+v", got)
	}
}

func TestDecideConfidenceFloor(t *testing.T) {
	sig := confidentSignals()
	sig.Confidence = minConfidence - 1

	got := Decide(sig, defaultRules())
	if got.Source != SourceConfidence {
		t.Errorf("expected confidence source, got %+v", got)
	}
}

func TestDecideMaxTurns(t *testing.T) {
	sig := confidentSignals()
	sig.TurnCount = 10

	got := Decide(sig, defaultRules())
	if got.Source != SourceMaxTurns {
		t.Errorf("expected max_turns source, got %+v", got)
	}

	// Zero means no turn limit.
	rules := defaultRules()
	rules.MaxAiTurns = 0
	got = Decide(sig, rules)
	if got.ShouldHandoff {
		t.Errorf("no limit must not trigger, got %+v", got)
	}
}

func TestDecidePriorityIntentOverScore(t *testing.T) {
	sig := confidentSignals()
	sig.Intent = "complaint"
	sig.Score = 99

	got := Decide(sig, defaultRules())
	if got.Source != SourceIntent {
		t.Errorf("intent must win over score, got %s", got.Source)
	}
}
