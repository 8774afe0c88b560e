// Package handoff aggregates the pipeline's signals into a single decision
// about moving a conversation from AI to a human agent.
package handoff

import (
	"fmt"

	"leadchat_backend/internal/leads/domain"
	"leadchat_backend/internal/promptcfg"
)

// Source names the first trigger that fired.
type Source string

const (
	SourceAI                Source = "ai"
	SourceScore             Source = "score"
	SourceConfidence        Source = "confidence"
	SourceMaxTurns          Source = "max_turns"
	SourceExplicit          Source = "explicit"
	SourceIntent            Source = "intent"
	SourceValidationFailure Source = "validation_failure"
)

// minConfidence is the floor below which the model's own reply is not
// trusted to continue the conversation.
const minConfidence = 30

// Decision is the single verdict computed per processed message.
type Decision struct {
	ShouldHandoff bool
	Reason        string
	Source        Source
}

// Signals are the inputs to one decision.
type Signals struct {
	// ExplicitRequest is set when sanitization flagged an explicit ask for
	// a human.
	ExplicitRequest bool
	// ParseFailed is set when the model reply went through the parser
	// fallback.
	ParseFailed bool
	// AIShouldHandoff and AIReason come from the parsed model response.
	AIShouldHandoff bool
	AIReason        string
	Intent          string
	Confidence      int
	Score           int
	// TurnCount is the number of AI replies already sent in the
	// conversation, before this one.
	TurnCount int
}

// Decide evaluates the signals in priority order and returns the decision
// of the first satisfied trigger. No trigger firing yields a negative
// decision with an empty source.
func Decide(sig Signals, rules promptcfg.HandoffRules) Decision {
	if sig.ExplicitRequest {
		return Decision{
			ShouldHandoff: true,
			Reason:        "lead solicitou atendimento humano",
			Source:        SourceExplicit,
		}
	}

	if sig.ParseFailed {
		return Decision{
			ShouldHandoff: true,
			Reason:        sig.AIReason,
			Source:        SourceValidationFailure,
		}
	}

	if sig.AIShouldHandoff {
		reason := sig.AIReason
		if reason == "" {
			reason = "modelo recomendou atendimento humano"
		}
		return Decision{ShouldHandoff: true, Reason: reason, Source: SourceAI}
	}

	if matchesHandoffIntent(sig.Intent, rules) {
		return Decision{
			ShouldHandoff: true,
			Reason:        fmt.Sprintf("intenção %q exige atendimento humano", sig.Intent),
			Source:        SourceIntent,
		}
	}

	if domain.ShouldAutoHandoff(sig.Score, rules.ScoreThreshold) {
		return Decision{
			ShouldHandoff: true,
			Reason:        fmt.Sprintf("score %d atingiu o limite %d", sig.Score, rules.ScoreThreshold),
			Source:        SourceScore,
		}
	}

	if sig.Confidence < minConfidence {
		return Decision{
			ShouldHandoff: true,
			Reason:        fmt.Sprintf("confiança %d abaixo do mínimo %d", sig.Confidence, minConfidence),
			Source:        SourceConfidence,
		}
	}

	if rules.MaxAiTurns > 0 && sig.TurnCount >= rules.MaxAiTurns {
		return Decision{
			ShouldHandoff: true,
			Reason:        fmt.Sprintf("conversa atingiu %d turnos de IA", sig.TurnCount),
			Source:        SourceMaxTurns,
		}
	}

	return Decision{}
}

func matchesHandoffIntent(intent string, rules promptcfg.HandoffRules) bool {
	if rules.AutoHandoffOnPrice && intent == "buying" {
		return true
	}
	for _, candidate := range rules.HandoffIntents {
		if candidate == intent {
			return true
		}
	}
	return false
}
