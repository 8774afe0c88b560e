// Package parser converts raw model output into a structured reply decision.
// Parsing never fails: malformed output resolves to a safe fallback that
// recommends a human handoff.
package parser

import (
	"encoding/json"
	"math"
	"strings"
)

// FallbackResponse is the reply used when the model output cannot be parsed
// or comes back without usable text.
const FallbackResponse = "Desculpe, tive um problema para processar sua mensagem. Um de nossos atendentes vai continuar a conversa com você em instantes."

// ParseFailureReason is the handoff reason attached to the fallback.
const ParseFailureReason = "AI response parse failure"

const (
	scoreDeltaMin = -50
	scoreDeltaMax = 30
)

var validIntents = map[string]struct{}{
	"greeting":  {},
	"question":  {},
	"buying":    {},
	"complaint": {},
	"farewell":  {},
	"spam":      {},
	"other":     {},
}

// ExtractedInfo carries lead attributes the model pulled from the message.
type ExtractedInfo struct {
	Name     string
	Email    string
	Interest string
}

// Parsed is the structured decision derived from one model response.
type Parsed struct {
	Response      string
	Intent        string
	Confidence    int
	ShouldHandoff bool
	HandoffReason string
	ScoreDelta    int
	ExtractedInfo ExtractedInfo
}

// rawResponse mirrors the JSON envelope the prompt instructs the model to
// produce. Numbers come in as float64 so fractional model output still lands.
type rawResponse struct {
	Response      *string  `json:"response"`
	Intent        *string  `json:"intent"`
	Confidence    *float64 `json:"confidence"`
	ShouldHandoff *bool    `json:"should_handoff"`
	HandoffReason *string  `json:"handoff_reason"`
	ScoreDelta    *float64 `json:"score_delta"`
	ExtractedInfo *struct {
		Name     *string `json:"name"`
		Email    *string `json:"email"`
		Interest *string `json:"interest"`
	} `json:"extracted_info"`
}

// Fallback returns the canned degraded decision.
func Fallback() Parsed {
	return Parsed{
		Response:      FallbackResponse,
		Intent:        "other",
		Confidence:    0,
		ShouldHandoff: true,
		HandoffReason: ParseFailureReason,
		ScoreDelta:    0,
	}
}

// Parse converts raw model text into a Parsed decision. It never returns an
// error; anything structurally unusable becomes Fallback().
func Parse(raw string) Parsed {
	cleaned := stripCodeFence(raw)
	if cleaned == "" {
		return Fallback()
	}

	var decoded rawResponse
	if err := json.Unmarshal([]byte(cleaned), &decoded); err != nil {
		return Fallback()
	}

	parsed := Parsed{
		Response:   FallbackResponse,
		Intent:     "other",
		ScoreDelta: 0,
	}

	if decoded.Response != nil && strings.TrimSpace(*decoded.Response) != "" {
		parsed.Response = strings.TrimSpace(*decoded.Response)
	}

	if decoded.Intent != nil {
		intent := strings.ToLower(strings.TrimSpace(*decoded.Intent))
		if _, ok := validIntents[intent]; ok {
			parsed.Intent = intent
		}
	}

	if decoded.Confidence != nil {
		parsed.Confidence = clamp(int(math.Round(*decoded.Confidence)), 0, 100)
	}

	if decoded.ShouldHandoff != nil {
		parsed.ShouldHandoff = *decoded.ShouldHandoff
	}

	if decoded.HandoffReason != nil {
		reason := strings.TrimSpace(*decoded.HandoffReason)
		// Models sometimes emit the literal string "null".
		if reason != "" && !strings.EqualFold(reason, "null") {
			parsed.HandoffReason = reason
		}
	}

	if decoded.ScoreDelta != nil {
		parsed.ScoreDelta = clamp(int(math.Round(*decoded.ScoreDelta)), scoreDeltaMin, scoreDeltaMax)
	}

	if decoded.ExtractedInfo != nil {
		parsed.ExtractedInfo = ExtractedInfo{
			Name:     trimmedOrEmpty(decoded.ExtractedInfo.Name),
			Email:    trimmedOrEmpty(decoded.ExtractedInfo.Email),
			Interest: trimmedOrEmpty(decoded.ExtractedInfo.Interest),
		}
	}

	return parsed
}

// stripCodeFence removes surrounding markdown code-fence delimiters.
func stripCodeFence(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	text = strings.TrimPrefix(text, "```")
	// Drop an optional language tag on the opening fence.
	if idx := strings.IndexByte(text, '\n'); idx >= 0 && !strings.Contains(text[:idx], "{") {
		text = text[idx+1:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func trimmedOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
