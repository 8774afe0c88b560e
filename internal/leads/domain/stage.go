package domain

const (
	StageNew        = "new"
	StageQualifying = "qualifying"
	StageHot        = "hot"
	StageHuman      = "human"
	StageConverted  = "converted"
	StageLost       = "lost"
)

// terminalStages never change again, regardless of score movement.
var terminalStages = map[string]struct{}{
	StageHuman:     {},
	StageConverted: {},
	StageLost:      {},
}

var knownStages = map[string]struct{}{
	StageNew:        {},
	StageQualifying: {},
	StageHot:        {},
	StageHuman:      {},
	StageConverted:  {},
	StageLost:       {},
}

// IsTerminal reports whether a stage is final.
func IsTerminal(stage string) bool {
	_, ok := terminalStages[stage]
	return ok
}

// IsKnownStage reports whether the stage name is one we track.
func IsKnownStage(stage string) bool {
	_, ok := knownStages[stage]
	return ok
}

// StageFromScore maps a qualification score to its stage. Scores carry no
// upper bound, so everything from 61 up is hot.
func StageFromScore(score int) string {
	switch {
	case score <= 20:
		return StageNew
	case score <= 60:
		return StageQualifying
	default:
		return StageHot
	}
}

// ApplyDelta computes the new score after a bounded AI delta. Scores never
// go below zero.
func ApplyDelta(score, delta int) int {
	next := score + delta
	if next < 0 {
		return 0
	}
	return next
}

// ShouldAutoHandoff reports whether the score has reached the tenant's
// handoff threshold. The boundary is inclusive.
func ShouldAutoHandoff(score, threshold int) bool {
	return score >= threshold
}
