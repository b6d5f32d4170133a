package domain

// Scoring contexts accepted by the compatibility provider.
const (
	ScoreContextTeammate   = "teammate"
	ScoreContextOpenMatch  = "open_match"
	ScoreContextDraftMatch = "draft_match"
)

// CompatibilityResult carries one provider-computed score, clamped to [0,1].
// Provider is true only when the value actually came from the external
// scorer; courtside never synthesizes scores locally.
type CompatibilityResult struct {
	EntityID string   `json:"entity_id"`
	Score    float64  `json:"score" minimum:"0" maximum:"1"`
	Explicit *float64 `json:"explicit,omitempty"`
	Implicit *float64 `json:"implicit,omitempty"`
	Provider bool     `json:"provider"`
}
