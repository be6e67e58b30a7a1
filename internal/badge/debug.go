package badge

import "github.com/pubcrawl-badges/internal/domain"

// DebugContext summarises the trigger context of a debug run
type DebugContext struct {
	UserID       string         `json:"user_id"`
	CheckIn      domain.CheckIn `json:"checkin"`
	CheckInCount int            `json:"checkin_count"`
	EarnedCount  int            `json:"earned_count"`
}

// DebugInfo exposes the per-rule evaluation of a context
type DebugInfo struct {
	CheckInCount   int          `json:"checkin_count"`
	UniquePubCount int          `json:"unique_pub_count"`
	HeldBadgeIDs   []string     `json:"held_badge_ids"`
	Rules          []RuleResult `json:"rules"`
	Eligible       []string     `json:"eligible"`
}

// DebugReport pairs the context with its debug info
type DebugReport struct {
	Context   DebugContext `json:"context"`
	DebugInfo DebugInfo    `json:"debug_info"`
}

// Inspect builds a debug report for c without awarding anything
func Inspect(e *Evaluator, c *TriggerContext) *DebugReport {
	return &DebugReport{
		Context: DebugContext{
			UserID:       c.UserID,
			CheckIn:      c.CheckIn,
			CheckInCount: len(c.CheckIns),
			EarnedCount:  len(c.Earned),
		},
		DebugInfo: DebugInfo{
			CheckInCount:   len(c.CheckIns),
			UniquePubCount: DistinctPubs(c.CheckIns),
			HeldBadgeIDs:   c.HeldBadgeIDs(),
			Rules:          e.Results(c),
			Eligible:       e.Evaluate(c),
		},
	}
}
