package badge

// RuleResult is the outcome of a single rule against a context
type RuleResult struct {
	BadgeID string `json:"badge_id"`
	Kind    Kind   `json:"kind"`
	Passed  bool   `json:"passed"`
	Held    bool   `json:"held"`
}

// Evaluator runs a fixed, ordered rule table
type Evaluator struct {
	rules []Rule
}

// NewEvaluator creates an evaluator over rules
func NewEvaluator(rules []Rule) *Evaluator {
	return &Evaluator{rules: rules}
}

// Rules returns the rule table
func (e *Evaluator) Rules() []Rule {
	return e.rules
}

// BadgeIDs returns the ids of the rule table in order
func (e *Evaluator) BadgeIDs() []string {
	ids := make([]string, len(e.rules))
	for i, r := range e.rules {
		ids[i] = r.BadgeID
	}
	return ids
}

// Evaluate returns the ids of badges c newly qualifies for, in rule order.
// Already held badges are skipped and every id appears at most once.
func (e *Evaluator) Evaluate(c *TriggerContext) []string {
	eligible := make([]string, 0, len(e.rules))
	seen := make(map[string]bool, len(e.rules))
	for _, r := range e.rules {
		if seen[r.BadgeID] || c.Holds(r.BadgeID) {
			continue
		}
		if r.Check(c) {
			seen[r.BadgeID] = true
			eligible = append(eligible, r.BadgeID)
		}
	}
	return eligible
}

// Results runs every rule and reports each outcome, held badges included
func (e *Evaluator) Results(c *TriggerContext) []RuleResult {
	results := make([]RuleResult, len(e.rules))
	for i, r := range e.rules {
		results[i] = RuleResult{
			BadgeID: r.BadgeID,
			Kind:    r.Kind,
			Passed:  r.Check(c),
			Held:    c.Holds(r.BadgeID),
		}
	}
	return results
}
