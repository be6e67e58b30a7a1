package badge

import (
	"sort"

	"github.com/pubcrawl-badges/internal/domain"
)

// TriggerContext is the input of one evaluation run. It is built fresh
// for every call and never persisted.
type TriggerContext struct {
	UserID   string
	CheckIn  domain.CheckIn
	CheckIns []domain.CheckIn
	Earned   []domain.EarnedBadge

	held map[string]bool
}

// NewTriggerContext assembles a context. The history must not be empty.
// A trigger missing from the history is appended to it.
func NewTriggerContext(userID string, trigger domain.CheckIn, history []domain.CheckIn, earned []domain.EarnedBadge) (*TriggerContext, error) {
	if len(history) == 0 {
		return nil, domain.ErrNoCheckIns
	}

	checkIns := make([]domain.CheckIn, len(history), len(history)+1)
	copy(checkIns, history)
	if trigger.ID != "" && !containsCheckIn(checkIns, trigger.ID) {
		checkIns = append(checkIns, trigger)
	}

	held := make(map[string]bool, len(earned))
	for _, eb := range earned {
		held[eb.BadgeID] = true
	}

	return &TriggerContext{
		UserID:   userID,
		CheckIn:  trigger,
		CheckIns: checkIns,
		Earned:   earned,
		held:     held,
	}, nil
}

// Holds reports whether the user already has badgeID
func (c *TriggerContext) Holds(badgeID string) bool {
	return c.held[badgeID]
}

// HeldBadgeIDs returns the ids of the badges the user holds, sorted
func (c *TriggerContext) HeldBadgeIDs() []string {
	ids := make([]string, 0, len(c.held))
	for id := range c.held {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// LatestCheckIn returns the most recent check-in of history. Ties go to
// the later element. ok is false for an empty history.
func LatestCheckIn(history []domain.CheckIn) (latest domain.CheckIn, ok bool) {
	for i, c := range history {
		if i == 0 || !c.Timestamp.Before(latest.Timestamp) {
			latest = c
		}
	}
	return latest, len(history) > 0
}

// DistinctPubs counts the distinct pub ids in history
func DistinctPubs(history []domain.CheckIn) int {
	pubs := make(map[string]struct{}, len(history))
	for _, c := range history {
		pubs[c.PubID] = struct{}{}
	}
	return len(pubs)
}

func containsCheckIn(history []domain.CheckIn, id string) bool {
	for _, c := range history {
		if c.ID == id {
			return true
		}
	}
	return false
}
