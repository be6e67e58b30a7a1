package badge

import (
	"sync"

	"github.com/pubcrawl-badges/internal/domain"
)

// UnknownBadgeName is the display name used for ids with no catalog entry
const UnknownBadgeName = "Unknown badge"

// Catalog is the lookup table of badge definitions.
// It is safe for concurrent use.
type Catalog struct {
	mu     sync.RWMutex
	badges map[string]domain.Badge
	order  []string
}

// NewCatalog creates a catalog holding the given definitions in order
func NewCatalog(badges ...domain.Badge) *Catalog {
	c := &Catalog{badges: make(map[string]domain.Badge, len(badges))}
	for _, b := range badges {
		c.Put(b)
	}
	return c
}

// DefaultBadges returns the built-in badge definitions
func DefaultBadges() []domain.Badge {
	return []domain.Badge{
		{
			ID:          domain.BadgeFirstTimer,
			Name:        "First Timer",
			Description: "Checked in to a pub for the first time",
			Category:    "milestone",
			Emoji:       "🍺",
			Criteria:    "Record your first check-in",
		},
		{
			ID:          domain.BadgeLocalLegend,
			Name:        "Local Legend",
			Description: "Reached ten check-ins",
			Category:    "milestone",
			Emoji:       "🏅",
			Criteria:    "Record your 10th check-in",
		},
		{
			ID:          domain.BadgeRegionalChampion,
			Name:        "Regional Champion",
			Description: "Visited five different pubs",
			Category:    "explorer",
			Emoji:       "🗺️",
			Criteria:    "Check in at 5 distinct pubs",
		},
		{
			ID:          domain.BadgeEarlyBird,
			Name:        "Early Bird",
			Description: "Checked in before noon",
			Category:    "time",
			Emoji:       "🌅",
			Criteria:    "Check in before 12:00",
		},
		{
			ID:          domain.BadgeNightOwl,
			Name:        "Night Owl",
			Description: "Checked in late in the evening",
			Category:    "time",
			Emoji:       "🦉",
			Criteria:    "Check in at or after 21:00",
		},
		{
			ID:          domain.BadgeHatTrick,
			Name:        "Hat Trick",
			Description: "Three check-ins in a single day",
			Category:    "milestone",
			Emoji:       "🎩",
			Criteria:    "Check in 3 times on the same day",
		},
	}
}

// DefaultCatalog returns a catalog of the built-in badges
func DefaultCatalog() *Catalog {
	return NewCatalog(DefaultBadges()...)
}

// Get returns the definition for id
func (c *Catalog) Get(id string) (domain.Badge, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.badges[id]
	return b, ok
}

// Lookup returns the definition for id, or a placeholder carrying
// UnknownBadgeName when the catalog has no such entry.
func (c *Catalog) Lookup(id string) domain.Badge {
	if b, ok := c.Get(id); ok {
		return b
	}
	return domain.Badge{ID: id, Name: UnknownBadgeName}
}

// List returns all definitions in insertion order
func (c *Catalog) List() []domain.Badge {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Badge, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.badges[id])
	}
	return out
}

// Put adds or replaces a definition
func (c *Catalog) Put(b domain.Badge) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.badges[b.ID]; !ok {
		c.order = append(c.order, b.ID)
	}
	c.badges[b.ID] = b
}

// Remove deletes a definition, reporting whether it existed
func (c *Catalog) Remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.badges[id]; !ok {
		return false
	}
	delete(c.badges, id)
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return true
}

// Missing returns the ids that have no catalog entry
func (c *Catalog) Missing(ids []string) []string {
	var missing []string
	for _, id := range ids {
		if _, ok := c.Get(id); !ok {
			missing = append(missing, id)
		}
	}
	return missing
}
