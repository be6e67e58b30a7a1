package domain

import "time"

// Canonical badge identifiers. These ids are shared by the catalog,
// the rules and persisted earned-badge records.
const (
	BadgeFirstTimer       = "first-timer"
	BadgeLocalLegend      = "local-legend"
	BadgeRegionalChampion = "regional-champion"
	BadgeEarlyBird        = "early-bird"
	BadgeNightOwl         = "night-owl"
	BadgeHatTrick         = "hat-trick"
)

// Badge is a catalog entry describing an achievement
type Badge struct {
	ID          string    `json:"id" db:"id" validate:"required,max=64"`
	Name        string    `json:"name" db:"name" validate:"required,max=255"`
	Description string    `json:"description" db:"description" validate:"max=1024"`
	Category    string    `json:"category,omitempty" db:"category" validate:"max=64"`
	Emoji       string    `json:"emoji,omitempty" db:"emoji" validate:"max=16"`
	IconURL     string    `json:"icon_url,omitempty" db:"icon_url" validate:"omitempty,url"`
	Icon        string    `json:"icon,omitempty" db:"icon" validate:"max=64"`
	Criteria    string    `json:"criteria,omitempty" db:"criteria" validate:"max=1024"`
	CreatedAt   time.Time `json:"created_at,omitempty" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at,omitempty" db:"updated_at"`
}

// EarnedBadge records one badge awarded to one user.
// At most one EarnedBadge exists per (UserID, BadgeID).
type EarnedBadge struct {
	ID        string                 `json:"id"`
	UserID    string                 `json:"user_id"`
	BadgeID   string                 `json:"badge_id"`
	AwardedAt time.Time              `json:"awarded_at"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Award metadata keys
const (
	MetaTrigger   = "trigger"
	MetaCheckInID = "checkInId"
	MetaPubID     = "pubId"
	MetaAwardedAt = "awardedAt"
	MetaBadgeName = "badgeName"
)

// Award trigger reasons
const (
	TriggerCheckIn = "check-in"
	TriggerCatchUp = "catch-up"
)
