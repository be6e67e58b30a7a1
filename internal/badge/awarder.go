package badge

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/pubcrawl-badges/internal/domain"
)

// EarnedBadgeStore persists earned badges.
// CreateEarnedBadge must return domain.ErrBadgeAlreadyEarned when the
// (userID, badgeID) pair already exists.
type EarnedBadgeStore interface {
	ListEarnedBadges(ctx context.Context, userID string) ([]domain.EarnedBadge, error)
	HasEarnedBadge(ctx context.Context, userID, badgeID string) (bool, error)
	CreateEarnedBadge(ctx context.Context, userID, badgeID string, metadata map[string]interface{}) (*domain.EarnedBadge, error)
}

// AwardStatus is the terminal state of one award attempt
type AwardStatus string

const (
	AwardPending            AwardStatus = "pending"
	AwardAwarded            AwardStatus = "awarded"
	AwardSkippedAlreadyHeld AwardStatus = "skipped_already_held"
	AwardFailed             AwardStatus = "failed"
)

// AwardOutcome describes what happened to one badge id
type AwardOutcome struct {
	BadgeID string
	Status  AwardStatus
	Badge   *domain.EarnedBadge
	Err     error
}

// AwardReport is the result of an award batch
type AwardReport struct {
	Awarded  []domain.EarnedBadge
	Outcomes []AwardOutcome
}

// Count returns the number of outcomes with status s
func (r AwardReport) Count(s AwardStatus) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == s {
			n++
		}
	}
	return n
}

// Awarder turns eligible badge ids into earned badge records, one
// independent attempt per id.
type Awarder struct {
	store   EarnedBadgeStore
	catalog *Catalog
	logger  *slog.Logger
	now     func() time.Time
}

// NewAwarder creates an award coordinator
func NewAwarder(store EarnedBadgeStore, catalog *Catalog, logger *slog.Logger) *Awarder {
	return &Awarder{
		store:   store,
		catalog: catalog,
		logger:  logger,
		now:     time.Now,
	}
}

// Award attempts every badge id in order. Failures are logged and left out
// of Awarded; they never stop the remaining attempts.
func (a *Awarder) Award(ctx context.Context, userID string, badgeIDs []string, metadata map[string]interface{}) AwardReport {
	report := AwardReport{
		Awarded:  make([]domain.EarnedBadge, 0, len(badgeIDs)),
		Outcomes: make([]AwardOutcome, 0, len(badgeIDs)),
	}

	attempted := make(map[string]bool, len(badgeIDs))
	for _, badgeID := range badgeIDs {
		var outcome AwardOutcome
		if attempted[badgeID] {
			outcome = AwardOutcome{BadgeID: badgeID, Status: AwardSkippedAlreadyHeld}
		} else {
			attempted[badgeID] = true
			outcome = a.awardOne(ctx, userID, badgeID, metadata)
		}

		switch outcome.Status {
		case AwardAwarded:
			report.Awarded = append(report.Awarded, *outcome.Badge)
			a.logger.Info("badge awarded", "user_id", userID, "badge_id", badgeID)
		case AwardSkippedAlreadyHeld:
			a.logger.Debug("badge already held, skipping", "user_id", userID, "badge_id", badgeID)
		case AwardFailed:
			a.logger.Error("failed to award badge",
				"user_id", userID,
				"badge_id", badgeID,
				"error", outcome.Err,
			)
		}
		report.Outcomes = append(report.Outcomes, outcome)
	}

	return report
}

func (a *Awarder) awardOne(ctx context.Context, userID, badgeID string, metadata map[string]interface{}) AwardOutcome {
	outcome := AwardOutcome{BadgeID: badgeID, Status: AwardPending}

	held, err := a.store.HasEarnedBadge(ctx, userID, badgeID)
	if err != nil {
		outcome.Status = AwardFailed
		outcome.Err = err
		return outcome
	}
	if held {
		outcome.Status = AwardSkippedAlreadyHeld
		return outcome
	}

	earned, err := a.store.CreateEarnedBadge(ctx, userID, badgeID, a.awardMetadata(badgeID, metadata))
	switch {
	case errors.Is(err, domain.ErrBadgeAlreadyEarned):
		outcome.Status = AwardSkippedAlreadyHeld
	case err != nil:
		outcome.Status = AwardFailed
		outcome.Err = err
	case earned == nil:
		outcome.Status = AwardFailed
		outcome.Err = errors.New("store returned no earned badge")
	default:
		outcome.Status = AwardAwarded
		outcome.Badge = earned
	}
	return outcome
}

// awardMetadata copies base so each record gets its own map
func (a *Awarder) awardMetadata(badgeID string, base map[string]interface{}) map[string]interface{} {
	meta := make(map[string]interface{}, len(base)+2)
	for k, v := range base {
		meta[k] = v
	}
	meta[domain.MetaBadgeName] = a.catalog.Lookup(badgeID).Name
	if _, ok := meta[domain.MetaAwardedAt]; !ok {
		meta[domain.MetaAwardedAt] = a.now().UTC().Format(time.RFC3339)
	}
	return meta
}
