package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pubcrawl-badges/internal/badge"
	"github.com/pubcrawl-badges/internal/domain"
)

type checkInRepo interface {
	CreateCheckIn(ctx context.Context, c domain.CheckIn) error
	ListCheckIns(ctx context.Context, userID string) ([]domain.CheckIn, error)
}

type badgeRepo interface {
	ListBadges(ctx context.Context) ([]domain.Badge, error)
	UpsertBadge(ctx context.Context, b domain.Badge) (*domain.Badge, error)
	DeleteBadge(ctx context.Context, badgeID string) error
	SeedBadges(ctx context.Context, badges []domain.Badge) error
}

// Notifier pushes badge awards to connected clients
type Notifier interface {
	BroadcastBadgeAwarded(userID string, earned domain.EarnedBadge, def domain.Badge)
}

// BadgeService provides the check-in flow and badge queries
type BadgeService struct {
	checkIns checkInRepo
	badges   badgeRepo
	store    *EarnedBadgeStore
	engine   *badge.Engine
	notifier Notifier
	validate *validator.Validate
	location *time.Location
	logger   *slog.Logger
	now      func() time.Time
}

// NewBadgeService creates a new badge service. Calendar days of check-ins
// are computed in loc.
func NewBadgeService(
	checkIns checkInRepo,
	badges badgeRepo,
	store *EarnedBadgeStore,
	engine *badge.Engine,
	loc *time.Location,
	logger *slog.Logger,
) *BadgeService {
	if loc == nil {
		loc = time.UTC
	}
	return &BadgeService{
		checkIns: checkIns,
		badges:   badges,
		store:    store,
		engine:   engine,
		validate: validator.New(),
		location: loc,
		logger:   logger.With("service", "badge"),
		now:      time.Now,
	}
}

// SetNotifier sets the notifier used to announce new badges
func (s *BadgeService) SetNotifier(n Notifier) {
	s.notifier = n
}

// RecordCheckIn stores a check-in and awards the badges it unlocks.
// Badge evaluation problems are logged and never fail the check-in.
func (s *BadgeService) RecordCheckIn(ctx context.Context, submission domain.CheckInSubmission) (*domain.CheckInResult, error) {
	if err := s.validate.Struct(submission); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidCheckIn, err)
	}

	ts := submission.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	checkIn := domain.CheckIn{
		ID:        uuid.NewString(),
		UserID:    submission.UserID,
		PubID:     submission.PubID,
		Timestamp: ts.UTC(),
		DateKey:   domain.DateKey(ts, s.location),
	}

	if err := s.checkIns.CreateCheckIn(ctx, checkIn); err != nil {
		return nil, fmt.Errorf("recording check-in: %w", err)
	}

	result := &domain.CheckInResult{
		CheckIn:   checkIn,
		NewBadges: []domain.EarnedBadge{},
	}

	history, err := s.checkIns.ListCheckIns(ctx, checkIn.UserID)
	if err != nil {
		s.logger.Warn("failed to load check-in history, skipping badges",
			"user_id", checkIn.UserID,
			"error", err,
		)
		return result, nil
	}

	awarded, err := s.engine.EvaluateAndAward(ctx, checkIn.UserID, checkIn, history)
	if err != nil {
		s.logger.Warn("badge evaluation failed",
			"user_id", checkIn.UserID,
			"checkin_id", checkIn.ID,
			"error", err,
		)
		return result, nil
	}

	result.NewBadges = awarded
	s.announce(checkIn.UserID, awarded)
	return result, nil
}

// RecordCheckInBatch records multiple check-ins
func (s *BadgeService) RecordCheckInBatch(ctx context.Context, batch domain.BatchCheckInSubmission) error {
	for _, submission := range batch.CheckIns {
		if _, err := s.RecordCheckIn(ctx, submission); err != nil {
			s.logger.Error("failed to record check-in in batch",
				"user_id", submission.UserID,
				"pub_id", submission.PubID,
				"error", err,
			)
			// Continue processing other check-ins
		}
	}
	return nil
}

// CheckIns returns a user's check-in history
func (s *BadgeService) CheckIns(ctx context.Context, userID string) ([]domain.CheckIn, error) {
	return s.checkIns.ListCheckIns(ctx, userID)
}

// EarnedBadges returns the badges a user holds
func (s *BadgeService) EarnedBadges(ctx context.Context, userID string) ([]domain.EarnedBadge, error) {
	return s.store.ListEarnedBadges(ctx, userID)
}

// RevokeBadge takes an earned badge away from a user. A later check-in or
// catch-up may award it again.
func (s *BadgeService) RevokeBadge(ctx context.Context, userID, badgeID string) error {
	if userID == "" || badgeID == "" {
		return fmt.Errorf("%w: user id and badge id are required", domain.ErrInvalidRequest)
	}
	return s.store.RevokeEarnedBadge(ctx, userID, badgeID)
}

// PreviewBadges returns the badges the user would newly earn right now
func (s *BadgeService) PreviewBadges(ctx context.Context, userID string) ([]string, error) {
	history, err := s.checkIns.ListCheckIns(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing check-ins: %w", err)
	}
	return s.engine.EvaluateOnly(ctx, userID, history)
}

// DebugBadges returns the rule-by-rule evaluation for a user
func (s *BadgeService) DebugBadges(ctx context.Context, userID string) (*badge.DebugReport, error) {
	history, err := s.checkIns.ListCheckIns(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing check-ins: %w", err)
	}
	return s.engine.GetDebugInfo(ctx, userID, history)
}

// CatchUp awards any badge the user qualifies for but does not hold,
// using the latest check-in as trigger
func (s *BadgeService) CatchUp(ctx context.Context, userID string) ([]domain.EarnedBadge, error) {
	history, err := s.checkIns.ListCheckIns(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing check-ins: %w", err)
	}

	awarded, err := s.engine.CatchUp(ctx, userID, history)
	if err != nil {
		return nil, err
	}
	s.announce(userID, awarded)
	return awarded, nil
}

// WarmCache reloads a user's earned badges into the cache
func (s *BadgeService) WarmCache(ctx context.Context, userID string) error {
	_, err := s.store.Refresh(ctx, userID)
	return err
}

func (s *BadgeService) announce(userID string, awarded []domain.EarnedBadge) {
	if s.notifier == nil {
		return
	}
	catalog := s.engine.Catalog()
	for _, eb := range awarded {
		s.notifier.BroadcastBadgeAwarded(userID, eb, catalog.Lookup(eb.BadgeID))
	}
}
