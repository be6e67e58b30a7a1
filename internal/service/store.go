package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/pubcrawl-badges/internal/domain"
)

type earnedBadgeRepo interface {
	ListEarnedBadges(ctx context.Context, userID string) ([]domain.EarnedBadge, error)
	HasEarnedBadge(ctx context.Context, userID, badgeID string) (bool, error)
	CreateEarnedBadge(ctx context.Context, userID, badgeID string, metadata map[string]interface{}) (*domain.EarnedBadge, error)
	DeleteEarnedBadge(ctx context.Context, userID, badgeID string) error
}

type earnedBadgeCache interface {
	GetEarnedBadges(ctx context.Context, userID string) ([]domain.EarnedBadge, bool, error)
	MergeEarnedBadges(ctx context.Context, userID string, badges []domain.EarnedBadge) error
	AddEarnedBadge(ctx context.Context, eb domain.EarnedBadge) (bool, error)
	HasEarnedBadge(ctx context.Context, userID, badgeID string) (bool, bool, error)
	Invalidate(ctx context.Context, userID string) error
}

// EarnedBadgeStore reads earned badges through the cache and writes them to
// the database, which stays authoritative for duplicate detection.
type EarnedBadgeStore struct {
	repo   earnedBadgeRepo
	cache  earnedBadgeCache
	logger *slog.Logger
}

// NewEarnedBadgeStore creates a store. cache may be nil.
func NewEarnedBadgeStore(repo earnedBadgeRepo, cache earnedBadgeCache, logger *slog.Logger) *EarnedBadgeStore {
	return &EarnedBadgeStore{
		repo:   repo,
		cache:  cache,
		logger: logger.With("component", "earned_badge_store"),
	}
}

// ListEarnedBadges returns a user's badges, warming the cache on a miss
func (s *EarnedBadgeStore) ListEarnedBadges(ctx context.Context, userID string) ([]domain.EarnedBadge, error) {
	if s.cache != nil {
		badges, ok, err := s.cache.GetEarnedBadges(ctx, userID)
		if err != nil {
			s.logger.Warn("badge cache read failed", "user_id", userID, "error", err)
		} else if ok {
			return badges, nil
		}
	}
	return s.Refresh(ctx, userID)
}

// Refresh loads a user's badges from the database into the cache
func (s *EarnedBadgeStore) Refresh(ctx context.Context, userID string) ([]domain.EarnedBadge, error) {
	badges, err := s.repo.ListEarnedBadges(ctx, userID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.MergeEarnedBadges(ctx, userID, badges); err != nil {
			s.logger.Warn("failed to warm badge cache", "user_id", userID, "error", err)
		}
	}
	return badges, nil
}

// HasEarnedBadge trusts a cached hit and asks the database otherwise
func (s *EarnedBadgeStore) HasEarnedBadge(ctx context.Context, userID, badgeID string) (bool, error) {
	if s.cache != nil {
		held, ok, err := s.cache.HasEarnedBadge(ctx, userID, badgeID)
		if err != nil {
			s.logger.Warn("badge cache read failed", "user_id", userID, "error", err)
		} else if ok && held {
			return true, nil
		}
	}
	return s.repo.HasEarnedBadge(ctx, userID, badgeID)
}

// CreateEarnedBadge awards a badge in the database and mirrors it in the cache
func (s *EarnedBadgeStore) CreateEarnedBadge(ctx context.Context, userID, badgeID string, metadata map[string]interface{}) (*domain.EarnedBadge, error) {
	eb, err := s.repo.CreateEarnedBadge(ctx, userID, badgeID, metadata)
	if err != nil {
		if errors.Is(err, domain.ErrBadgeAlreadyEarned) && s.cache != nil {
			// the cache missed an award made elsewhere
			if invErr := s.cache.Invalidate(ctx, userID); invErr != nil {
				s.logger.Warn("failed to invalidate badge cache", "user_id", userID, "error", invErr)
			}
		}
		return nil, err
	}

	if s.cache != nil {
		if _, err := s.cache.AddEarnedBadge(ctx, *eb); err != nil {
			s.logger.Warn("failed to cache earned badge",
				"user_id", userID,
				"badge_id", badgeID,
				"error", err,
			)
		}
	}
	return eb, nil
}

// RevokeEarnedBadge deletes an award and drops the user's cached set, since
// cache refreshes only ever add badges.
func (s *EarnedBadgeStore) RevokeEarnedBadge(ctx context.Context, userID, badgeID string) error {
	if err := s.repo.DeleteEarnedBadge(ctx, userID, badgeID); err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, userID); err != nil {
			s.logger.Warn("failed to invalidate badge cache", "user_id", userID, "error", err)
		}
	}
	s.logger.Info("earned badge revoked", "user_id", userID, "badge_id", badgeID)
	return nil
}
