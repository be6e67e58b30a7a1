package service

import (
	"context"
	"fmt"

	"github.com/pubcrawl-badges/internal/badge"
	"github.com/pubcrawl-badges/internal/domain"
)

// LoadCatalog seeds the built-in badges and loads every stored definition
// into the engine's catalog
func (s *BadgeService) LoadCatalog(ctx context.Context) error {
	if err := s.badges.SeedBadges(ctx, badge.DefaultBadges()); err != nil {
		return fmt.Errorf("seeding badges: %w", err)
	}

	stored, err := s.badges.ListBadges(ctx)
	if err != nil {
		return fmt.Errorf("loading badges: %w", err)
	}

	catalog := s.engine.Catalog()
	for _, b := range stored {
		catalog.Put(b)
	}
	s.logger.Info("badge catalog loaded", "count", len(stored))
	return nil
}

// ListBadges returns the catalog
func (s *BadgeService) ListBadges() []domain.Badge {
	return s.engine.Catalog().List()
}

// GetBadge returns a badge definition
func (s *BadgeService) GetBadge(badgeID string) (*domain.Badge, error) {
	b, ok := s.engine.Catalog().Get(badgeID)
	if !ok {
		return nil, domain.ErrBadgeNotFound
	}
	return &b, nil
}

// SaveBadge creates or updates a badge definition
func (s *BadgeService) SaveBadge(ctx context.Context, b domain.Badge) (*domain.Badge, error) {
	if err := s.validate.Struct(b); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidBadge, err)
	}

	saved, err := s.badges.UpsertBadge(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("saving badge: %w", err)
	}

	s.engine.Catalog().Put(*saved)
	return saved, nil
}

// DeleteBadge removes a badge definition. Badges already earned stay.
func (s *BadgeService) DeleteBadge(ctx context.Context, badgeID string) error {
	if err := s.badges.DeleteBadge(ctx, badgeID); err != nil {
		return err
	}
	s.engine.Catalog().Remove(badgeID)
	return nil
}
