package badge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pubcrawl-badges/internal/domain"
)

// Engine evaluates a user's check-in history and awards new badges
type Engine struct {
	store     EarnedBadgeStore
	catalog   *Catalog
	evaluator *Evaluator
	awarder   *Awarder
	logger    *slog.Logger
}

// NewEngine creates a badge engine
func NewEngine(store EarnedBadgeStore, catalog *Catalog, rules []Rule, logger *slog.Logger) *Engine {
	logger = logger.With("component", "badge_engine")
	evaluator := NewEvaluator(rules)

	if missing := catalog.Missing(evaluator.BadgeIDs()); len(missing) > 0 {
		logger.Warn("rules without catalog entries", "badge_ids", missing)
	}

	return &Engine{
		store:     store,
		catalog:   catalog,
		evaluator: evaluator,
		awarder:   NewAwarder(store, catalog, logger),
		logger:    logger,
	}
}

// Catalog returns the engine's badge catalog
func (e *Engine) Catalog() *Catalog {
	return e.catalog
}

// EvaluateAndAward evaluates history against trigger and awards every newly
// eligible badge. Only the awards that succeeded are returned. An error means
// evaluation itself failed and nothing was awarded.
func (e *Engine) EvaluateAndAward(ctx context.Context, userID string, trigger domain.CheckIn, history []domain.CheckIn) ([]domain.EarnedBadge, error) {
	return e.evaluateAndAward(ctx, userID, trigger, history, domain.TriggerCheckIn)
}

// CatchUp evaluates and awards using the most recent check-in as trigger
func (e *Engine) CatchUp(ctx context.Context, userID string, history []domain.CheckIn) ([]domain.EarnedBadge, error) {
	trigger, ok := LatestCheckIn(history)
	if !ok {
		return []domain.EarnedBadge{}, nil
	}
	return e.evaluateAndAward(ctx, userID, trigger, history, domain.TriggerCatchUp)
}

func (e *Engine) evaluateAndAward(ctx context.Context, userID string, trigger domain.CheckIn, history []domain.CheckIn, reason string) ([]domain.EarnedBadge, error) {
	if len(history) == 0 {
		return []domain.EarnedBadge{}, nil
	}

	tc, err := e.buildContext(ctx, userID, trigger, history)
	if err != nil {
		return nil, err
	}

	eligible := e.evaluator.Evaluate(tc)
	if len(eligible) == 0 {
		return []domain.EarnedBadge{}, nil
	}

	e.logger.Debug("badges eligible", "user_id", userID, "badge_ids", eligible)

	report := e.awarder.Award(ctx, userID, eligible, map[string]interface{}{
		domain.MetaTrigger:   reason,
		domain.MetaCheckInID: trigger.ID,
		domain.MetaPubID:     trigger.PubID,
	})

	if failed := report.Count(AwardFailed); failed > 0 {
		e.logger.Warn("some badge awards failed",
			"user_id", userID,
			"failed", failed,
			"awarded", len(report.Awarded),
		)
	}

	return report.Awarded, nil
}

// EvaluateOnly returns the badges the user would newly earn, using the most
// recent check-in as trigger. Nothing is awarded.
func (e *Engine) EvaluateOnly(ctx context.Context, userID string, history []domain.CheckIn) ([]string, error) {
	trigger, ok := LatestCheckIn(history)
	if !ok {
		return []string{}, nil
	}

	tc, err := e.buildContext(ctx, userID, trigger, history)
	if err != nil {
		return nil, err
	}
	return e.evaluator.Evaluate(tc), nil
}

// GetDebugInfo reports the per-rule evaluation for the user's history.
// An empty history yields domain.ErrNoCheckIns.
func (e *Engine) GetDebugInfo(ctx context.Context, userID string, history []domain.CheckIn) (*DebugReport, error) {
	trigger, ok := LatestCheckIn(history)
	if !ok {
		return nil, domain.ErrNoCheckIns
	}

	tc, err := e.buildContext(ctx, userID, trigger, history)
	if err != nil {
		return nil, err
	}
	return Inspect(e.evaluator, tc), nil
}

func (e *Engine) buildContext(ctx context.Context, userID string, trigger domain.CheckIn, history []domain.CheckIn) (*TriggerContext, error) {
	earned, err := e.store.ListEarnedBadges(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing earned badges: %w", err)
	}
	return NewTriggerContext(userID, trigger, history, earned)
}
