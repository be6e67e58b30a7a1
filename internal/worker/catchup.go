package worker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pubcrawl-badges/internal/config"
	"github.com/pubcrawl-badges/internal/domain"
	"golang.org/x/sync/errgroup"
)

type userLister interface {
	ListUserIDs(ctx context.Context, after string, limit int) ([]string, error)
}

type badgeRunner interface {
	CatchUp(ctx context.Context, userID string) ([]domain.EarnedBadge, error)
	WarmCache(ctx context.Context, userID string) error
}

// CycleStats summarises one pass over all users
type CycleStats struct {
	Users   int
	Awarded int
	Errors  int
}

// CatchUpWorker periodically re-evaluates every user with check-ins and
// awards the badges they qualify for but do not hold
type CatchUpWorker struct {
	users   userLister
	badges  badgeRunner
	config  *config.CatchUpConfig
	logger  *slog.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	running bool
}

// NewCatchUpWorker creates a new catch-up worker
func NewCatchUpWorker(users userLister, badges badgeRunner, cfg *config.CatchUpConfig, logger *slog.Logger) *CatchUpWorker {
	return &CatchUpWorker{
		users:  users,
		badges: badges,
		config: cfg,
		logger: logger.With("component", "catchup_worker"),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins the background catch-up process
func (w *CatchUpWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("catch-up worker started", "interval", w.config.Interval)

	go w.run(ctx)
	return nil
}

// Stop stops the background catch-up process
func (w *CatchUpWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("catch-up worker stopped")
	return nil
}

func (w *CatchUpWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce runs a single catch-up cycle over all users
func (w *CatchUpWorker) RunOnce(ctx context.Context) CycleStats {
	w.logger.Info("starting catch-up cycle")
	startTime := time.Now()

	var users, awarded, failed atomic.Int64
	err := w.forEachUser(ctx, func(userID string) {
		users.Add(1)
		badges, err := w.badges.CatchUp(ctx, userID)
		if err != nil {
			w.logger.Error("catch-up failed", "user_id", userID, "error", err)
			failed.Add(1)
			return
		}
		awarded.Add(int64(len(badges)))
	})
	if err != nil {
		w.logger.Error("failed to list users for catch-up", "error", err)
	}

	stats := CycleStats{
		Users:   int(users.Load()),
		Awarded: int(awarded.Load()),
		Errors:  int(failed.Load()),
	}

	w.logger.Info("catch-up cycle completed",
		"duration", time.Since(startTime),
		"users", stats.Users,
		"awarded", stats.Awarded,
		"errors", stats.Errors,
	)
	return stats
}

// WarmCache loads every user's earned badges into the cache
func (w *CatchUpWorker) WarmCache(ctx context.Context) error {
	w.logger.Info("warming badge cache")

	var warmed atomic.Int64
	err := w.forEachUser(ctx, func(userID string) {
		if err := w.badges.WarmCache(ctx, userID); err != nil {
			w.logger.Warn("failed to warm badge cache", "user_id", userID, "error", err)
			// Continue with other users
			return
		}
		warmed.Add(1)
	})
	if err != nil {
		return err
	}

	w.logger.Info("badge cache warmed", "users", warmed.Load())
	return nil
}

// forEachUser pages through user ids in BatchSize chunks and runs fn for up
// to Concurrency users at a time. A page finishes before the next is listed.
func (w *CatchUpWorker) forEachUser(ctx context.Context, fn func(userID string)) error {
	batchSize := w.config.BatchSize
	if batchSize <= 0 {
		batchSize = 500
	}
	concurrency := w.config.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	after := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		ids, err := w.users.ListUserIDs(ctx, after, batchSize)
		if err != nil {
			return err
		}

		var g errgroup.Group
		g.SetLimit(concurrency)
		for _, id := range ids {
			g.Go(func() error {
				fn(id)
				return nil
			})
		}
		_ = g.Wait()

		if len(ids) < batchSize {
			return nil
		}
		after = ids[len(ids)-1]
	}
}

// IsRunning returns whether the worker is currently running
func (w *CatchUpWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
