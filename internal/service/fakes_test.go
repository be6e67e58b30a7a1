package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/pubcrawl-badges/internal/badge"
	"github.com/pubcrawl-badges/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeCheckInRepo struct {
	mu        sync.Mutex
	byUser    map[string][]domain.CheckIn
	listErr   error
	createErr error
}

func newFakeCheckInRepo() *fakeCheckInRepo {
	return &fakeCheckInRepo{byUser: make(map[string][]domain.CheckIn)}
}

func (r *fakeCheckInRepo) CreateCheckIn(_ context.Context, c domain.CheckIn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	r.byUser[c.UserID] = append(r.byUser[c.UserID], c)
	return nil
}

func (r *fakeCheckInRepo) ListCheckIns(_ context.Context, userID string) ([]domain.CheckIn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	return append([]domain.CheckIn(nil), r.byUser[userID]...), nil
}

type fakeBadgeRepo struct {
	badges  map[string]domain.Badge
	seeded  int
	saveErr error
}

func newFakeBadgeRepo() *fakeBadgeRepo {
	return &fakeBadgeRepo{badges: make(map[string]domain.Badge)}
}

func (r *fakeBadgeRepo) ListBadges(context.Context) ([]domain.Badge, error) {
	out := make([]domain.Badge, 0, len(r.badges))
	for _, b := range r.badges {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeBadgeRepo) UpsertBadge(_ context.Context, b domain.Badge) (*domain.Badge, error) {
	if r.saveErr != nil {
		return nil, r.saveErr
	}
	b.UpdatedAt = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	r.badges[b.ID] = b
	return &b, nil
}

func (r *fakeBadgeRepo) DeleteBadge(_ context.Context, badgeID string) error {
	if _, ok := r.badges[badgeID]; !ok {
		return domain.ErrBadgeNotFound
	}
	delete(r.badges, badgeID)
	return nil
}

func (r *fakeBadgeRepo) SeedBadges(_ context.Context, badges []domain.Badge) error {
	for _, b := range badges {
		if _, ok := r.badges[b.ID]; !ok {
			r.badges[b.ID] = b
			r.seeded++
		}
	}
	return nil
}

type fakeEarnedRepo struct {
	mu        sync.Mutex
	earned    map[string][]domain.EarnedBadge
	listErr   error
	listCalls int
	// afterList runs once, after a list has taken its snapshot
	afterList func()
}

func newFakeEarnedRepo() *fakeEarnedRepo {
	return &fakeEarnedRepo{earned: make(map[string][]domain.EarnedBadge)}
}

func (r *fakeEarnedRepo) ListEarnedBadges(_ context.Context, userID string) ([]domain.EarnedBadge, error) {
	r.mu.Lock()
	r.listCalls++
	if r.listErr != nil {
		r.mu.Unlock()
		return nil, r.listErr
	}
	snapshot := append([]domain.EarnedBadge{}, r.earned[userID]...)
	hook := r.afterList
	r.afterList = nil
	r.mu.Unlock()

	if hook != nil {
		hook()
	}
	return snapshot, nil
}

func (r *fakeEarnedRepo) DeleteEarnedBadge(_ context.Context, userID, badgeID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	held := r.earned[userID]
	for i, eb := range held {
		if eb.BadgeID == badgeID {
			r.earned[userID] = append(held[:i:i], held[i+1:]...)
			return nil
		}
	}
	return domain.ErrBadgeNotEarned
}

func (r *fakeEarnedRepo) HasEarnedBadge(_ context.Context, userID, badgeID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, eb := range r.earned[userID] {
		if eb.BadgeID == badgeID {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeEarnedRepo) CreateEarnedBadge(_ context.Context, userID, badgeID string, metadata map[string]interface{}) (*domain.EarnedBadge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, eb := range r.earned[userID] {
		if eb.BadgeID == badgeID {
			return nil, domain.ErrBadgeAlreadyEarned
		}
	}
	eb := domain.EarnedBadge{
		ID:        userID + "/" + badgeID,
		UserID:    userID,
		BadgeID:   badgeID,
		AwardedAt: time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC),
		Metadata:  metadata,
	}
	r.earned[userID] = append(r.earned[userID], eb)
	return &eb, nil
}

type fakeCache struct {
	loaded      map[string]bool
	badges      map[string]map[string]domain.EarnedBadge
	invalidated []string
	getErr      error
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		loaded: make(map[string]bool),
		badges: make(map[string]map[string]domain.EarnedBadge),
	}
}

func (c *fakeCache) GetEarnedBadges(_ context.Context, userID string) ([]domain.EarnedBadge, bool, error) {
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	if !c.loaded[userID] {
		return nil, false, nil
	}
	out := make([]domain.EarnedBadge, 0, len(c.badges[userID]))
	for _, eb := range c.badges[userID] {
		out = append(out, eb)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BadgeID < out[j].BadgeID })
	return out, true, nil
}

func (c *fakeCache) MergeEarnedBadges(_ context.Context, userID string, badges []domain.EarnedBadge) error {
	c.loaded[userID] = true
	if c.badges[userID] == nil {
		c.badges[userID] = make(map[string]domain.EarnedBadge)
	}
	for _, eb := range badges {
		if _, ok := c.badges[userID][eb.BadgeID]; !ok {
			c.badges[userID][eb.BadgeID] = eb
		}
	}
	return nil
}

func (c *fakeCache) AddEarnedBadge(_ context.Context, eb domain.EarnedBadge) (bool, error) {
	if c.badges[eb.UserID] == nil {
		c.badges[eb.UserID] = make(map[string]domain.EarnedBadge)
	}
	if _, ok := c.badges[eb.UserID][eb.BadgeID]; ok {
		return false, nil
	}
	c.badges[eb.UserID][eb.BadgeID] = eb
	return true, nil
}

func (c *fakeCache) HasEarnedBadge(_ context.Context, userID, badgeID string) (bool, bool, error) {
	if c.getErr != nil {
		return false, false, c.getErr
	}
	_, held := c.badges[userID][badgeID]
	if held {
		return true, true, nil
	}
	return false, c.loaded[userID], nil
}

func (c *fakeCache) Invalidate(_ context.Context, userID string) error {
	delete(c.loaded, userID)
	delete(c.badges, userID)
	c.invalidated = append(c.invalidated, userID)
	return nil
}

type notification struct {
	userID  string
	badgeID string
	name    string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (n *recordingNotifier) BroadcastBadgeAwarded(userID string, earned domain.EarnedBadge, def domain.Badge) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{userID: userID, badgeID: earned.BadgeID, name: def.Name})
}

type fixture struct {
	svc      *BadgeService
	checkIns *fakeCheckInRepo
	badges   *fakeBadgeRepo
	earned   *fakeEarnedRepo
	cache    *fakeCache
	notifier *recordingNotifier
}

var baseTime = time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC)

func newFixture() *fixture {
	f := &fixture{
		checkIns: newFakeCheckInRepo(),
		badges:   newFakeBadgeRepo(),
		earned:   newFakeEarnedRepo(),
		cache:    newFakeCache(),
		notifier: &recordingNotifier{},
	}
	logger := testLogger()
	store := NewEarnedBadgeStore(f.earned, f.cache, logger)
	engine := badge.NewEngine(store, badge.DefaultCatalog(), badge.DefaultRules(badge.DefaultRuleOptions()), logger)
	f.svc = NewBadgeService(f.checkIns, f.badges, store, engine, time.UTC, logger)
	f.svc.SetNotifier(f.notifier)
	f.svc.now = func() time.Time { return baseTime }
	return f
}
