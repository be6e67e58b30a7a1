package badge

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/pubcrawl-badges/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memoryStore is an EarnedBadgeStore keyed by user and badge id
type memoryStore struct {
	mu          sync.Mutex
	earned      map[string]map[string]domain.EarnedBadge
	createErr   map[string]error
	hasErr      map[string]error
	listErr     error
	listCalls   int
	createCalls []string
	seq         int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		earned:    make(map[string]map[string]domain.EarnedBadge),
		createErr: make(map[string]error),
		hasErr:    make(map[string]error),
	}
}

func (s *memoryStore) ListEarnedBadges(_ context.Context, userID string) ([]domain.EarnedBadge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []domain.EarnedBadge
	for _, eb := range s.earned[userID] {
		out = append(out, eb)
	}
	return out, nil
}

func (s *memoryStore) HasEarnedBadge(_ context.Context, userID, badgeID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.hasErr[badgeID]; err != nil {
		return false, err
	}
	_, ok := s.earned[userID][badgeID]
	return ok, nil
}

func (s *memoryStore) CreateEarnedBadge(_ context.Context, userID, badgeID string, metadata map[string]interface{}) (*domain.EarnedBadge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createCalls = append(s.createCalls, badgeID)
	if err := s.createErr[badgeID]; err != nil {
		return nil, err
	}
	if _, ok := s.earned[userID][badgeID]; ok {
		return nil, domain.ErrBadgeAlreadyEarned
	}
	if s.earned[userID] == nil {
		s.earned[userID] = make(map[string]domain.EarnedBadge)
	}
	s.seq++
	eb := domain.EarnedBadge{
		ID:        fmt.Sprintf("eb-%d", s.seq),
		UserID:    userID,
		BadgeID:   badgeID,
		AwardedAt: time.Now(),
		Metadata:  metadata,
	}
	s.earned[userID][badgeID] = eb
	return &eb, nil
}

func (s *memoryStore) count(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.earned[userID])
}

func (s *memoryStore) grant(userID, badgeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.earned[userID] == nil {
		s.earned[userID] = make(map[string]domain.EarnedBadge)
	}
	s.earned[userID][badgeID] = domain.EarnedBadge{ID: "seed-" + badgeID, UserID: userID, BadgeID: badgeID}
}

var baseDay = time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC)

// checkIn builds a check-in at 14:00 UTC on baseDay plus day days
func checkIn(n int, pubID string, day int) domain.CheckIn {
	ts := baseDay.AddDate(0, 0, day)
	return domain.CheckIn{
		ID:        fmt.Sprintf("c%d", n),
		UserID:    "user-1",
		PubID:     pubID,
		Timestamp: ts,
		DateKey:   domain.DateKey(ts, time.UTC),
	}
}

func checkInAt(n int, pubID string, ts time.Time) domain.CheckIn {
	return domain.CheckIn{
		ID:        fmt.Sprintf("c%d", n),
		UserID:    "user-1",
		PubID:     pubID,
		Timestamp: ts,
		DateKey:   domain.DateKey(ts, time.UTC),
	}
}

// history returns n afternoon check-ins on distinct days cycling over pubs
// distinct pubs
func history(n, pubs int) []domain.CheckIn {
	out := make([]domain.CheckIn, n)
	for i := 0; i < n; i++ {
		out[i] = checkIn(i+1, fmt.Sprintf("pub%d", i%pubs+1), i)
	}
	return out
}

func mustContext(userID string, h []domain.CheckIn, earned ...domain.EarnedBadge) *TriggerContext {
	trigger, _ := LatestCheckIn(h)
	tc, err := NewTriggerContext(userID, trigger, h, earned)
	if err != nil {
		panic(err)
	}
	return tc
}
