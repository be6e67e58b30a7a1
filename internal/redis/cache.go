package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/pubcrawl-badges/internal/config"
	"github.com/pubcrawl-badges/internal/domain"
	"github.com/redis/go-redis/v9"
)

// loadedField marks a user hash as fully loaded, so users without any
// badge still produce a cache hit.
const loadedField = "__loaded"

// BadgeCache caches earned badges per user in a Redis hash keyed by badge id
type BadgeCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewBadgeCache connects to Redis and creates a badge cache
func NewBadgeCache(ctx context.Context, cfg *config.RedisConfig, logger *slog.Logger) (*BadgeCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return NewBadgeCacheWithClient(client, cfg.CacheTTL, logger), nil
}

// NewBadgeCacheWithClient wraps an existing client
func NewBadgeCacheWithClient(client *redis.Client, ttl time.Duration, logger *slog.Logger) *BadgeCache {
	return &BadgeCache{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

// Close closes the Redis connection
func (c *BadgeCache) Close() error {
	return c.client.Close()
}

// Ping checks the Redis connection
func (c *BadgeCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// earnedKey returns the Redis key for a user's earned badges
func (c *BadgeCache) earnedKey(userID string) string {
	return fmt.Sprintf("user:%s:badges", userID)
}

// GetEarnedBadges returns the cached badges of a user. ok is false on a
// cache miss.
func (c *BadgeCache) GetEarnedBadges(ctx context.Context, userID string) (badges []domain.EarnedBadge, ok bool, err error) {
	result, err := c.client.HGetAll(ctx, c.earnedKey(userID)).Result()
	if err != nil {
		return nil, false, fmt.Errorf("getting earned badges: %w", err)
	}
	if _, loaded := result[loadedField]; !loaded {
		return nil, false, nil
	}

	badges = make([]domain.EarnedBadge, 0, len(result)-1)
	for field, raw := range result {
		if field == loadedField {
			continue
		}
		var eb domain.EarnedBadge
		if err := json.Unmarshal([]byte(raw), &eb); err != nil {
			return nil, false, fmt.Errorf("decoding earned badge %s: %w", field, err)
		}
		badges = append(badges, eb)
	}

	sort.Slice(badges, func(i, j int) bool {
		if badges[i].AwardedAt.Equal(badges[j].AwardedAt) {
			return badges[i].BadgeID < badges[j].BadgeID
		}
		return badges[i].AwardedAt.Before(badges[j].AwardedAt)
	})
	return badges, true, nil
}

// MergeEarnedBadges adds badges to the user's cached set and marks the set
// loaded. Entries already present are kept, so an award mirrored while the
// database snapshot was being read survives the merge. Earned badges are
// only removed through Invalidate.
func (c *BadgeCache) MergeEarnedBadges(ctx context.Context, userID string, badges []domain.EarnedBadge) error {
	key := c.earnedKey(userID)

	pipe := c.client.TxPipeline()
	for _, eb := range badges {
		data, err := json.Marshal(eb)
		if err != nil {
			return fmt.Errorf("encoding earned badge: %w", err)
		}
		pipe.HSetNX(ctx, key, eb.BadgeID, data)
	}
	pipe.HSet(ctx, key, loadedField, "1")
	if c.ttl > 0 {
		pipe.Expire(ctx, key, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("merging earned badges: %w", err)
	}
	return nil
}

// AddEarnedBadge stores eb only if the user has no entry for its badge yet.
// It reports whether the entry was created.
func (c *BadgeCache) AddEarnedBadge(ctx context.Context, eb domain.EarnedBadge) (bool, error) {
	data, err := json.Marshal(eb)
	if err != nil {
		return false, fmt.Errorf("encoding earned badge: %w", err)
	}

	key := c.earnedKey(eb.UserID)
	added, err := c.client.HSetNX(ctx, key, eb.BadgeID, data).Result()
	if err != nil {
		return false, fmt.Errorf("adding earned badge: %w", err)
	}
	if added && c.ttl > 0 {
		if err := c.client.Expire(ctx, key, c.ttl).Err(); err != nil {
			c.logger.Warn("failed to refresh badge cache ttl", "user_id", eb.UserID, "error", err)
		}
	}
	return added, nil
}

// HasEarnedBadge reports whether the badge is cached for the user. ok is
// false when the user is not cached at all.
func (c *BadgeCache) HasEarnedBadge(ctx context.Context, userID, badgeID string) (held, ok bool, err error) {
	key := c.earnedKey(userID)

	pipe := c.client.Pipeline()
	loadedCmd := pipe.HExists(ctx, key, loadedField)
	heldCmd := pipe.HExists(ctx, key, badgeID)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, false, fmt.Errorf("checking earned badge: %w", err)
	}

	if !loadedCmd.Val() {
		return false, false, nil
	}
	return heldCmd.Val(), true, nil
}

// Invalidate drops the cached badges of a user
func (c *BadgeCache) Invalidate(ctx context.Context, userID string) error {
	if err := c.client.Del(ctx, c.earnedKey(userID)).Err(); err != nil {
		return fmt.Errorf("invalidating earned badges: %w", err)
	}
	return nil
}
