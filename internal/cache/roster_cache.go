package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"badgewatch/internal/models"

	"go.uber.org/zap"
)

// RosterKey cache key of a month's roster
func RosterKey(monthKey string) string {
	return fmt.Sprintf("badgewatch:roster:%s", monthKey)
}

// RosterCache stores each month's summaries as one JSON document
type RosterCache struct {
	kv     KVStore
	ttl    time.Duration
	logger *zap.Logger
}

// NewRosterCache creates a roster cache; ttl 0 keeps entries until replaced.
func NewRosterCache(kv KVStore, ttl time.Duration, logger *zap.Logger) *RosterCache {
	return &RosterCache{
		kv:     kv,
		ttl:    ttl,
		logger: logger,
	}
}

// Put replaces the cached roster of monthKey.
func (c *RosterCache) Put(ctx context.Context, monthKey string, summaries []models.MonthlyPersonSummary) error {
	key := RosterKey(monthKey)

	jsonData, err := json.Marshal(summaries)
	if err != nil {
		return fmt.Errorf("failed to marshal roster: %w", err)
	}

	if err := c.kv.Set(ctx, key, string(jsonData), c.ttl); err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}

	c.logger.Debug("Updated roster cache",
		zap.String("month_key", monthKey),
		zap.String("key", key),
		zap.Int("person_count", len(summaries)),
	)
	return nil
}

// Get returns the cached roster of monthKey or ErrCacheMiss.
func (c *RosterCache) Get(ctx context.Context, monthKey string) ([]models.MonthlyPersonSummary, error) {
	raw, err := c.kv.Get(ctx, RosterKey(monthKey))
	if err != nil {
		return nil, err
	}

	var summaries []models.MonthlyPersonSummary
	if err := json.Unmarshal([]byte(raw), &summaries); err != nil {
		c.logger.Warn("Discarding unreadable roster cache entry",
			zap.String("month_key", monthKey),
			zap.Error(err),
		)
		return nil, ErrCacheMiss
	}
	return summaries, nil
}

// Invalidate drops the cached rosters of the given months.
func (c *RosterCache) Invalidate(ctx context.Context, monthKeys ...string) error {
	keys := make([]string, len(monthKeys))
	for i, m := range monthKeys {
		keys[i] = RosterKey(m)
	}
	if err := c.kv.Del(ctx, keys...); err != nil {
		return fmt.Errorf("failed to invalidate cache: %w", err)
	}
	return nil
}
