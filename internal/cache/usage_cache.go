package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const usageKeyPrefix = "vpnhub:usage:"

type usageEntry struct {
	UsedBytes int64     `json:"used_bytes"`
	SyncedAt  time.Time `json:"synced_at"`
}

// UsageCache keeps the last reported usage per key in Redis so sweeps can
// skip keys that were synced recently. It is advisory only; the database
// column stays the source of truth and every method tolerates a nil cache
// or an unreachable Redis.
type UsageCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewUsageCache(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *UsageCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = time.Hour
	}

	return &UsageCache{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

func (c *UsageCache) Get(ctx context.Context, keyID string) (used int64, syncedAt time.Time, ok bool) {
	if c == nil || c.rdb == nil {
		return 0, time.Time{}, false
	}

	raw, err := c.rdb.Get(ctx, usageKeyPrefix+keyID).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("usage cache read failed", zap.String("key_id", keyID), zap.Error(err))
		}
		return 0, time.Time{}, false
	}

	var entry usageEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return 0, time.Time{}, false
	}
	return entry.UsedBytes, entry.SyncedAt, true
}

func (c *UsageCache) Set(ctx context.Context, keyID string, used int64, syncedAt time.Time) {
	if c == nil || c.rdb == nil {
		return
	}

	raw, err := json.Marshal(usageEntry{UsedBytes: used, SyncedAt: syncedAt})
	if err != nil {
		return
	}

	if err := c.rdb.Set(ctx, usageKeyPrefix+keyID, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("usage cache write failed", zap.String("key_id", keyID), zap.Error(err))
	}
}

func (c *UsageCache) Invalidate(ctx context.Context, keyID string) {
	if c == nil || c.rdb == nil {
		return
	}

	if err := c.rdb.Del(ctx, usageKeyPrefix+keyID).Err(); err != nil {
		c.logger.Warn("usage cache delete failed", zap.String("key_id", keyID), zap.Error(err))
	}
}
