package titledata

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"conveyance/internal/platform/redis"
	id "conveyance/pkg/domain"
	"conveyance/pkg/platform/sentinel"
)

// RedisCache caches successful title lookups in Redis. Misses and cache
// errors fall through to the wrapped client; not-found results are never
// cached so a late registration becomes visible immediately.
type RedisCache struct {
	next   Client
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisCache(next Client, client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisCache{next: next, client: client, ttl: ttl, logger: logger}
}

func cacheKey(titleNumber id.TitleNumber) string {
	return "titledata:" + string(titleNumber)
}

func (c *RedisCache) Get(ctx context.Context, titleNumber id.TitleNumber) (Data, error) {
	key := cacheKey(titleNumber)

	raw, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var data Data
		if err := json.Unmarshal(raw, &data); err == nil {
			return data, nil
		}
		c.logger.WarnContext(ctx, "dropping undecodable cache entry", "key", key)
		c.client.Del(ctx, key)
	} else if !errors.Is(err, goredis.Nil) {
		c.logger.WarnContext(ctx, "title cache read failed", "key", key, "error", err)
	}

	data, err := c.next.Get(ctx, titleNumber)
	if err != nil {
		return Data{}, err
	}

	if raw, err := json.Marshal(data); err == nil {
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			c.logger.WarnContext(ctx, "title cache write failed", "key", key, "error", err)
		}
	}
	return data, nil
}

// Invalidate drops a cached title, used after issuance so subsequent
// duplicate checks see ledger state rather than stale registry data.
func (c *RedisCache) Invalidate(ctx context.Context, titleNumber id.TitleNumber) error {
	if err := c.client.Del(ctx, cacheKey(titleNumber)).Err(); err != nil {
		return errors.Join(sentinel.ErrUnavailable, err)
	}
	return nil
}
