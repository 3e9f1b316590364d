package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Cache is a versioned-key cache: list reads are cached under a key that
// embeds a per-user version counter, so invalidation is a cheap INCR instead
// of a scan-and-delete. All methods are safe to call when redis is down.
type Cache struct {
	client *redis.Client
}

func New(address string) *Cache {
	client := redis.NewClient(&redis.Options{
		Addr: address,
	})
	if _, err := client.Ping(context.Background()).Result(); err != nil {
		log.Warn().Err(err).Msg("Redis not available. Running without cache.")
		return &Cache{client: nil}
	}

	log.Info().Msg("Redis connected successfully.")
	return &Cache{client: client}
}

func (c *Cache) Get(ctx context.Context, key string, dest any) (bool, error) {
	if c == nil || c.client == nil {
		return false, nil
	}

	raw, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if c == nil || c.client == nil {
		return nil
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, raw, ttl).Err()
}

// GetVersion returns the current version counter for a key, 0 when unset.
func (c *Cache) GetVersion(ctx context.Context, key string) int64 {
	if c == nil || c.client == nil {
		return 0
	}

	v, err := c.client.Get(ctx, key).Int64()
	if err != nil {
		return 0
	}
	return v
}

func (c *Cache) IncrementVersion(ctx context.Context, key string) {
	if c == nil || c.client == nil {
		return
	}

	if err := c.client.Incr(ctx, key).Err(); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("failed to bump cache version")
	}
}

func (c *Cache) Close() {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close redis client")
	}
}
