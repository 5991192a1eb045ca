package reissue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const replayKeyPrefix = "portal:reissue:replay:"

// ReplayCache shares completed exchanges between portal instances.
type ReplayCache interface {
	Get(ctx context.Context, key string) (Tokens, error)
	Put(ctx context.Context, key string, tok Tokens, ttl time.Duration) error
}

// RedisReplayCache stores exchanges in Redis under the refresh credential hash.
type RedisReplayCache struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewRedisReplayCache returns a cache over rdb.
func NewRedisReplayCache(rdb redis.UniversalClient) *RedisReplayCache {
	return &RedisReplayCache{rdb: rdb, prefix: replayKeyPrefix}
}

func (c *RedisReplayCache) key(k string) string { return c.prefix + k }

// Get returns the cached exchange for key, or ErrReplayMiss.
func (c *RedisReplayCache) Get(ctx context.Context, key string) (Tokens, error) {
	raw, err := c.rdb.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Tokens{}, ErrReplayMiss
	}
	if err != nil {
		return Tokens{}, fmt.Errorf("reissue: replay get: %w", err)
	}
	var tok Tokens
	if err := json.Unmarshal(raw, &tok); err != nil || tok.AccessToken == "" {
		return Tokens{}, ErrReplayMiss
	}
	return tok, nil
}

// Put stores tok for ttl. The first writer wins so replays stay consistent.
func (c *RedisReplayCache) Put(ctx context.Context, key string, tok Tokens, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	if err := c.rdb.SetNX(ctx, c.key(key), raw, ttl).Err(); err != nil {
		return fmt.Errorf("reissue: replay put: %w", err)
	}
	return nil
}
