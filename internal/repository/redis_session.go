package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/GoPolymarket/neogate/internal/model"
	"github.com/redis/go-redis/v9"
)

// RedisSessionCache stores the authenticated session so a restart or a second
// CLI run within the TTL can skip the handshake.
type RedisSessionCache struct {
	client *redis.Client
	key    string
}

func NewRedisSessionCache(client *redis.Client, key string) *RedisSessionCache {
	if key == "" {
		key = "neogate:session"
	}
	return &RedisSessionCache{client: client, key: key}
}

func (c *RedisSessionCache) Load(ctx context.Context) (*model.Session, error) {
	raw, err := c.client.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var s model.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		// unreadable entry is as good as none
		_ = c.client.Del(ctx, c.key).Err()
		return nil, nil
	}
	if s.EditToken == "" || s.BaseURL == "" {
		return nil, nil
	}
	return &s, nil
}

func (c *RedisSessionCache) Store(ctx context.Context, s *model.Session, ttl time.Duration) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key, raw, ttl).Err()
}

func (c *RedisSessionCache) Clear(ctx context.Context) error {
	return c.client.Del(ctx, c.key).Err()
}
