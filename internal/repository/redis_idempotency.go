package repository

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"

	"github.com/GoPolymarket/neogate/internal/middleware"
	"github.com/redis/go-redis/v9"
)

type RedisIdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisIdempotencyStore(client *redis.Client, ttl time.Duration) *RedisIdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisIdempotencyStore{
		client: client,
		ttl:    ttl,
		prefix: "neogate:idem:",
	}
}

func (s *RedisIdempotencyStore) GetOrLock(ctx context.Context, key string) (*middleware.IdempotencyRecord, bool, error) {
	payload := encodeIdemRecord(middleware.IdempotencyRecord{
		CreatedAt:  time.Now().UTC(),
		Processing: true,
	})
	locked, err := s.client.SetNX(ctx, s.prefix+key, payload, s.ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if locked {
		return nil, false, nil
	}

	raw, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		// expired or unlocked in between; report busy so the client retries
		return &middleware.IdempotencyRecord{Processing: true}, true, nil
	}
	if err != nil {
		return nil, false, err
	}
	rec, err := decodeIdemRecord(raw)
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

func (s *RedisIdempotencyStore) Save(ctx context.Context, key string, status int, body []byte) error {
	payload := encodeIdemRecord(middleware.IdempotencyRecord{
		Status:    status,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	})
	return s.client.Set(ctx, s.prefix+key, payload, s.ttl).Err()
}

func (s *RedisIdempotencyStore) Unlock(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}

type idemWire struct {
	Status     int    `json:"status"`
	Body       string `json:"body"`
	CreatedAt  int64  `json:"created_at"`
	Processing bool   `json:"processing"`
}

func encodeIdemRecord(rec middleware.IdempotencyRecord) string {
	data, _ := json.Marshal(idemWire{
		Status:     rec.Status,
		Body:       base64.StdEncoding.EncodeToString(rec.Body),
		CreatedAt:  rec.CreatedAt.Unix(),
		Processing: rec.Processing,
	})
	return string(data)
}

func decodeIdemRecord(raw string) (*middleware.IdempotencyRecord, error) {
	var wire idemWire
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, err
	}
	body, err := base64.StdEncoding.DecodeString(wire.Body)
	if err != nil {
		return nil, err
	}
	return &middleware.IdempotencyRecord{
		Status:     wire.Status,
		Body:       body,
		CreatedAt:  time.Unix(wire.CreatedAt, 0).UTC(),
		Processing: wire.Processing,
	}, nil
}
