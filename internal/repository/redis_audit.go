package repository

import (
	"context"
	"encoding/json"

	"github.com/GoPolymarket/neogate/internal/model"
	"github.com/redis/go-redis/v9"
)

// RedisAuditRepo keeps the newest listMax audit entries in a Redis list.
type RedisAuditRepo struct {
	client  *redis.Client
	listKey string
	listMax int
}

func NewRedisAuditRepo(client *redis.Client, listKey string, listMax int) *RedisAuditRepo {
	if listKey == "" {
		listKey = "neogate:audit_logs"
	}
	if listMax <= 0 {
		listMax = 10000
	}
	return &RedisAuditRepo{
		client:  client,
		listKey: listKey,
		listMax: listMax,
	}
}

func (r *RedisAuditRepo) Insert(ctx context.Context, entry *model.AuditLog) error {
	if entry == nil {
		return nil
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, r.listKey, payload)
	pipe.LTrim(ctx, r.listKey, 0, int64(r.listMax-1))
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisAuditRepo) List(ctx context.Context, filter model.AuditFilter) ([]*model.AuditLog, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	// 过滤在客户端做，多取一些
	fetch := max(limit*5, 100)
	fetch = min(fetch, r.listMax)

	items, err := r.client.LRange(ctx, r.listKey, 0, int64(fetch-1)).Result()
	if err != nil {
		return nil, err
	}
	results := make([]*model.AuditLog, 0, limit)
	for _, raw := range items {
		var entry model.AuditLog
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			continue
		}
		if !filter.Match(&entry) {
			continue
		}
		results = append(results, &entry)
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}
