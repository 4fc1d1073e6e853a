package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const usageTTL = 48 * time.Hour

// RedisUsageRepo keeps daily order counts and notional in one hash per scope
// and UTC day, shared by every gateway instance.
type RedisUsageRepo struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

func NewRedisUsageRepo(client *redis.Client) *RedisUsageRepo {
	return &RedisUsageRepo{
		client: client,
		prefix: "neogate:risk",
		now:    time.Now,
	}
}

func (r *RedisUsageRepo) GetDailyUsage(ctx context.Context, scope string) (int, decimal.Decimal, error) {
	vals, err := r.client.HMGet(ctx, r.makeKey(scope), "orders", "volume").Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, decimal.Zero, err
	}
	orders := 0
	volume := decimal.Zero
	if len(vals) == 2 {
		if s, ok := vals[0].(string); ok {
			if parsed, err := strconv.Atoi(s); err == nil {
				orders = parsed
			}
		}
		if s, ok := vals[1].(string); ok {
			if parsed, err := decimal.NewFromString(s); err == nil {
				volume = parsed
			}
		}
	}
	return orders, volume, nil
}

func (r *RedisUsageRepo) AddDailyUsage(ctx context.Context, scope string, orders int, value decimal.Decimal) error {
	key := r.makeKey(scope)
	pipe := r.client.TxPipeline()
	if orders != 0 {
		pipe.HIncrBy(ctx, key, "orders", int64(orders))
	}
	if !value.IsZero() {
		pipe.HIncrByFloat(ctx, key, "volume", value.InexactFloat64())
	}
	pipe.Expire(ctx, key, usageTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisUsageRepo) makeKey(scope string) string {
	date := r.now().UTC().Format("2006-01-02")
	return fmt.Sprintf("%s:%s:%s", r.prefix, scope, date)
}
