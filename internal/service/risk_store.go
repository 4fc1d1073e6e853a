package service

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// RiskUsageStore 跟踪当日用量（单进程）
type RiskUsageStore struct {
	mu          sync.RWMutex
	dailyVolume map[string]decimal.Decimal // Key: scope:YYYY-MM-DD
	dailyOrders map[string]int
	now         func() time.Time
}

func NewRiskUsageStore() *RiskUsageStore {
	return &RiskUsageStore{
		dailyVolume: make(map[string]decimal.Decimal),
		dailyOrders: make(map[string]int),
		now:         time.Now,
	}
}

func (s *RiskUsageStore) GetDailyUsage(_ context.Context, scope string) (int, decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key := s.makeKey(scope)
	return s.dailyOrders[key], s.dailyVolume[key], nil
}

func (s *RiskUsageStore) AddDailyUsage(_ context.Context, scope string, orders int, value decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := s.makeKey(scope)
	s.dailyVolume[key] = s.dailyVolume[key].Add(value)
	s.dailyOrders[key] += orders
	return nil
}

func (s *RiskUsageStore) makeKey(scope string) string {
	// 按 UTC 日期分割
	return scope + ":" + s.now().UTC().Format("2006-01-02")
}
