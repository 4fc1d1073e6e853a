package service

import (
	"context"
	"strings"

	"github.com/GoPolymarket/neogate/internal/config"
	"github.com/GoPolymarket/neogate/internal/model"
	"github.com/GoPolymarket/neogate/internal/pkg/apperrors"
	"github.com/GoPolymarket/neogate/internal/pkg/logger"
	"github.com/GoPolymarket/neogate/internal/pkg/metrics"
	"github.com/shopspring/decimal"
)

type UsageRepo interface {
	GetDailyUsage(ctx context.Context, scope string) (int, decimal.Decimal, error)
	AddDailyUsage(ctx context.Context, scope string, orders int, value decimal.Decimal) error
}

type RiskEngine struct {
	repo       UsageRepo
	limits     config.RiskConfig
	restricted map[string]struct{}
}

func NewRiskEngine(repo UsageRepo, limits config.RiskConfig) *RiskEngine {
	restricted := make(map[string]struct{}, len(limits.RestrictedSymbols))
	for _, s := range limits.RestrictedSymbols {
		restricted[strings.ToUpper(strings.TrimSpace(s))] = struct{}{}
	}
	if limits.Scope == "" {
		limits.Scope = "default"
	}
	return &RiskEngine{repo: repo, limits: limits, restricted: restricted}
}

// CheckOrder 执行下单前的所有风控检查
// 如果返回 error，则必须拒绝订单
func (e *RiskEngine) CheckOrder(ctx context.Context, req model.OrderRequest) error {
	l := e.limits

	// 1. 数量上限 (Fat Finger Check)
	if l.MaxQuantity > 0 && req.Quantity > l.MaxQuantity {
		return reject("max_quantity", "qty %d exceeds limit %d", req.Quantity, l.MaxQuantity)
	}

	// 2. 黑名单 (Restricted Symbols)
	if _, ok := e.restricted[strings.ToUpper(req.Symbol)]; ok {
		return reject("restricted_symbol", "symbol %s is restricted", req.Symbol)
	}

	// 3. 单笔限额 (Max Order Value)，市价单没有价格，无法估值
	value, priced := orderValue(req)
	if l.MaxOrderValue > 0 && priced && value.GreaterThan(decimal.NewFromFloat(l.MaxOrderValue)) {
		return reject("max_value", "order value %s exceeds limit %v", value.StringFixed(2), l.MaxOrderValue)
	}

	// 4. 每日限额 (Daily Limit)
	if (l.MaxDailyOrders > 0 || l.MaxDailyValue > 0) && e.repo != nil {
		orders, volume, err := e.repo.GetDailyUsage(ctx, l.Scope)
		if err != nil {
			// 用量不可知时拒单
			return apperrors.New(apperrors.ErrTransient, "risk usage unavailable", err).WithPhase(apperrors.PhasePlaceOrder)
		}
		if l.MaxDailyOrders > 0 && orders+1 > l.MaxDailyOrders {
			return reject("daily_order_limit", "daily order limit exceeded (curr: %d, max: %d)", orders, l.MaxDailyOrders)
		}
		if l.MaxDailyValue > 0 && priced && volume.Add(value).GreaterThan(decimal.NewFromFloat(l.MaxDailyValue)) {
			return reject("daily_volume_limit", "daily value limit exceeded (curr: %s, new: %s, max: %v)",
				volume.StringFixed(2), value.StringFixed(2), l.MaxDailyValue)
		}
	}
	return nil
}

// RecordOrder counts an order that may be live at the venue: Accepted, or
// Unknown after the request was sent.
func (e *RiskEngine) RecordOrder(ctx context.Context, req model.OrderRequest, result *model.OrderResult) {
	if e.repo == nil || result == nil {
		return
	}
	if !result.IsAccepted() && !(result.IsUnknown() && result.RequestSent) {
		return
	}
	value, _ := orderValue(req)
	if err := e.repo.AddDailyUsage(ctx, e.limits.Scope, 1, value); err != nil {
		logger.Warn("risk usage update failed", "key", req.IdempotencyKey, "error", err)
	}
}

// orderValue is qty times the limit price, or the trigger for SL-M.
func orderValue(req model.OrderRequest) (decimal.Decimal, bool) {
	price := req.LimitPrice
	if price == nil {
		price = req.TriggerPrice
	}
	if price == nil {
		return decimal.Zero, false
	}
	return price.Mul(decimal.NewFromInt(req.Quantity)), true
}

func reject(reason, format string, args ...any) error {
	metrics.RiskRejects.WithLabelValues(reason).Inc()
	return apperrors.Newf(apperrors.ErrRiskRejected, "risk reject: "+format, args...).WithPhase(apperrors.PhasePlaceOrder)
}
