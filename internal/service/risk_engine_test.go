package service

import (
	"context"
	"testing"
	"time"

	"github.com/GoPolymarket/neogate/internal/config"
	"github.com/GoPolymarket/neogate/internal/model"
	"github.com/GoPolymarket/neogate/internal/pkg/apperrors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func priced(qty int64, price string) model.OrderRequest {
	p := decimal.RequireFromString(price)
	return model.OrderRequest{Symbol: "ITBEES-EQ", OrderType: "L", Quantity: qty, LimitPrice: &p, IdempotencyKey: "k"}
}

func TestRiskPerOrderLimits(t *testing.T) {
	e := NewRiskEngine(NewRiskUsageStore(), config.RiskConfig{
		MaxQuantity:       100,
		MaxOrderValue:     1000,
		RestrictedSymbols: []string{" yesbank-eq "},
	})
	ctx := context.Background()

	assert.NoError(t, e.CheckOrder(ctx, priced(10, "99.99")))

	err := e.CheckOrder(ctx, priced(101, "1"))
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrRiskRejected))
	assert.Contains(t, err.Error(), "qty 101")

	err = e.CheckOrder(ctx, priced(11, "100"))
	assert.Contains(t, err.Error(), "order value 1100.00")

	req := priced(1, "1")
	req.Symbol = "YESBANK-EQ"
	assert.Contains(t, e.CheckOrder(ctx, req).Error(), "restricted")

	// market orders cannot be valued
	mkt := model.OrderRequest{Symbol: "ITBEES-EQ", OrderType: "MKT", Quantity: 50}
	assert.NoError(t, e.CheckOrder(ctx, mkt))
}

func TestRiskDailyLimits(t *testing.T) {
	store := NewRiskUsageStore()
	e := NewRiskEngine(store, config.RiskConfig{MaxDailyOrders: 2, MaxDailyValue: 500})
	ctx := context.Background()

	req := priced(2, "100")
	require.NoError(t, e.CheckOrder(ctx, req))
	e.RecordOrder(ctx, req, model.Accepted("1"))

	// a rejection is not counted
	e.RecordOrder(ctx, req, model.Rejected("X", "no"))
	// an order that may be live is
	e.RecordOrder(ctx, req, &model.OrderResult{Outcome: model.OutcomeUnknown, RequestSent: true})

	orders, volume, err := store.GetDailyUsage(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, 2, orders)
	assert.True(t, decimal.NewFromInt(400).Equal(volume))

	err = e.CheckOrder(ctx, priced(1, "1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "daily order limit")
}

func TestRiskDailyValue(t *testing.T) {
	e := NewRiskEngine(NewRiskUsageStore(), config.RiskConfig{MaxDailyValue: 500})
	ctx := context.Background()

	e.RecordOrder(ctx, priced(4, "100"), model.Accepted("1"))
	err := e.CheckOrder(ctx, priced(2, "100"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "daily value limit")
	assert.NoError(t, e.CheckOrder(ctx, priced(1, "100")))
}

func TestUsageStoreRollsOverDaily(t *testing.T) {
	store := NewRiskUsageStore()
	day := time.Date(2025, 1, 2, 23, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return day }
	ctx := context.Background()

	require.NoError(t, store.AddDailyUsage(ctx, "acct", 3, decimal.NewFromInt(10)))
	day = day.Add(2 * time.Hour)
	orders, volume, _ := store.GetDailyUsage(ctx, "acct")
	assert.Equal(t, 0, orders)
	assert.True(t, volume.IsZero())
}

type stubRisk struct {
	err      error
	recorded []*model.OrderResult
}

func (s *stubRisk) CheckOrder(context.Context, model.OrderRequest) error { return s.err }

func (s *stubRisk) RecordOrder(_ context.Context, _ model.OrderRequest, r *model.OrderResult) {
	s.recorded = append(s.recorded, r)
}

func TestTradingServiceRiskGate(t *testing.T) {
	sessions := &mockSessions{}
	engine := &mockEngine{}

	blocked := &stubRisk{err: apperrors.Newf(apperrors.ErrRiskRejected, "risk reject: nope")}
	svc := NewTradingService(sessions, engine).WithRisk(blocked)
	_, err := svc.PlaceOrder(context.Background(), request)
	assert.True(t, apperrors.IsType(err, apperrors.ErrRiskRejected))
	engine.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything, mock.Anything)

	open := &stubRisk{}
	sessions.On("Session", mock.Anything).Return(oldSession, nil)
	engine.On("Submit", mock.Anything, oldSession, request).Return(model.Accepted("9"), nil)
	svc = NewTradingService(sessions, engine).WithRisk(open)

	res, err := svc.PlaceOrder(context.Background(), request)
	require.NoError(t, err)
	assert.True(t, res.IsAccepted())
	require.Len(t, open.recorded, 1)
	assert.Same(t, res, open.recorded[0])
}
