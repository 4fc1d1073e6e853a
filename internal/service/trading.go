package service

import (
	"context"
	"time"

	"github.com/GoPolymarket/neogate/internal/model"
	"github.com/GoPolymarket/neogate/internal/pkg/apperrors"
	"github.com/GoPolymarket/neogate/internal/pkg/logger"
)

// SessionProvider 由 auth.Manager 实现
type SessionProvider interface {
	Session(ctx context.Context) (*model.Session, error)
	Refresh(ctx context.Context, stale *model.Session) (*model.Session, error)
	Invalidate(ctx context.Context) error
	Current() *model.Session
}

// OrderSubmitter 由 order.Engine 实现
type OrderSubmitter interface {
	Submit(ctx context.Context, session *model.Session, req model.OrderRequest) (*model.OrderResult, error)
}

// RiskChecker 由 RiskEngine 实现
type RiskChecker interface {
	CheckOrder(ctx context.Context, req model.OrderRequest) error
	RecordOrder(ctx context.Context, req model.OrderRequest, result *model.OrderResult)
}

// TradingService ties the session owner to the order engine. It is what the CLI
// and the gateway call.
type TradingService struct {
	sessions SessionProvider
	engine   OrderSubmitter
	risk     RiskChecker
	now      func() time.Time
}

func NewTradingService(sessions SessionProvider, engine OrderSubmitter) *TradingService {
	return &TradingService{sessions: sessions, engine: engine, now: time.Now}
}

// WithRisk enables pre-trade checks. Nil disables them.
func (s *TradingService) WithRisk(r RiskChecker) *TradingService {
	s.risk = r
	return s
}

// PlaceOrder submits req under the current session. When the venue refuses the
// session (401/403), the session is refreshed once and the same request, same
// idempotency key included, is submitted again: the first attempt was refused,
// so the second cannot duplicate it.
func (s *TradingService) PlaceOrder(ctx context.Context, req model.OrderRequest) (*model.OrderResult, error) {
	if s.risk != nil {
		if err := s.risk.CheckOrder(ctx, req); err != nil {
			return nil, err
		}
	}
	result, err := s.placeOrder(ctx, req)
	if s.risk != nil && err == nil {
		s.risk.RecordOrder(context.WithoutCancel(ctx), req, result)
	}
	return result, err
}

func (s *TradingService) placeOrder(ctx context.Context, req model.OrderRequest) (*model.OrderResult, error) {
	session, err := s.sessions.Session(ctx)
	if err != nil {
		return nil, err
	}

	result, err := s.engine.Submit(ctx, session, req)
	if err != nil || !result.SessionExpired {
		return result, err
	}

	logger.Warn("session refused by venue, re-authenticating", "key", req.IdempotencyKey, "http", result.LastHTTPStatus)
	fresh, err := s.sessions.Refresh(ctx, session)
	if err != nil {
		// the first refusal is the order outcome; the refresh failure explains why we stopped
		logger.LogError(ctx, err, "session refresh failed")
		return result, nil
	}
	retried, err := s.engine.Submit(ctx, fresh, req)
	if err != nil {
		return result, err
	}
	retried.Attempts += result.Attempts
	return retried, nil
}

// SessionStatus reports the held session without authenticating.
func (s *TradingService) SessionStatus() model.SessionStatus {
	cur := s.sessions.Current()
	if cur == nil {
		return model.SessionStatus{}
	}
	return model.SessionStatus{
		Authenticated: true,
		BaseURL:       cur.BaseURL,
		ServerID:      cur.ServerID,
		IssuedAt:      cur.IssuedAt,
		AgeSeconds:    int64(s.now().Sub(cur.IssuedAt).Seconds()),
	}
}

// Login establishes a session if none is held.
func (s *TradingService) Login(ctx context.Context) (model.SessionStatus, error) {
	if _, err := s.sessions.Session(ctx); err != nil {
		return model.SessionStatus{}, err
	}
	return s.SessionStatus(), nil
}

// Logout drops the session locally. The venue has no logout call in this flow.
func (s *TradingService) Logout(ctx context.Context) error {
	if err := s.sessions.Invalidate(ctx); err != nil {
		return apperrors.Wrap(err)
	}
	return nil
}
