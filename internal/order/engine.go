// Package order turns a canonical order request into one venue submission and
// classifies what came back. A logical request keeps its idempotency key and
// payload bytes across every retry.
package order

import (
	"context"
	"errors"
	"time"

	"github.com/GoPolymarket/neogate/internal/broker"
	"github.com/GoPolymarket/neogate/internal/config"
	"github.com/GoPolymarket/neogate/internal/events"
	"github.com/GoPolymarket/neogate/internal/model"
	"github.com/GoPolymarket/neogate/internal/normalize"
	"github.com/GoPolymarket/neogate/internal/pkg/apperrors"
	"github.com/GoPolymarket/neogate/internal/pkg/metrics"
	"github.com/cenkalti/backoff/v4"
	"github.com/go-playground/validator/v10"
)

type Transport interface {
	PlaceOrder(ctx context.Context, req broker.PlaceOrderRequest) (*broker.Response, error)
}

type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Validity       string
	AfterMarket    string
	Source         string
	// RoutingKey is sent when the session does not carry one.
	RoutingKey string
}

func ConfigFrom(o config.OrderConfig, b config.BrokerConfig) Config {
	return Config{
		MaxRetries:     o.MaxRetries,
		InitialBackoff: o.InitialBackoff(),
		MaxBackoff:     o.MaxBackoff(),
		Validity:       b.Validity,
		AfterMarket:    b.AfterMarket,
		Source:         b.OrderSource,
		RoutingKey:     b.RoutingKey,
	}
}

type Engine struct {
	transport Transport
	cfg       Config
	validate  *validator.Validate
	sink      events.Sink
}

func NewEngine(transport Transport, cfg Config, sink events.Sink) *Engine {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}
	if cfg.Validity == "" {
		cfg.Validity = "DAY"
	}
	if cfg.AfterMarket == "" {
		cfg.AfterMarket = "NO"
	}
	if cfg.Source == "" {
		cfg.Source = "NEOTRADEAPI"
	}
	return &Engine{
		transport: transport,
		cfg:       cfg,
		validate:  newValidator(),
		sink:      events.OrDiscard(sink),
	}
}

// Submit normalizes, validates and sends req over session. Validation problems,
// a missing session and cancellation before the first attempt return an error:
// nothing was sent. Everything after the first attempt is reported as a result,
// with Unknown when the venue may or may not have the order.
func (e *Engine) Submit(ctx context.Context, session *model.Session, req model.OrderRequest) (*model.OrderResult, error) {
	req = normalize.Order(req)
	if err := e.Validate(req); err != nil {
		e.sink.Publish(events.New(apperrors.PhasePlaceOrder, events.KindFailed, err.Error()))
		return nil, err
	}
	if session == nil || session.EditToken == "" || session.BaseURL == "" {
		return nil, apperrors.New(apperrors.ErrUnauthorized, "no authenticated session", nil).
			WithPhase(apperrors.PhasePlaceOrder)
	}
	payload, err := e.BuildPayload(req)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, apperrors.New(apperrors.ErrFatal, "canceled before submission, order not placed", err).
			WithPhase(apperrors.PhasePlaceOrder)
	}

	e.sink.Publish(events.New(apperrors.PhasePlaceOrder, events.KindStarted, "Placing order",
		"symbol", req.Symbol, "tt", req.Side, "qty", req.Quantity, "key", req.IdempotencyKey))

	wire := broker.PlaceOrderRequest{
		BaseURL:       session.BaseURL,
		EditToken:     session.EditToken,
		EditSessionID: session.EditSessionID,
		ServerID:      session.ServerID,
		RoutingKey:    session.RoutingKey,
		JData:         payload,
	}
	if wire.RoutingKey == "" {
		wire.RoutingKey = e.cfg.RoutingKey
	}
	result := e.send(ctx, wire)
	result.IdempotencyKey = req.IdempotencyKey

	metrics.OrdersTotal.WithLabelValues(string(result.Outcome), req.Side).Inc()
	e.publishResult(result)
	return result, nil
}

// send performs the attempts. Once a request may be in flight the caller's
// cancellation no longer aborts it; cancellation only stops further retries.
func (e *Engine) send(ctx context.Context, wire broker.PlaceOrderRequest) *model.OrderResult {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.cfg.InitialBackoff
	b.MaxInterval = e.cfg.MaxBackoff
	b.MaxElapsedTime = 0
	b.Reset()

	inflight := context.WithoutCancel(ctx)
	maxAttempts := 1 + e.cfg.MaxRetries

	var (
		sent    bool
		lastErr error
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := e.transport.PlaceOrder(inflight, wire)
		if err == nil {
			result := Classify(resp)
			if sent && result.Outcome != model.OutcomeAccepted {
				result = ambiguous(result)
			}
			result.Attempts = attempt
			result.RequestSent = true
			return result
		}

		lastErr = err
		var te *broker.TransportError
		if !errors.As(err, &te) || te.RequestSent {
			sent = true
		}
		if attempt == maxAttempts {
			break
		}

		wait := b.NextBackOff()
		metrics.Retries.WithLabelValues(apperrors.PhasePlaceOrder).Inc()
		e.sink.Publish(events.New(apperrors.PhasePlaceOrder, events.KindRetry, err.Error(),
			"attempt", attempt+1, "wait", wait.String()))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			result := unresolved(sent, lastErr)
			result.Attempts = attempt
			result.Message = "canceled between attempts: " + result.Message
			return result
		case <-timer.C:
		}
	}

	result := unresolved(sent, lastErr)
	result.Attempts = maxAttempts
	return result
}

// ambiguous downgrades a refusal that followed a possibly delivered attempt.
// The venue may be refusing the retry because the first copy went through.
func ambiguous(r *model.OrderResult) *model.OrderResult {
	msg := "an earlier attempt may have been placed; venue then answered"
	if r.ReasonCode != "" {
		msg += " " + r.ReasonCode
	}
	if r.Message != "" {
		msg += ": " + r.Message
	}
	out := model.Unknown(r.LastHTTPStatus, msg)
	out.Raw = r.Raw
	return out
}

func unresolved(sent bool, err error) *model.OrderResult {
	msg := "no response from venue; the order may have been placed"
	if !sent {
		msg = "request never reached the venue"
	}
	if err != nil {
		msg += ": " + err.Error()
	}
	result := model.Unknown(0, msg)
	result.RequestSent = sent
	return result
}

func (e *Engine) publishResult(r *model.OrderResult) {
	switch r.Outcome {
	case model.OutcomeAccepted:
		e.sink.Publish(events.New(apperrors.PhasePlaceOrder, events.KindSucceeded, "order accepted",
			"order_id", r.VenueOrderID, "attempts", r.Attempts))
	case model.OutcomeRejected:
		e.sink.Publish(events.New(apperrors.PhasePlaceOrder, events.KindFailed, "order rejected: "+r.Message,
			"code", r.ReasonCode, "http", r.LastHTTPStatus))
	default:
		e.sink.Publish(events.New(apperrors.PhasePlaceOrder, events.KindFailed, "outcome unknown: "+r.Message,
			"http", r.LastHTTPStatus, "request_sent", r.RequestSent))
	}
}
