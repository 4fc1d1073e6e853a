// Package auth drives the two-phase TOTP handshake and owns the resulting session.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GoPolymarket/neogate/internal/broker"
	"github.com/GoPolymarket/neogate/internal/config"
	"github.com/GoPolymarket/neogate/internal/events"
	"github.com/GoPolymarket/neogate/internal/model"
	"github.com/GoPolymarket/neogate/internal/otp"
	"github.com/GoPolymarket/neogate/internal/pkg/apperrors"
	"github.com/GoPolymarket/neogate/internal/pkg/metrics"
	"github.com/cenkalti/backoff/v4"
)

// ChallengeTTL is how long the upstream is assumed to honour a challenge token.
const ChallengeTTL = 120 * time.Second

var (
	// ErrOTPMismatch marks a login rejection caused by the one-time code.
	ErrOTPMismatch = errors.New("otp rejected")
	// ErrChallengeExpired marks a validate rejection that needs a fresh login.
	ErrChallengeExpired = errors.New("challenge token expired")
	// ErrChallengeConsumed is returned when a challenge token is presented twice.
	ErrChallengeConsumed = errors.New("challenge token already used")
)

type State int

const (
	Unauthenticated State = iota
	Challenged
	Authenticated
	Failed
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Challenged:
		return "challenged"
	case Authenticated:
		return "authenticated"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Transport is the part of the broker client the handshake needs.
type Transport interface {
	TOTPLogin(ctx context.Context, req broker.LoginRequest) (*broker.Response, error)
	TOTPValidate(ctx context.Context, req broker.ValidateRequest) (*broker.Response, error)
}

type Config struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	OTPMarkers     []string
	ExpiryMarkers  []string
}

func ConfigFrom(c config.AuthConfig) Config {
	return Config{
		MaxAttempts:    c.MaxAttempts,
		InitialBackoff: c.InitialBackoff(),
		MaxBackoff:     c.MaxBackoff(),
		OTPMarkers:     c.OTPErrorMarkers,
		ExpiryMarkers:  c.ChallengeExpiries,
	}
}

// ChallengeToken is the phase 1 result. It is good for exactly one validate call.
type ChallengeToken struct {
	Token     string
	SessionID string
	IssuedAt  time.Time

	creds    model.Credentials
	consumed atomic.Bool
}

func (t *ChallengeToken) Consumed() bool {
	return t.consumed.Load()
}

func (t *ChallengeToken) Expired(now time.Time) bool {
	return now.Sub(t.IssuedAt) > ChallengeTTL
}

// Authenticator runs the handshake state machine:
// Unauthenticated -> Challenged -> Authenticated, or Failed(reason).
type Authenticator struct {
	transport Transport
	otp       *otp.Generator
	cfg       Config
	sink      events.Sink
	clock     func() time.Time

	mu     sync.Mutex
	state  State
	reason error
}

func NewAuthenticator(transport Transport, gen *otp.Generator, cfg Config, sink events.Sink) *Authenticator {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}
	if gen == nil {
		gen = otp.NewGenerator(otp.DefaultPeriod, 6)
	}
	return &Authenticator{
		transport: transport,
		otp:       gen,
		cfg:       cfg,
		sink:      events.OrDiscard(sink),
		clock:     time.Now,
	}
}

// State returns the current state and, when Failed, the reason.
func (a *Authenticator) State() (State, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state, a.reason
}

func (a *Authenticator) transition(s State, reason error) {
	a.mu.Lock()
	a.state, a.reason = s, reason
	a.mu.Unlock()
}

// Login runs phase 1. Transient failures are retried with backoff; each retry
// uses a freshly generated code since the previous one may have been spent.
func (a *Authenticator) Login(ctx context.Context, creds model.Credentials, code otp.Code) (*ChallengeToken, error) {
	return a.login(ctx, creds, code, a.otp.Now)
}

// login regenerates retry codes with regen, so a skewed handshake stays skewed.
func (a *Authenticator) login(ctx context.Context, creds model.Credentials, code otp.Code, regen func(secret string) (otp.Code, error)) (*ChallengeToken, error) {
	a.transition(Unauthenticated, nil)
	a.sink.Publish(events.New(apperrors.PhaseLogin, events.KindStarted, "TOTP login"))

	attempt := 0
	var challenge *ChallengeToken
	op := func() error {
		attempt++
		if attempt > 1 {
			fresh, err := regen(creds.SharedSecret)
			if err != nil {
				return backoff.Permanent(err)
			}
			code = fresh
		}
		resp, err := a.transport.TOTPLogin(ctx, broker.LoginRequest{
			IdentityKey:  creds.IdentityKey,
			RoutingKey:   creds.RoutingKey,
			MobileNumber: creds.MobileNumber,
			AccountID:    creds.AccountID,
			OTP:          code.Value,
		})
		challenge, err = a.classifyLogin(resp, err)
		metrics.AuthAttempts.WithLabelValues(apperrors.PhaseLogin, resultLabel(err)).Inc()
		if err != nil && !apperrors.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	err := a.retry(ctx, apperrors.PhaseLogin, op)
	if err != nil {
		a.fail(apperrors.PhaseLogin, err)
		return nil, err
	}
	challenge.creds = creds
	challenge.IssuedAt = a.clock()
	a.transition(Challenged, nil)
	a.sink.Publish(events.New(apperrors.PhaseLogin, events.KindSucceeded, "challenge issued"))
	return challenge, nil
}

// Validate runs phase 2 and consumes challenge whatever the outcome. The call
// is retried only while the request provably never left the client; after that
// a fresh login is required.
func (a *Authenticator) Validate(ctx context.Context, challenge *ChallengeToken, pin string) (*model.Session, error) {
	if challenge == nil {
		return nil, apperrors.New(apperrors.ErrFatal, "no challenge token", nil).WithPhase(apperrors.PhaseValidate)
	}
	if !challenge.consumed.CompareAndSwap(false, true) {
		err := apperrors.New(apperrors.ErrFatal, "cannot validate", ErrChallengeConsumed).WithPhase(apperrors.PhaseValidate)
		a.fail(apperrors.PhaseValidate, err)
		return nil, err
	}
	a.sink.Publish(events.New(apperrors.PhaseValidate, events.KindStarted, "MPIN validate"))

	if challenge.Expired(a.clock()) {
		err := apperrors.New(apperrors.ErrAuthRejected, "challenge token is older than its lifetime", ErrChallengeExpired).
			WithPhase(apperrors.PhaseValidate)
		a.fail(apperrors.PhaseValidate, err)
		return nil, err
	}

	var session *model.Session
	op := func() error {
		resp, err := a.transport.TOTPValidate(ctx, broker.ValidateRequest{
			IdentityKey: challenge.creds.IdentityKey,
			RoutingKey:  challenge.creds.RoutingKey,
			SessionID:   challenge.SessionID,
			Token:       challenge.Token,
			PIN:         pin,
		})
		var te *broker.TransportError
		unsent := errors.As(err, &te) && !te.RequestSent
		session, err = a.classifyValidate(resp, err)
		metrics.AuthAttempts.WithLabelValues(apperrors.PhaseValidate, resultLabel(err)).Inc()
		if err != nil && !unsent {
			return backoff.Permanent(err)
		}
		return err
	}

	err := a.retry(ctx, apperrors.PhaseValidate, op)
	if err != nil {
		a.fail(apperrors.PhaseValidate, err)
		return nil, err
	}
	session.IssuedAt = a.clock()
	session.RoutingKey = challenge.creds.RoutingKey
	a.transition(Authenticated, nil)
	a.sink.Publish(events.New(apperrors.PhaseValidate, events.KindSucceeded, "session established",
		"base_url", session.BaseURL, "server_id", session.ServerID))
	return session, nil
}

// Authenticate runs complete handshakes until one yields a session. An OTP
// rejection gets one retry with a code from the neighbouring time step; an
// expired or unreachable challenge restarts from login.
func (a *Authenticator) Authenticate(ctx context.Context, creds model.Credentials) (*model.Session, error) {
	skewed := false
	var last error
	for handshake := 1; handshake <= a.cfg.MaxAttempts; handshake++ {
		code, err := a.otp.Now(creds.SharedSecret)
		if err != nil {
			a.fail(apperrors.PhaseOTP, err)
			return nil, err
		}
		challenge, err := a.Login(ctx, creds, code)
		if err != nil && errors.Is(err, ErrOTPMismatch) && !skewed {
			skewed = true
			a.sink.Publish(events.New(apperrors.PhaseLogin, events.KindRetry, "code rejected, trying adjacent time step"))
			code, err = a.otp.Skewed(creds.SharedSecret)
			if err != nil {
				return nil, err
			}
			challenge, err = a.login(ctx, creds, code, a.otp.Skewed)
		}
		if err != nil {
			return nil, err
		}

		session, err := a.Validate(ctx, challenge, creds.PIN)
		if err == nil {
			return session, nil
		}
		if !errors.Is(err, ErrChallengeExpired) && !apperrors.IsType(err, apperrors.ErrTransient) {
			return nil, err
		}
		last = err
		if ctx.Err() != nil {
			break
		}
		a.sink.Publish(events.New(apperrors.PhaseLogin, events.KindRetry, "challenge unusable, logging in again",
			"handshake", handshake+1))
	}
	err := apperrors.New(apperrors.ErrFatal, "authentication did not complete", last).WithPhase(apperrors.PhaseValidate)
	a.fail(apperrors.PhaseValidate, err)
	return nil, err
}

// retry runs op under exponential backoff bounded by MaxAttempts. Exhausted
// transient failures become Fatal: nothing was ordered, so it is safe to stop.
func (a *Authenticator) retry(ctx context.Context, phase string, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = a.cfg.InitialBackoff
	b.MaxInterval = a.cfg.MaxBackoff
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(a.cfg.MaxAttempts-1)), ctx)

	attempt := 1
	err := backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		attempt++
		metrics.Retries.WithLabelValues(phase).Inc()
		a.sink.Publish(events.New(phase, events.KindRetry, err.Error(), "attempt", attempt, "wait", wait.String()))
	})
	if err == nil {
		return nil
	}
	if apperrors.TypeOf(err) == "" {
		// context cancellation surfaces bare
		return apperrors.New(apperrors.ErrFatal, "handshake aborted", err).WithPhase(phase)
	}
	if apperrors.Retryable(err) && phase == apperrors.PhaseLogin {
		exhausted := apperrors.New(apperrors.ErrFatal, fmt.Sprintf("giving up after %d attempts", attempt), err).
			WithPhase(phase)
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			exhausted.UpstreamStatus = appErr.UpstreamStatus
			exhausted.Body = appErr.Body
		}
		return exhausted
	}
	return err
}

func (a *Authenticator) fail(phase string, err error) {
	a.transition(Failed, err)
	a.sink.Publish(events.New(phase, events.KindFailed, err.Error()))
}

func (a *Authenticator) classifyLogin(resp *broker.Response, err error) (*ChallengeToken, error) {
	data, err := a.envelope(apperrors.PhaseLogin, resp, err)
	if err != nil {
		return nil, err
	}
	token, okToken := broker.Lookup(data, "token")
	sid, okSID := broker.Lookup(data, "sid")
	if !okToken || !okSID {
		return nil, apperrors.New(apperrors.ErrFatal, "login response missing token or sid", nil).
			WithPhase(apperrors.PhaseLogin).WithUpstream(resp.StatusCode, resp.Body)
	}
	return &ChallengeToken{Token: token, SessionID: sid}, nil
}

func (a *Authenticator) classifyValidate(resp *broker.Response, err error) (*model.Session, error) {
	data, err := a.envelope(apperrors.PhaseValidate, resp, err)
	if err != nil {
		return nil, err
	}
	token, okToken := broker.Lookup(data, "token")
	sid, okSID := broker.Lookup(data, "sid")
	baseURL, okBase := broker.Lookup(data, "baseUrl", "base_url")
	if !okToken || !okSID || !okBase {
		return nil, apperrors.New(apperrors.ErrFatal, "validate response missing token, sid or baseUrl", nil).
			WithPhase(apperrors.PhaseValidate).WithUpstream(resp.StatusCode, resp.Body)
	}
	serverID, _ := broker.Lookup(data, broker.ServerIDKeys...)
	return &model.Session{
		EditToken:     token,
		EditSessionID: sid,
		ServerID:      serverID,
		BaseURL:       baseURL,
	}, nil
}

// envelope maps a raw exchange onto the error taxonomy and returns the data object.
func (a *Authenticator) envelope(phase string, resp *broker.Response, err error) (map[string]any, error) {
	if err != nil {
		return nil, apperrors.New(apperrors.ErrTransient, "upstream unreachable", err).WithPhase(phase)
	}
	body, decodeErr := broker.Decode(resp.Body)
	if resp.StatusCode >= 500 || resp.StatusCode == 429 {
		return nil, apperrors.New(apperrors.ErrTransient, "upstream unavailable", nil).
			WithPhase(phase).WithUpstream(resp.StatusCode, resp.Body)
	}
	if !resp.OK() {
		_, msg := broker.Describe(body)
		return nil, a.rejection(phase, msg, resp)
	}
	if decodeErr != nil {
		return nil, apperrors.New(apperrors.ErrFatal, "malformed response", decodeErr).
			WithPhase(phase).WithUpstream(resp.StatusCode, resp.Body)
	}
	data := broker.Data(body)
	if data == nil {
		if _, msg := broker.Describe(body); msg != "" {
			return nil, a.rejection(phase, msg, resp)
		}
		return nil, apperrors.New(apperrors.ErrFatal, "response has no data object", nil).
			WithPhase(phase).WithUpstream(resp.StatusCode, resp.Body)
	}
	if status := broker.Status(body); status != "" && !broker.IsSuccess(body) {
		_, msg := broker.Describe(body)
		if msg == "" {
			msg = "status " + status
		}
		return nil, a.rejection(phase, msg, resp)
	}
	return data, nil
}

func (a *Authenticator) rejection(phase, msg string, resp *broker.Response) error {
	if msg == "" {
		msg = "rejected"
	}
	var cause error
	switch {
	case phase == apperrors.PhaseLogin && containsAny(msg, a.cfg.OTPMarkers):
		cause = ErrOTPMismatch
	case phase == apperrors.PhaseValidate && containsAny(msg, a.cfg.ExpiryMarkers):
		cause = ErrChallengeExpired
	}
	return apperrors.New(apperrors.ErrAuthRejected, msg, cause).WithPhase(phase).WithUpstream(resp.StatusCode, resp.Body)
}

func containsAny(s string, markers []string) bool {
	s = strings.ToLower(s)
	for _, m := range markers {
		if m != "" && strings.Contains(s, strings.ToLower(m)) {
			return true
		}
	}
	return false
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return strings.ToLower(string(apperrors.TypeOf(err)))
}
