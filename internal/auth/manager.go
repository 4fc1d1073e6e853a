package auth

import (
	"context"
	"time"

	"github.com/GoPolymarket/neogate/internal/credentials"
	"github.com/GoPolymarket/neogate/internal/model"
	"github.com/GoPolymarket/neogate/internal/pkg/logger"
)

// Source produces a fresh authenticated session. *Authenticator is one.
type Source interface {
	Authenticate(ctx context.Context, creds model.Credentials) (*model.Session, error)
}

// SessionCache persists a session between runs. Load returns (nil, nil) when
// nothing is cached.
type SessionCache interface {
	Load(ctx context.Context) (*model.Session, error)
	Store(ctx context.Context, s *model.Session, ttl time.Duration) error
	Clear(ctx context.Context) error
}

// Manager owns the current session. Establishing or refreshing it is single-writer:
// concurrent callers that find the session expired wait for one refresh instead
// of racing their own handshakes.
type Manager struct {
	source Source
	store  credentials.Store
	cache  SessionCache
	ttl    time.Duration

	// 1-slot semaphore so waiting honours ctx
	sem     chan struct{}
	current *model.Session
}

func NewManager(source Source, store credentials.Store, cache SessionCache, ttl time.Duration) *Manager {
	return &Manager{
		source: source,
		store:  store,
		cache:  cache,
		ttl:    ttl,
		sem:    make(chan struct{}, 1),
	}
}

func (m *Manager) lock(ctx context.Context) error {
	select {
	case m.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) unlock() { <-m.sem }

// Session returns the current session, authenticating if there is none.
func (m *Manager) Session(ctx context.Context) (*model.Session, error) {
	if err := m.lock(ctx); err != nil {
		return nil, err
	}
	defer m.unlock()

	if m.current != nil {
		return m.current, nil
	}
	if m.cache != nil {
		cached, err := m.cache.Load(ctx)
		if err != nil {
			logger.Warn("session cache load failed", "error", err)
		} else if cached != nil {
			m.current = cached
			return cached, nil
		}
	}
	return m.establish(ctx)
}

// Refresh replaces stale with a new session. If another caller already
// refreshed it, the newer session is returned without a handshake.
func (m *Manager) Refresh(ctx context.Context, stale *model.Session) (*model.Session, error) {
	if err := m.lock(ctx); err != nil {
		return nil, err
	}
	defer m.unlock()

	if m.current != nil && !sameSession(m.current, stale) {
		return m.current, nil
	}
	m.drop(ctx)
	return m.establish(ctx)
}

// Invalidate forgets the current session, cached copy included.
func (m *Manager) Invalidate(ctx context.Context) error {
	if err := m.lock(ctx); err != nil {
		return err
	}
	defer m.unlock()
	m.drop(ctx)
	return nil
}

// Current returns the held session without authenticating. Nil when none.
func (m *Manager) Current() *model.Session {
	select {
	case m.sem <- struct{}{}:
		defer m.unlock()
		return m.current
	default:
		// a handshake is in flight; report no session rather than block
		return nil
	}
}

func (m *Manager) establish(ctx context.Context) (*model.Session, error) {
	creds, err := m.store.Credentials()
	if err != nil {
		return nil, err
	}
	s, err := m.source.Authenticate(ctx, creds)
	if err != nil {
		return nil, err
	}
	m.current = s
	if m.cache != nil {
		if err := m.cache.Store(ctx, s, m.ttl); err != nil {
			logger.Warn("session cache store failed", "error", err)
		}
	}
	return s, nil
}

func (m *Manager) drop(ctx context.Context) {
	m.current = nil
	if m.cache != nil {
		if err := m.cache.Clear(ctx); err != nil {
			logger.Warn("session cache clear failed", "error", err)
		}
	}
}

func sameSession(a, b *model.Session) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.EditToken == b.EditToken && a.EditSessionID == b.EditSessionID
}
