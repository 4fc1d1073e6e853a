package auth

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GoPolymarket/neogate/internal/credentials"
	"github.com/GoPolymarket/neogate/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	calls atomic.Int32
	delay time.Duration
}

func (s *countingSource) Authenticate(ctx context.Context, _ model.Credentials) (*model.Session, error) {
	n := s.calls.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return &model.Session{
		EditToken:     fmt.Sprintf("token-%d", n),
		EditSessionID: fmt.Sprintf("sid-%d", n),
		BaseURL:       "https://cis.example.com",
		IssuedAt:      time.Now(),
	}, nil
}

type memoryCache struct {
	mu      sync.Mutex
	session *model.Session
	stores  int
	clears  int
}

func (c *memoryCache) Load(context.Context) (*model.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session, nil
}

func (c *memoryCache) Store(_ context.Context, s *model.Session, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = s
	c.stores++
	return nil
}

func (c *memoryCache) Clear(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = nil
	c.clears++
	return nil
}

func TestManagerAuthenticatesOnce(t *testing.T) {
	src := &countingSource{}
	m := NewManager(src, credentials.Static(testCreds), nil, time.Hour)
	assert.Nil(t, m.Current())

	s1, err := m.Session(context.Background())
	require.NoError(t, err)
	s2, err := m.Session(context.Background())
	require.NoError(t, err)

	assert.Same(t, s1, s2)
	assert.Equal(t, int32(1), src.calls.Load())
	assert.Same(t, s1, m.Current())
}

func TestManagerConcurrentRefreshIsSingleWriter(t *testing.T) {
	src := &countingSource{delay: 20 * time.Millisecond}
	m := NewManager(src, credentials.Static(testCreds), nil, time.Hour)

	stale, err := m.Session(context.Background())
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]*model.Session, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := m.Refresh(context.Background(), stale)
			assert.NoError(t, err)
			results[i] = s
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(2), src.calls.Load())
	for _, s := range results {
		assert.Equal(t, "token-2", s.EditToken)
	}
}

func TestManagerInvalidate(t *testing.T) {
	src := &countingSource{}
	cache := &memoryCache{}
	m := NewManager(src, credentials.Static(testCreds), cache, time.Hour)

	_, err := m.Session(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, cache.stores)

	require.NoError(t, m.Invalidate(context.Background()))
	assert.Nil(t, m.Current())
	assert.Equal(t, 1, cache.clears)

	s, err := m.Session(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-2", s.EditToken)
}

func TestManagerUsesCachedSession(t *testing.T) {
	src := &countingSource{}
	cache := &memoryCache{session: &model.Session{EditToken: "cached", EditSessionID: "sid", BaseURL: "https://x"}}
	m := NewManager(src, credentials.Static(testCreds), cache, time.Hour)

	s, err := m.Session(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cached", s.EditToken)
	assert.Zero(t, src.calls.Load())
}

func TestManagerHonoursContextWhileWaiting(t *testing.T) {
	src := &countingSource{delay: 200 * time.Millisecond}
	m := NewManager(src, credentials.Static(testCreds), nil, time.Hour)

	go func() { _, _ = m.Session(context.Background()) }()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := m.Session(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
