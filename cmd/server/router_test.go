package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/GoPolymarket/neogate/internal/config"
	"github.com/GoPolymarket/neogate/internal/middleware"
	"github.com/GoPolymarket/neogate/internal/model"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTrading struct {
	mu     sync.Mutex
	orders int
}

func (f *fakeTrading) PlaceOrder(_ context.Context, req model.OrderRequest) (*model.OrderResult, error) {
	f.mu.Lock()
	f.orders++
	f.mu.Unlock()
	r := model.Accepted("1001")
	r.IdempotencyKey = req.IdempotencyKey
	return r, nil
}

func (f *fakeTrading) SessionStatus() model.SessionStatus { return model.SessionStatus{} }

func (f *fakeTrading) Login(context.Context) (model.SessionStatus, error) {
	return model.SessionStatus{Authenticated: true}, nil
}

func (f *fakeTrading) Logout(context.Context) error { return nil }

type memAudit struct {
	mu   sync.Mutex
	logs []*model.AuditLog
}

func (m *memAudit) Log(entry *model.AuditLog) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, entry)
}

func (m *memAudit) List(_ context.Context, filter model.AuditFilter) ([]*model.AuditLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.AuditLog
	for _, l := range m.logs {
		if filter.Match(l) {
			out = append(out, l)
		}
	}
	return out, nil
}

func testRouter(t *testing.T, mutate func(*config.Config)) (*gin.Engine, *fakeTrading, *memAudit) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := config.Default()
	cfg.Server.APIKey = "gw-key"
	cfg.Server.AdminKey = "admin-key"
	if mutate != nil {
		mutate(cfg)
	}
	trading := &fakeTrading{}
	audit := &memAudit{}
	r := newRouter(cfg, routerDeps{
		trading:     trading,
		audit:       audit,
		idempotency: middleware.NewInMemIdempotencyStore(time.Hour),
		rateLimiter: middleware.NewRateLimiter(100, 100),
	})
	return r, trading, audit
}

func do(r http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

const orderBody = `{"segment":"nse_cm","symbol":"ITBEES-EQ","tt":"B","order":"MKT","qty":1}`

func TestHealthIsOpen(t *testing.T) {
	r, _, _ := testRouter(t, nil)
	rec := do(r, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "neogate")
}

func TestOrdersRequireGatewayKey(t *testing.T) {
	r, trading, _ := testRouter(t, nil)
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodPost, "/v1/orders", orderBody, nil).Code)
	assert.Equal(t, 0, trading.orders)
}

func TestOrderIsIdempotentAndAudited(t *testing.T) {
	r, trading, audit := testRouter(t, nil)
	headers := map[string]string{
		middleware.HeaderGatewayKey:     "gw-key",
		middleware.HeaderIdempotencyKey: "order-1",
	}

	first := do(r, http.MethodPost, "/v1/orders", orderBody, headers)
	second := do(r, http.MethodPost, "/v1/orders", orderBody, headers)

	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get(middleware.HeaderReplayed))
	assert.Equal(t, 1, trading.orders)

	logs, err := audit.List(context.Background(), model.AuditFilter{IdempotencyKey: "order-1"})
	require.NoError(t, err)
	assert.Len(t, logs, 2)
	assert.Equal(t, "accepted", logs[0].Context["outcome"])
}

func TestSessionAdminRoutes(t *testing.T) {
	r, _, _ := testRouter(t, nil)
	gw := map[string]string{middleware.HeaderGatewayKey: "gw-key"}
	admin := map[string]string{middleware.HeaderGatewayKey: "gw-key", middleware.HeaderAdminKey: "admin-key"}

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/v1/session", "", gw).Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodPost, "/v1/session", "", gw).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/v1/session", "", admin).Code)
	assert.Equal(t, http.StatusNoContent, do(r, http.MethodDelete, "/v1/session", "", admin).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/v1/audit", "", admin).Code)
}

func TestReadOnlyBlocksOrders(t *testing.T) {
	r, trading, _ := testRouter(t, func(c *config.Config) { c.Server.ReadOnly = true })
	gw := map[string]string{middleware.HeaderGatewayKey: "gw-key"}

	assert.Equal(t, http.StatusForbidden, do(r, http.MethodPost, "/v1/orders", orderBody, gw).Code)
	assert.Equal(t, 0, trading.orders)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/v1/session", "", gw).Code)
}
