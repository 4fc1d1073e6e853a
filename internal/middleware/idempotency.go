package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/GoPolymarket/neogate/internal/pkg/apperrors"
	"github.com/GoPolymarket/neogate/internal/pkg/logger"
	"github.com/gin-gonic/gin"
)

const (
	HeaderIdempotencyKey = "X-Idempotency-Key"
	HeaderReplayed       = "X-Idempotent-Replay"

	// ContextRetrySafe is set by handlers when nothing reached the venue, so the
	// same key may be tried again instead of replaying the stored response.
	ContextRetrySafe = "idempotency_retry_safe"
)

type IdempotencyRecord struct {
	Status     int
	Body       []byte
	CreatedAt  time.Time
	Processing bool // 正在处理中，用于防止并发竞争
}

type IdempotencyStore interface {
	// GetOrLock returns (record, true) if the key exists; (nil, false) if the
	// caller now holds the lock.
	GetOrLock(ctx context.Context, key string) (*IdempotencyRecord, bool, error)
	Save(ctx context.Context, key string, status int, body []byte) error
	Unlock(ctx context.Context, key string) error
}

// InMemIdempotencyStore 单进程使用；多实例部署请用 Redis 或 Postgres
type InMemIdempotencyStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	records map[string]*IdempotencyRecord
}

func NewInMemIdempotencyStore(ttl time.Duration) *InMemIdempotencyStore {
	return &InMemIdempotencyStore{
		ttl:     ttl,
		records: make(map[string]*IdempotencyRecord),
	}
}

// GetOrLock 尝试获取记录。如果不存在，则锁定并返回 nil（表示你是第一个）。
func (s *InMemIdempotencyStore) GetOrLock(_ context.Context, key string) (*IdempotencyRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[key]; ok {
		if s.ttl <= 0 || time.Since(rec.CreatedAt) < s.ttl {
			return rec, true, nil
		}
		delete(s.records, key)
	}

	s.records[key] = &IdempotencyRecord{
		Processing: true,
		CreatedAt:  time.Now(),
	}
	return nil, false, nil
}

func (s *InMemIdempotencyStore) Save(_ context.Context, key string, status int, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[key] = &IdempotencyRecord{
		Status:     status,
		Body:       body,
		CreatedAt:  time.Now(),
		Processing: false,
	}
	return nil
}

func (s *InMemIdempotencyStore) Unlock(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}

// IdempotencyMiddleware 幂等性中间件。
// A finished request is replayed byte for byte. An Unknown order outcome is
// stored like any other, so a client retry cannot become a second submission.
func IdempotencyMiddleware(store IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" || store == nil {
			c.Next()
			return
		}
		if len(key) > 64 {
			c.Error(apperrors.NewValidation("X-Idempotency-Key longer than 64 characters"))
			c.Abort()
			return
		}
		ctx := c.Request.Context()

		record, hit, err := store.GetOrLock(ctx, key)
		if err != nil {
			// 存储不可用时拒绝下单，避免重复
			c.Error(apperrors.New(apperrors.ErrTransient, "idempotency store unavailable", err))
			c.Abort()
			return
		}
		if hit {
			if record.Processing {
				c.Error(apperrors.New(apperrors.ErrConflict, "request with this idempotency key is in progress", nil))
				c.Abort()
				return
			}
			c.Header(HeaderReplayed, "true")
			c.Data(record.Status, "application/json; charset=utf-8", record.Body)
			c.Abort()
			return
		}

		w := &responseBodyWriter{ResponseWriter: c.Writer}
		c.Writer = w

		c.Next()

		// 使用独立 context：客户端断开也要落盘结果
		storeCtx := context.WithoutCancel(ctx)
		// handler 通过 c.Error 失败时尚未写响应，也未触达券商
		failedEarly := len(c.Errors) > 0 && !c.Writer.Written()
		if c.GetBool(ContextRetrySafe) || failedEarly {
			if err := store.Unlock(storeCtx, key); err != nil {
				logger.Warn("idempotency unlock failed", "key", key, "error", err)
			}
			return
		}
		if err := store.Save(storeCtx, key, c.Writer.Status(), w.body); err != nil {
			logger.Error("idempotency save failed", "key", key, "error", err)
		}
	}
}

type responseBodyWriter struct {
	gin.ResponseWriter
	body []byte
}

func (w *responseBodyWriter) Write(b []byte) (int, error) {
	w.body = append(w.body, b...)
	return w.ResponseWriter.Write(b)
}
