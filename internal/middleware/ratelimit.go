package middleware

import (
	"sync"

	"github.com/GoPolymarket/neogate/internal/pkg/apperrors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per caller.
type RateLimiter struct {
	mu       sync.Mutex
	qps      rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

func NewRateLimiter(qps float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		qps:      rate.Limit(qps),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (r *RateLimiter) limiterFor(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limiters[key]
	if !ok {
		l = rate.NewLimiter(r.qps, r.burst)
		r.limiters[key] = l
	}
	return l
}

func RateLimitMiddleware(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl == nil || rl.qps <= 0 {
			c.Next()
			return
		}
		// 必须在 AuthMiddleware 之后使用
		key := c.GetString(ContextClientKey)
		if key == "" {
			key = c.ClientIP()
		}

		if !rl.limiterFor(key).Allow() {
			c.Header("Retry-After", "1")
			c.Error(apperrors.New(apperrors.ErrRateLimited, "rate limit exceeded", nil))
			c.Abort()
			return
		}
		c.Next()
	}
}
