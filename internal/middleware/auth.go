package middleware

import (
	"crypto/subtle"

	"github.com/GoPolymarket/neogate/internal/pkg/apperrors"
	"github.com/gin-gonic/gin"
)

const (
	HeaderGatewayKey = "X-Gateway-Key"
	ContextClientKey = "client"
)

// AuthMiddleware 校验网关 API Key。apiKey 为空时不校验（仅限本机部署）。
func AuthMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" {
			c.Set(ContextClientKey, c.ClientIP())
			c.Next()
			return
		}

		got := c.GetHeader(HeaderGatewayKey)
		if got == "" {
			c.Error(apperrors.New(apperrors.ErrUnauthorized, "missing API key", nil))
			c.Abort()
			return
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(apiKey)) != 1 {
			c.Error(apperrors.New(apperrors.ErrUnauthorized, "invalid API key", nil))
			c.Abort()
			return
		}

		// 单一 API Key，所有持有者共享一个限流桶
		c.Set(ContextClientKey, "api-key")
		c.Next()
	}
}
