package middleware

import (
	"crypto/subtle"

	"github.com/GoPolymarket/neogate/internal/pkg/apperrors"
	"github.com/gin-gonic/gin"
)

const HeaderAdminKey = "X-Admin-Key"

// AdminMiddleware guards session management and audit reads.
func AdminMiddleware(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminKey == "" {
			c.Error(apperrors.New(apperrors.ErrForbidden, "admin key not configured", nil))
			c.Abort()
			return
		}
		if subtle.ConstantTimeCompare([]byte(c.GetHeader(HeaderAdminKey)), []byte(adminKey)) != 1 {
			c.Error(apperrors.New(apperrors.ErrUnauthorized, "invalid admin key", nil))
			c.Abort()
			return
		}
		c.Next()
	}
}
