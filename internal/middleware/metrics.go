package middleware

import (
	"strconv"
	"time"

	"github.com/GoPolymarket/neogate/internal/pkg/metrics"
	"github.com/gin-gonic/gin"
)

// MetricsMiddleware records latency and a request count per route. Unmatched
// paths share one label so scanners cannot blow up cardinality.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.LatencyBucket.WithLabelValues(path).Observe(time.Since(start).Seconds())
		metrics.RequestsTotal.WithLabelValues(path, c.Request.Method, strconv.Itoa(c.Writer.Status()/100)+"xx").Inc()
	}
}
