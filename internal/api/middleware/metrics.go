package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/janovincze/commentsync/internal/metrics"
)

// Metrics records request count and latency per route template.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		// Route templates keep label cardinality bounded.
		path := c.FullPath()
		if path == "" {
			path = "/not_found"
		}
		method := c.Request.Method

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		metrics.APIRequestsTotal.WithLabelValues(path, method, status).Inc()
		metrics.APIRequestDuration.WithLabelValues(path, method).Observe(time.Since(start).Seconds())
	}
}
