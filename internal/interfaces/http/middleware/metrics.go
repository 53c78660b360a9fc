package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/molbayes/internal/infrastructure/monitoring/prometheus"
)

// Metrics records every request against its route template.  Requests that
// match no route are labelled "unmatched".
func Metrics(m *prometheus.HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.RecordHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start), c.Writer.Size())
	}
}
