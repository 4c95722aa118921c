package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/msgcore/msgcore-sub001/internal/telemetry"
)

// MetricsMiddleware returns a Gin handler that records two Prometheus metrics for every
// request that passes through the router.
//
// Recorded metrics:
//   - http_requests_total{method, path, status}
//   - http_request_duration_seconds{method, path}
//
// The path label is set from c.FullPath(), the matched route template
// (e.g. /api/v1/projects/:projectId/messages) rather than the raw URL, so project and
// message ids never become label values. Unmatched requests use "<no-route>".
//
// Register it after gin.Recovery() and RequestIDMiddleware so statuses written by guards
// and error handlers are captured.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "<no-route>"
		}

		method := c.Request.Method
		telemetry.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		telemetry.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}
