package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/clearance-api/internal/service"
)

// unmatchedRoute is the path label for requests that matched no route.
const unmatchedRoute = "unmatched"

// Metrics observes every request against its route template (/me/documents/:id,
// not the concrete id). Scrapes of the metrics endpoint itself are skipped.
func Metrics(metrics *service.MetricsService, skip ...string) gin.HandlerFunc {
	skipped := make(map[string]struct{}, len(skip))
	for _, p := range skip {
		skipped[p] = struct{}{}
	}
	return func(c *gin.Context) {
		if metrics == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		if _, ok := skipped[route]; ok {
			return
		}
		metrics.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
