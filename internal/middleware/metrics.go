package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/advance-api/internal/service"
)

const unmatchedRoute = "unmatched"

// Metrics records method, route template and status for every request except
// the Prometheus scrape itself. Unrouted paths share one label so probes
// against random URLs cannot blow up series cardinality.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil || c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = unmatchedRoute
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
