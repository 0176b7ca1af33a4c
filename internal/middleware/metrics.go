package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/edupanel/edupanel-api/internal/service"
)

// unmatchedPath labels requests that hit no registered route. Using the raw
// URL here would let arbitrary clients mint new label values.
const unmatchedPath = "<unmatched>"

// Metrics observes every request with the route template as the path label,
// keeping label cardinality bounded by the route table.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = unmatchedPath
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
