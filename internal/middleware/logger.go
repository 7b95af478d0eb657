package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"tms/internal/logger"
)

// RequestLogger logs every request after it has been handled.
func RequestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if path == "" {
			path = "/"
		}

		c.Next()

		status := c.Writer.Status()
		fields := map[string]any{
			"method":     c.Request.Method,
			"path":       path,
			"status":     status,
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
		}
		if op := OperatorFrom(c); op.ID != "" {
			fields["operator_id"] = op.ID
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.String()
		}

		if status >= 500 {
			log.Warnw("request failed", fields)
			return
		}
		log.Infow("request", fields)
	}
}
