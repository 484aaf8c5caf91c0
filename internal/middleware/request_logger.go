package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/caspianpress/stylebridge-backend/internal/logger"
)

// RequestLogger logs one line per request with latency and status. Health
// probes are skipped to keep the log readable.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	requestLog := log.With("component", "http")
	return func(c *gin.Context) {
		if c.FullPath() == "/healthcheck" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		fields := []interface{}{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "errors", c.Errors.String())
		}

		switch {
		case c.Writer.Status() >= 500:
			requestLog.Error("request completed", fields...)
		case c.Writer.Status() >= 400:
			requestLog.Warn("request completed", fields...)
		default:
			requestLog.Info("request completed", fields...)
		}
	}
}
