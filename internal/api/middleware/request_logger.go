package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

func RequestLogger(l *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		reqID := c.GetHeader("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Header("X-Request-Id", reqID)
		c.Set("request_id", reqID)

		c.Next()

		status := c.Writer.Status()
		fields := logrus.Fields{
			"request_id": reqID,
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"status":     status,
			"latency_ms": time.Since(start).Milliseconds(),
			"ip":         c.ClientIP(),
		}
		if v, ok := c.Get("user_id"); ok {
			fields["user_id"] = v
		}
		if id := c.Param("session_id"); id != "" {
			fields["session_id"] = id
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.String()
		}
		entry := l.WithFields(fields)

		switch {
		case status >= 500:
			entry.Error("request")
		case status >= 400:
			entry.Warn("request")
		case c.FullPath() == "/ping":
			entry.Debug("request")
		default:
			entry.Info("request")
		}
	}
}
