package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RequestIDHeader is echoed back and attached to every log line of a request.
const RequestIDHeader = "X-Request-Id"

const requestLoggerKey = "request_logger"

// RequestLogger attaches a request-scoped logger and logs one line per request.
func RequestLogger(log *logrus.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := c.GetHeader(RequestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Header(RequestIDHeader, reqID)
		entry := log.WithField("request_id", reqID)
		c.Set(requestLoggerKey, entry)

		c.Next()

		fields := logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
		}
		switch status := c.Writer.Status(); {
		case status >= 500:
			entry.WithFields(fields).Error("request completed")
		case status >= 400:
			entry.WithFields(fields).Warn("request completed")
		default:
			entry.WithFields(fields).Info("request completed")
		}
	}
}

// loggerFrom returns the request-scoped logger, or fallback outside RequestLogger.
func loggerFrom(c *gin.Context, fallback *logrus.Entry) *logrus.Entry {
	if v, ok := c.Get(requestLoggerKey); ok {
		if entry, ok := v.(*logrus.Entry); ok {
			return entry
		}
	}
	return fallback
}
