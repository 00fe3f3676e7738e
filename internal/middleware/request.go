package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/response"
)

const (
	HeaderRequestID  = "X-Request-ID"
	contextKeyLogger = "logger"
	maxRequestIDLen  = 64
)

// RequestContext tags every request with an id and a request-scoped logger,
// and writes one access line when the handler returns. For the attempt
// stream that line marks the end of the connection.
func RequestContext(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(HeaderRequestID)
		if reqID == "" || len(reqID) > maxRequestIDLen {
			reqID = uuid.NewString()
		}
		c.Set(response.ContextKeyRequestID, reqID)
		c.Header(HeaderRequestID, reqID)

		reqLog := log.With().Str("request_id", reqID).Logger()
		c.Set(contextKeyLogger, reqLog)

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		ev := reqLog.Info()
		switch {
		case status >= 500:
			ev = reqLog.Error()
		case status >= 400:
			ev = reqLog.Warn()
		}
		if s, ok := StudentFrom(c); ok {
			ev = ev.Int("student_id", s.ID)
		}
		ev.Str("method", c.Request.Method).
			Str("route", c.FullPath()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Msg("Request served")
	}
}

// Logger returns the request-scoped logger, or fallback outside
// RequestContext.
func Logger(c *gin.Context, fallback zerolog.Logger) zerolog.Logger {
	if val, ok := c.Get(contextKeyLogger); ok {
		if l, ok := val.(zerolog.Logger); ok {
			return l
		}
	}
	return fallback
}
