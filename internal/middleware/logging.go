package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"papertrade/internal/logger"
	"papertrade/internal/uuid"
)

const requestIDKey = "requestID"

// RequestLogging logs one line per request. An incoming X-Request-ID is kept
// when it is a UUID so pipeline runs can be traced across their calls;
// otherwise a new one is issued. The authenticated user, the portfolio in
// the path and the error code are added when present.
func RequestLogging() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader("X-Request-ID")
		if !uuid.IsValid(requestID) {
			requestID = uuid.New()
		}
		c.Set(requestIDKey, requestID)
		c.Writer.Header().Set("X-Request-ID", requestID)

		c.Next()

		fields := []any{
			"request_id", requestID,
			"method", c.Request.Method,
			"route", c.FullPath(),
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if userID := c.GetString("userID"); userID != "" {
			fields = append(fields, "user_id", userID)
		}
		if portfolioID := c.Param("id"); portfolioID != "" {
			fields = append(fields, "portfolio_id", portfolioID)
		}
		if last := c.Errors.Last(); last != nil {
			fields = append(fields, "error", last.Error())
		}

		log := logger.For("http")
		if c.Writer.Status() >= 500 {
			log.Warnw("request", fields...)
			return
		}
		log.Infow("request", fields...)
	}
}
