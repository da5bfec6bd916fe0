package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"

	apperrors "papertrade/internal/errors"
	"papertrade/internal/logger"
)

const (
	errorFieldsKey = "errorFields"

	// retryAfterSeconds is advertised with retryable errors. Lock waits and
	// quote fetches are bounded by a few seconds, so clients back off briefly.
	retryAfterSeconds = "1"
)

// WithErrorField adds a top-level field to the error response rendered by
// ErrorHandler, e.g. the REJECTED trade a failed MARKET order left behind.
func WithErrorField(c *gin.Context, key string, value any) {
	fields, _ := c.Get(errorFieldsKey)
	m, ok := fields.(gin.H)
	if !ok {
		m = gin.H{}
		c.Set(errorFieldsKey, m)
	}
	m[key] = value
}

// ErrorHandler renders the last error attached to the context with c.Error.
// AppErrors keep their code and message. Retryable ones (a busy portfolio or
// missing market data) also get a Retry-After header and "retryable": true.
// Anything else is logged and reported as an internal error.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err

		log := logger.For("http").With(
			"request_id", c.GetString(requestIDKey),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
		)

		var appErr *apperrors.AppError
		if !errors.As(err, &appErr) {
			log.Errorw("unexpected error", "error", err.Error())
			appErr = apperrors.ErrInternalServer
		} else if appErr.Internal != nil {
			log.Warnw("request failed",
				"code", appErr.Code,
				"internal", appErr.Internal.Error(),
			)
		}

		detail := gin.H{
			"code":    appErr.Code,
			"message": appErr.Message,
		}
		if appErr.Retryable {
			c.Header("Retry-After", retryAfterSeconds)
			detail["retryable"] = true
		}

		body := gin.H{"error": detail}
		if fields, ok := c.Get(errorFieldsKey); ok {
			for k, v := range fields.(gin.H) {
				body[k] = v
			}
		}
		c.JSON(appErr.StatusCode, body)
	}
}
