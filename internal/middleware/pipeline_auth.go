package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "papertrade/internal/errors"
	"papertrade/internal/logger"
)

// PipelineAuthMiddleware guards the pipeline routes (price ingestion,
// trigger scans and scheduled snapshots) with the X-API-Key header.
// apiKeys is the PIPELINE_API_KEY value: one key, or a comma-separated list
// while a key is being rotated. Errors are rendered by ErrorHandler.
func PipelineAuthMiddleware(apiKeys string) gin.HandlerFunc {
	var keys [][]byte
	for _, k := range strings.Split(apiKeys, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, []byte(k))
		}
	}

	return func(c *gin.Context) {
		if len(keys) == 0 {
			abortWithError(c, apperrors.ErrPipelineNotConfigured)
			return
		}

		presented := []byte(c.GetHeader("X-API-Key"))
		matched := 0
		for _, k := range keys {
			// Compare against every key so timing does not reveal which matched.
			matched |= subtle.ConstantTimeCompare(presented, k)
		}
		if matched != 1 {
			logger.For("pipeline").Warnw("rejected pipeline request",
				"path", c.Request.URL.Path, "client_ip", c.ClientIP())
			abortWithError(c, apperrors.ErrInvalidAPIKey)
			return
		}
		c.Next()
	}
}

// abortWithError stops the chain and leaves err for ErrorHandler.
func abortWithError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}
