package middleware

import (
	"log/slog"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/janovincze/commentsync/internal/api/models"
)

// Recovery turns a handler panic into a problem+json 500.
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("panic recovered",
					"error", err,
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
					"request_id", c.GetString(RequestIDKey),
					"stack", string(debug.Stack()),
				)

				models.RespondWithError(c, models.NewInternalError(
					c.Request.URL.Path,
					"An unexpected error occurred",
				))
				c.Abort()
			}
		}()

		c.Next()
	}
}
