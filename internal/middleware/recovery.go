package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/lanehq/lanehq/internal/telemetry"
)

// RecoveryMiddleware turns a handler panic into a 500, logs the stack and
// reports the panic to error tracking.
func RecoveryMiddleware(logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				requestID, _ := c.Get(RequestIDKey)
				logger.Error("recovered panic in handler",
					"path", c.FullPath(), "request_id", requestID, "panic", r, "stack", string(debug.Stack()))
				telemetry.CaptureError(fmt.Errorf("panic in %s %s: %v", c.Request.Method, c.FullPath(), r), "http")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			}
		}()
		c.Next()
	}
}
