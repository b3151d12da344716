package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"esign-backend/internal/shared/server/respond"
	"esign-backend/internal/shared/telemetry"
)

// Recovery turns a handler panic into a 500 error envelope. The document and
// signature request handled at the time are logged with the stack.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			telemetry.Error("http.panic", map[string]any{
				"request_id":     RequestIDFromContext(c),
				"panic":          rec,
				"stack":          string(debug.Stack()),
				"path":           c.Request.URL.Path,
				"method":         c.Request.Method,
				"document_id":    c.GetString("documentId"),
				"sig_request_id": c.GetString("signatureRequestId"),
			})
			if c.Writer.Written() {
				c.Abort()
				return
			}
			respond.Error(c, http.StatusInternalServerError, "internal", "unexpected server error", nil)
		}()
		c.Next()
	}
}
