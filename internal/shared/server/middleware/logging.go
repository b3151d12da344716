package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"esign-backend/internal/shared/telemetry"
)

const signPathPrefix = "/api/v1/sign/"

// Logging emits a structured log per request, at warn for 4xx and error for 5xx.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.EqualFold(c.Request.Method, "OPTIONS") {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()
		reqID := RequestIDFromContext(c)

		userID, _ := c.Get(userIDKey)
		isGuest, _ := c.Get("isGuest")
		documentID, _ := c.Get("documentId")
		signatureRequestID, _ := c.Get("signatureRequestId")
		statusTransition := ""
		if raw, ok := c.Get("statusTransition"); ok {
			if s, ok := raw.(string); ok {
				statusTransition = s
			}
		}

		fields := map[string]any{
			"request_id":        reqID,
			"method":            c.Request.Method,
			"path":              c.Request.URL.Path,
			"route":             c.FullPath(),
			"status":            status,
			"status_transition": statusTransition,
			"duration_ms":       float64(latency.Microseconds()) / 1000.0,
			"user_id":           userID,
			"document_id":       documentID,
			"sig_request_id":    signatureRequestID,
			"is_guest":          isGuest,
			"client_ip":         c.ClientIP(),
			"user_agent":        c.Request.UserAgent(),
		}
		// Signing links carry the bearer token in the path; log the route instead.
		if strings.HasPrefix(c.Request.URL.Path, signPathPrefix) {
			fields["path"] = signPathPrefix + ":token"
		}
		switch {
		case status >= 500:
			telemetry.Error("request.complete", fields)
		case status >= 400:
			telemetry.Warn("request.complete", fields)
		default:
			telemetry.Info("request.complete", fields)
		}
	}
}
