package respond

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"esign-backend/internal/shared/apperr"
	"esign-backend/internal/shared/telemetry"
)

// ErrorBody defines the standardized error object.
type ErrorBody struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// ErrorResponse wraps the error body.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// Error sends a standardized error response.
func Error(c *gin.Context, status int, code, message string, details interface{}) {
	fields := map[string]any{
		"status":     status,
		"code":       code,
		"message":    message,
		"path":       routePath(c),
		"method":     c.Request.Method,
		"request_id": c.GetString("requestId"),
	}
	if userID := c.GetString("userId"); userID != "" {
		fields["user_id"] = userID
	}
	if isGuest, ok := c.Get("isGuest"); ok {
		fields["is_guest"] = isGuest
	}
	telemetry.Error("http.error", fields)

	c.AbortWithStatusJSON(status, ErrorResponse{
		Error: ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// Err maps a domain error to its status and code and sends it. Internal
// failures are logged with the cause and answered with a generic message.
func Err(c *gin.Context, err error) {
	status, code := apperr.Status(err)
	if status == http.StatusInternalServerError {
		telemetry.Error("http.internal_error", map[string]any{
			"path":       routePath(c),
			"request_id": c.GetString("requestId"),
			"error":      err,
		})
		Error(c, status, code, "internal error", nil)
		return
	}
	var details any
	var fieldErr interface{ Details() map[string]string }
	if errors.As(err, &fieldErr) {
		details = fieldErr.Details()
	}
	Error(c, status, code, err.Error(), details)
}

// routePath prefers the route template so path parameters such as signing
// tokens stay out of logs.
func routePath(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return c.Request.URL.Path
}
