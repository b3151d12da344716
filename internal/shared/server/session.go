package server

import (
	"github.com/gin-gonic/gin"

	"esign-backend/internal/shared/server/middleware"
	"esign-backend/internal/shared/server/respond"
)

// session reports who the caller is according to the auth middleware, so the
// UI can tell a guest from a signed-in owner without a user lookup.
func session(c *gin.Context) {
	guest, _ := c.Get("isGuest")
	body := gin.H{
		"userId":  middleware.UserIDFromContext(c),
		"isGuest": guest == true,
	}
	if email := middleware.UserEmailFromContext(c); email != "" {
		body["email"] = email
	}
	if name := middleware.UserNameFromContext(c); name != "" {
		body["name"] = name
	}
	if picture := middleware.UserPictureFromContext(c); picture != "" {
		body["picture"] = picture
	}
	respond.OK(c, body)
}
