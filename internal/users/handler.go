package users

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"esign-backend/internal/shared/apperr"
	"esign-backend/internal/shared/server/middleware"
	"esign-backend/internal/shared/server/respond"
)

var errLoginRequired = apperr.New(apperr.ErrForbidden, "login_required", "sign in with Google to manage a profile")

type Handler struct {
	Svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/me", h.me)
}

func (h *Handler) me(c *gin.Context) {
	if guest, _ := c.Get("isGuest"); guest == true {
		respond.Err(c, errLoginRequired)
		return
	}
	user, err := h.Svc.GetByID(c.Request.Context(), middleware.UserIDFromContext(c))
	if err != nil {
		respond.Err(c, err)
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{
		"id":          user.ID,
		"email":       user.Email,
		"displayName": user.DisplayName(),
		"pictureUrl":  user.PictureURL,
	})
}
