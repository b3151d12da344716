package usage

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"esign-backend/internal/shared/apperr"
	"esign-backend/internal/shared/server/middleware"
	"esign-backend/internal/shared/server/respond"
)

// SignatureHeader carries the hex HMAC-SHA256 of a webhook body.
const SignatureHeader = "X-Billing-Signature"

const maxEventBytes = 64 << 10

// Handler exposes billing endpoints.
type Handler struct {
	Svc           *Service
	WebhookSecret string
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, webhookSecret string) *Handler {
	return &Handler{Svc: svc, WebhookSecret: webhookSecret}
}

// RegisterRoutes attaches authenticated billing routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/billing/usage", h.getUsage)
	rg.PUT("/billing/plan", h.selectPlan)
}

// RegisterPublicRoutes attaches the provider webhook.
func (h *Handler) RegisterPublicRoutes(rg *gin.RouterGroup) {
	rg.POST("/billing/events", h.events)
}

func (h *Handler) getUsage(c *gin.Context) {
	stats, err := h.Svc.Stats(c.Request.Context(), middleware.UserIDFromContext(c))
	if err != nil {
		respond.Err(c, err)
		return
	}
	respond.OK(c, stats)
}

type selectPlanRequest struct {
	Plan Plan `json:"plan"`
}

func (h *Handler) selectPlan(c *gin.Context) {
	var req selectPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Err(c, apperr.Validation("invalid request body"))
		return
	}
	acct, err := h.Svc.SelectPlan(c.Request.Context(), middleware.UserIDFromContext(c), req.Plan)
	if err != nil {
		respond.Err(c, err)
		return
	}
	respond.OK(c, acct)
}

func (h *Handler) events(c *gin.Context) {
	if h.WebhookSecret == "" {
		respond.Error(c, http.StatusServiceUnavailable, "billing_disabled", "billing webhook is not configured", nil)
		return
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxEventBytes))
	if err != nil {
		respond.Err(c, apperr.Validation("unable to read body"))
		return
	}
	if err := VerifySignature([]byte(h.WebhookSecret), body, c.GetHeader(SignatureHeader)); err != nil {
		respond.Err(c, err)
		return
	}
	ev, err := ParseEvent(body)
	if err != nil {
		respond.Err(c, err)
		return
	}
	if err := h.Svc.ApplyEvent(c.Request.Context(), ev); err != nil {
		respond.Err(c, err)
		return
	}
	respond.OK(c, gin.H{"received": true})
}
