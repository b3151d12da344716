package workflow

import (
	"bytes"

	"github.com/gin-gonic/gin"

	"esign-backend/internal/shared/apperr"
	"esign-backend/internal/shared/server/middleware"
	"esign-backend/internal/shared/server/respond"
	"esign-backend/internal/signing"
)

// Handler exposes request management to owners and the signing page to
// invitees.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches owner routes. The group must be authenticated.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/documents/:id/requests", h.createRequest)
	rg.POST("/documents/:id/finalize", h.retryFinalize)
	rg.DELETE("/requests/:requestId", h.deleteRequest)
}

// RegisterSigningRoutes attaches the token-addressed routes. The token is the
// only credential, so the group must not require a session.
func (h *Handler) RegisterSigningRoutes(rg *gin.RouterGroup) {
	rg.GET("/sign/:token", h.lookup)
	rg.GET("/sign/:token/document", h.document)
	rg.POST("/sign/:token", h.submit)
}

type createRequestBody struct {
	Signers  []signing.Signer `json:"signers"`
	SelfSign *SelfSign        `json:"selfSign"`
}

type submitBody struct {
	SignerName string         `json:"signerName"`
	SignerDate string         `json:"signerDate"`
	Values     signing.Values `json:"values"`
}

func (h *Handler) createRequest(c *gin.Context) {
	c.Set("documentId", c.Param("id"))
	var body createRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respond.Err(c, apperr.Validation("invalid request body"))
		return
	}
	res, err := h.Svc.CreateRequest(c.Request.Context(), middleware.UserIDFromContext(c), CreateRequestInput{
		DocumentID: c.Param("id"),
		Signers:    body.Signers,
		SelfSign:   body.SelfSign,
	})
	if err != nil {
		respond.Err(c, err)
		return
	}
	c.Set("signatureRequestId", res.RequestID)
	c.Set("statusTransition", "draft->"+string(res.Document.Status))
	respond.Created(c, res)
}

func (h *Handler) retryFinalize(c *gin.Context) {
	c.Set("documentId", c.Param("id"))
	doc, err := h.Svc.RetryFinalize(c.Request.Context(), middleware.UserIDFromContext(c), c.Param("id"))
	if err != nil {
		respond.Err(c, err)
		return
	}
	respond.OK(c, gin.H{"documentId": doc.ID, "status": doc.Status, "hasFinal": doc.HasFinal()})
}

func (h *Handler) deleteRequest(c *gin.Context) {
	c.Set("signatureRequestId", c.Param("requestId"))
	if err := h.Svc.DeleteRequest(c.Request.Context(), middleware.UserIDFromContext(c), c.Param("requestId")); err != nil {
		respond.Err(c, err)
		return
	}
	respond.NoContent(c)
}

func (h *Handler) lookup(c *gin.Context) {
	view, err := h.Svc.Lookup(c.Request.Context(), c.Param("token"))
	if err != nil {
		respond.Err(c, err)
		return
	}
	respond.OK(c, view)
}

func (h *Handler) document(c *gin.Context) {
	data, name, err := h.Svc.OpenDocument(c.Request.Context(), c.Param("token"))
	if err != nil {
		respond.Err(c, err)
		return
	}
	respond.PDF(c, bytes.NewReader(data), name, true)
}

func (h *Handler) submit(c *gin.Context) {
	var body submitBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respond.Err(c, apperr.Validation("invalid request body"))
		return
	}
	res, err := h.Svc.SubmitSignature(c.Request.Context(), c.Param("token"), SubmitInput{
		SignerName: body.SignerName,
		SignerDate: body.SignerDate,
		Values:     body.Values,
	})
	if err != nil {
		respond.Err(c, err)
		return
	}
	c.Set("documentId", res.Signature.DocumentID)
	c.Set("signatureRequestId", res.Signature.RequestID)
	if res.Completed {
		c.Set("statusTransition", "sent->completed")
	}
	respond.OK(c, res)
}
