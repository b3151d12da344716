package documents

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"esign-backend/internal/regions"
	"esign-backend/internal/shared/apperr"
	"esign-backend/internal/shared/server/middleware"
	"esign-backend/internal/shared/server/respond"
)

// multipartOverhead leaves room for form boundaries around the file part.
const multipartOverhead = 1 << 20

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches document routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/documents", h.upload)
	rg.GET("/documents", h.list)
	rg.GET("/documents/:id", h.get)
	rg.DELETE("/documents/:id", h.delete)
	rg.PUT("/documents/:id/regions", h.replaceLayout)
	rg.GET("/documents/:id/download", h.download)
}

func (h *Handler) upload(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	limit := h.Svc.MaxUploadBytes
	if limit <= 0 {
		limit = DefaultMaxUploadBytes
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+multipartOverhead)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respond.Err(c, ErrUploadTooLarge)
			return
		}
		respond.Err(c, apperr.Validation("file is required"))
		return
	}
	if fileHeader.Size > limit {
		respond.Err(c, ErrUploadTooLarge)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respond.Err(c, apperr.Validation("unable to read file"))
		return
	}
	defer file.Close()

	doc, err := h.Svc.Upload(c.Request.Context(), userID, UploadInput{
		Title:    c.PostForm("title"),
		FileName: fileHeader.Filename,
		Body:     file,
	})
	if err != nil {
		respond.Err(c, err)
		return
	}
	respond.Created(c, toResponse(doc))
}

func (h *Handler) list(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	items, err := h.Svc.List(c.Request.Context(), userID, limit, offset)
	if err != nil {
		respond.Err(c, err)
		return
	}
	resp := listResponse{Items: make([]documentResponse, 0, len(items)), Limit: limit, Offset: offset}
	for _, d := range items {
		resp.Items = append(resp.Items, toDetailResponse(d))
	}
	respond.OK(c, resp)
}

func (h *Handler) get(c *gin.Context) {
	detail, err := h.Svc.Get(c.Request.Context(), middleware.UserIDFromContext(c), c.Param("id"))
	if err != nil {
		respond.Err(c, err)
		return
	}
	respond.OK(c, toDetailResponse(detail))
}

func (h *Handler) delete(c *gin.Context) {
	if err := h.Svc.Delete(c.Request.Context(), middleware.UserIDFromContext(c), c.Param("id")); err != nil {
		respond.Err(c, err)
		return
	}
	respond.NoContent(c)
}

func (h *Handler) replaceLayout(c *gin.Context) {
	var req layoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Err(c, apperr.Validation("invalid request body"))
		return
	}
	rs := make([]regions.Region, 0, len(req.Regions))
	for _, r := range req.Regions {
		rs = append(rs, r.toRegion())
	}
	detail, err := h.Svc.ReplaceLayout(c.Request.Context(), middleware.UserIDFromContext(c), c.Param("id"), req.NumberOfSigners, rs)
	if err != nil {
		respond.Err(c, err)
		return
	}
	respond.OK(c, toDetailResponse(detail))
}

func (h *Handler) download(c *gin.Context) {
	rc, name, err := h.Svc.Download(c.Request.Context(), middleware.UserIDFromContext(c), c.Param("id"), c.Query("variant"))
	if err != nil {
		respond.Err(c, err)
		return
	}
	defer rc.Close()
	respond.PDF(c, rc, name, false)
}
