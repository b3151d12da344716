package respond

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"esign-backend/internal/shared/apperr"
)

func TestPDFSetsDisposition(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		inline bool
		want   string
	}{
		{true, "inline; filename=contract.pdf"},
		{false, "attachment; filename=contract.pdf"},
	}
	for _, tc := range cases {
		resp := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(resp)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

		PDF(c, strings.NewReader("%PDF-1.4"), "contract.pdf", tc.inline)

		assert.Equal(t, http.StatusOK, resp.Code)
		assert.Equal(t, "application/pdf", resp.Header().Get("Content-Type"))
		assert.Equal(t, tc.want, resp.Header().Get("Content-Disposition"))
		assert.Equal(t, "%PDF-1.4", resp.Body.String())
	}
}

func TestErrMapsDomainErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	resp := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(resp)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	Err(c, fieldErrors{"signers": "expected 2"})

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Contains(t, resp.Body.String(), `"signers":"expected 2"`)
}

type fieldErrors map[string]string

func (f fieldErrors) Error() string              { return "invalid fields" }
func (f fieldErrors) Unwrap() error              { return apperr.ErrValidation }
func (f fieldErrors) Details() map[string]string { return f }
