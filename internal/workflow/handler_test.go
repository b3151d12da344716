package workflow

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(f *fixture, userID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	api := router.Group("/api/v1")
	h := NewHandler(f.svc)
	h.RegisterSigningRoutes(api)
	authed := api.Group("")
	authed.Use(func(c *gin.Context) {
		c.Set("userId", userID)
		c.Next()
	})
	h.RegisterRoutes(authed)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandlerRequestAndSigningFlow(t *testing.T) {
	f := newFixture(t, 1)
	router := newTestRouter(f, ownerID)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/documents/doc-1/requests", map[string]any{
		"signers": []map[string]string{{"email": "alice@example.com", "name": "Alice"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		RequestID string `json:"requestId"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.RequestID)

	invites := f.notifier.msgs
	require.Len(t, invites, 1)
	token := invites[0].Link[len("https://sign.example.com/sign/"):]

	rec = doJSON(t, router, http.MethodGet, "/api/v1/sign/"+token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"documentTitle":"Lease"`)
	assert.Contains(t, rec.Body.String(), `"pageNumber":1`)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/sign/"+token+"/document", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))

	rec = doJSON(t, router, http.MethodPost, "/api/v1/sign/"+token, map[string]any{
		"signerName": "Alice",
		"signerDate": "2024-05-01",
		"values":     values(),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"completed":true`)

	rec = doJSON(t, router, http.MethodPost, "/api/v1/sign/"+token, map[string]any{
		"signerName": "Alice",
		"values":     values(),
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "already_signed")
}

func TestHandlerDeletedRequestIsGone(t *testing.T) {
	f := newFixture(t, 1)
	router := newTestRouter(f, ownerID)
	req := f.request(t, 1)

	rec := doJSON(t, router, http.MethodDelete, "/api/v1/requests/"+req.RequestID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/sign/"+req.Signatures[0].Token, nil)
	assert.Equal(t, http.StatusGone, rec.Code)
	assert.Contains(t, rec.Body.String(), "request_deleted")
}

func TestHandlerRejectsMalformedBodies(t *testing.T) {
	f := newFixture(t, 1)
	router := newTestRouter(f, ownerID)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/doc-1/requests", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/v1/documents/doc-1/finalize", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}
