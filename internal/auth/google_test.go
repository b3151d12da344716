package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateStoreConsumesOnce(t *testing.T) {
	store := newStateStore()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store.put("live", now.Add(time.Minute))
	store.put("stale", now.Add(-time.Second))

	assert.True(t, store.consume("live", now))
	assert.False(t, store.consume("live", now))
	assert.False(t, store.consume("stale", now))
	assert.Empty(t, store.items)
}

func TestAppendToken(t *testing.T) {
	out, err := appendToken("https://app.example.com/auth/done?next=%2Fdocuments", "tok")
	require.NoError(t, err)
	assert.Equal(t, "https://app.example.com/auth/done?next=%2Fdocuments&token=tok", out)

	_, err = appendToken("", "tok")
	assert.Error(t, err)
}

func TestStartRequiresConfiguration(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewGoogleService("", "", "", "", nil).RegisterRoutes(router.Group("/api/v1"))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/auth/google/start", nil))
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.Contains(t, resp.Body.String(), "auth_not_configured")
}

func TestCallbackRejectsUnknownState(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewGoogleService("id", "secret", "https://api.example.com/cb", "https://app.example.com", nil).RegisterRoutes(router.Group("/api/v1"))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/auth/google/callback?state=nope&code=abc", nil))
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/auth/google/start", nil))
	require.Equal(t, http.StatusFound, resp.Code)
	assert.Contains(t, resp.Header().Get("Location"), "accounts.google.com")
}
