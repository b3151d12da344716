package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func authRouter(env string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Auth(env))
	handler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"userId": UserIDFromContext(c)})
	}
	router.GET("/api/v1/documents", handler)
	router.GET("/api/v1/sign/:token", handler)
	router.POST("/api/v1/billing/events", handler)
	router.OPTIONS("/api/v1/documents/current", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return router
}

func serve(router *gin.Engine, method, path string, headers map[string]string) int {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp.Code
}

func TestAuthAllowsOptionsWithoutIdentity(t *testing.T) {
	if code := serve(authRouter("dev"), http.MethodOptions, "/api/v1/documents/current", nil); code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", code)
	}
}

func TestAuthSkipsPublicRoutes(t *testing.T) {
	router := authRouter("production")
	if code := serve(router, http.MethodGet, "/api/v1/sign/abc", nil); code != http.StatusOK {
		t.Fatalf("signing link: expected 200, got %d", code)
	}
	if code := serve(router, http.MethodPost, "/api/v1/billing/events", nil); code != http.StatusOK {
		t.Fatalf("billing events: expected 200, got %d", code)
	}
}

func TestAuthGuestsOnlyInDev(t *testing.T) {
	guest := map[string]string{"X-Guest-Id": "g1"}
	if code := serve(authRouter("dev"), http.MethodGet, "/api/v1/documents", guest); code != http.StatusOK {
		t.Fatalf("dev guest: expected 200, got %d", code)
	}
	if code := serve(authRouter("production"), http.MethodGet, "/api/v1/documents", guest); code != http.StatusUnauthorized {
		t.Fatalf("production guest: expected 401, got %d", code)
	}
}

func TestAuthRejectsMalformedBearer(t *testing.T) {
	router := authRouter("dev")
	if code := serve(router, http.MethodGet, "/api/v1/documents", map[string]string{"Authorization": "Token abc"}); code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
	if code := serve(router, http.MethodGet, "/api/v1/documents", nil); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without identity, got %d", code)
	}
}
