package usage

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEventRequiresKindFields(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"type":"invoice.paid","data":{"customerId":"cus_1"}}`))
	require.NoError(t, err)
	assert.Equal(t, InvoicePaid{CustomerID: "cus_1"}, ev)

	_, err = ParseEvent([]byte(`{"type":"invoice.paid","data":{}}`))
	assert.Error(t, err)
	_, err = ParseEvent([]byte(`{"type":"subscription.activated","data":{"userId":"u","subscriptionId":"s","plan":"free"}}`))
	assert.Error(t, err)
	_, err = ParseEvent([]byte(`{"type":"charge.refunded","data":{}}`))
	assert.Error(t, err)
	_, err = ParseEvent([]byte(`not json`))
	assert.Error(t, err)
}

func TestVerifySignature(t *testing.T) {
	secret := []byte("whsec")
	body := []byte(`{"type":"invoice.paid"}`)
	assert.NoError(t, VerifySignature(secret, body, Sign(secret, body)))
	assert.NoError(t, VerifySignature(secret, body, "sha256="+Sign(secret, body)))
	assert.ErrorIs(t, VerifySignature(secret, body, Sign([]byte("other"), body)), ErrBadSignature)
	assert.ErrorIs(t, VerifySignature(secret, body, "zz"), ErrBadSignature)
}

func TestWebhookHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := NewService(NewMemoryStore(0), nil)
	router := gin.New()
	NewHandler(svc, "whsec").RegisterPublicRoutes(router.Group("/api/v1"))

	body := []byte(`{"type":"subscription.activated","data":{"userId":"owner","subscriptionId":"sub_1","plan":"unlimited"}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/events", bytes.NewReader(body))
	req.Header.Set(SignatureHeader, Sign([]byte("whsec"), body))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	acct, err := svc.store.GetAccount(context.Background(), "owner")
	require.NoError(t, err)
	assert.Equal(t, PlanUnlimited, acct.Plan)
	assert.True(t, acct.Active())

	req = httptest.NewRequest(http.MethodPost, "/api/v1/billing/events", bytes.NewReader(body))
	req.Header.Set(SignatureHeader, "deadbeef")
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusForbidden, resp.Code)
}
