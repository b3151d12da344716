package main

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signingRequest(path string) events.APIGatewayV2HTTPRequest {
	return events.APIGatewayV2HTTPRequest{
		Version:  "2.0",
		RawPath:  path,
		Headers:  map[string]string{"content-type": "application/json"},
		RouteKey: "$default",
		RequestContext: events.APIGatewayV2HTTPRequestContext{
			HTTP: events.APIGatewayV2HTTPRequestContextHTTPDescription{Method: http.MethodGet, Path: path},
		},
	}
}

func TestProxyBuildsOnceAndServes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	builds := 0
	p := &proxy{build: func() (*gin.Engine, error) {
		builds++
		r := gin.New()
		r.GET("/api/v1/sign/:token", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"token": c.Param("token")})
		})
		return r, nil
	}}

	for i := 0; i < 2; i++ {
		resp, err := p.handle(context.Background(), signingRequest("/api/v1/sign/tok-1"))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.JSONEq(t, `{"token":"tok-1"}`, resp.Body)
	}
	assert.Equal(t, 1, builds)
}

func TestProxyReportsBootstrapFailure(t *testing.T) {
	p := &proxy{build: func() (*gin.Engine, error) { return nil, errors.New("no database") }}

	resp, err := p.handle(context.Background(), signingRequest("/api/v1/health"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, bootstrapFailedBody, resp.Body)
}
