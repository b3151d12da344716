package main

// Build the Lambda handler binary:
//   GOOS=linux GOARCH=arm64 CGO_ENABLED=0 go build -o bootstrap ./cmd/lambda-http

import (
	"context"
	"net/http"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"

	"esign-backend/internal/bootstrap"
	"esign-backend/internal/shared/config"
	"esign-backend/internal/shared/telemetry"
)

const bootstrapFailedBody = `{"error":{"code":"internal","message":"bootstrap failed"}}`

// proxy builds the router on the first invocation and reuses it while the
// execution environment stays warm.
type proxy struct {
	build func() (*gin.Engine, error)

	once    sync.Once
	err     error
	adapter *ginadapter.GinLambdaV2
}

func (p *proxy) handle(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	p.once.Do(func() {
		router, err := p.build()
		if err != nil {
			p.err = err
			return
		}
		p.adapter = ginadapter.NewV2(router)
	})
	if p.err != nil {
		telemetry.Error("lambda_http.bootstrap_failed", map[string]any{"error": p.err})
		return events.APIGatewayV2HTTPResponse{
			StatusCode: http.StatusInternalServerError,
			Body:       bootstrapFailedBody,
			Headers:    map[string]string{"Content-Type": "application/json"},
		}, nil
	}
	return p.adapter.ProxyWithContext(ctx, req)
}

func buildRouter() (*gin.Engine, error) {
	app, err := bootstrap.Build(config.Load())
	if err != nil {
		return nil, err
	}
	return app.Router, nil
}

func main() {
	defer telemetry.Sync()
	p := &proxy{build: buildRouter}
	lambda.Start(p.handle)
}
