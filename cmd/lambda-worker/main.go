package main

// Build the Lambda handler binary:
//   GOOS=linux GOARCH=arm64 CGO_ENABLED=0 go build -o bootstrap ./cmd/lambda-worker

import (
	"context"
	"errors"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"esign-backend/internal/bootstrap"
	"esign-backend/internal/notify"
	"esign-backend/internal/shared/config"
	"esign-backend/internal/shared/telemetry"
	"esign-backend/internal/workerproc"
)

var (
	initOnce sync.Once
	initErr  error
	notifier notify.Notifier
)

func initNotifier() {
	ctx := context.Background()
	cfg := config.Load()
	store, err := bootstrap.BuildStore(ctx, cfg)
	if err != nil {
		initErr = err
		return
	}
	notifier, initErr = bootstrap.BuildDeliveryNotifier(ctx, cfg, store)
}

func handler(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	initOnce.Do(initNotifier)
	if initErr != nil {
		telemetry.Error("lambda_worker.bootstrap_failed", map[string]any{"error": initErr})
		failures := make([]events.SQSBatchItemFailure, 0, len(event.Records))
		for _, record := range event.Records {
			failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		}
		return events.SQSEventResponse{BatchItemFailures: failures}, initErr
	}
	return process(ctx, notifier, event), nil
}

// process delivers each record. Only delivery failures are reported back for
// redelivery; undecodable records are logged and dropped.
func process(ctx context.Context, n notify.Notifier, event events.SQSEvent) events.SQSEventResponse {
	failures := make([]events.SQSBatchItemFailure, 0)
	for _, record := range event.Records {
		err := workerproc.HandleMessage(ctx, n, record.Body)
		if err == nil {
			continue
		}
		fields := map[string]any{"sqs_message_id": record.MessageId, "error": err}
		var deliverErr workerproc.ErrDeliver
		if errors.As(err, &deliverErr) {
			telemetry.Error("lambda_worker.delivery_failed", fields)
			failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
			continue
		}
		telemetry.Error("lambda_worker.dropped", fields)
	}
	return events.SQSEventResponse{BatchItemFailures: failures}
}

func main() {
	lambda.Start(handler)
}
