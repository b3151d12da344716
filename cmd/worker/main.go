package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/spf13/pflag"

	"esign-backend/internal/bootstrap"
	"esign-backend/internal/notify"
	"esign-backend/internal/shared/config"
	"esign-backend/internal/shared/metrics"
	"esign-backend/internal/shared/telemetry"
	"esign-backend/internal/workerproc"
)

func main() {
	fs := pflag.NewFlagSet("worker", pflag.ExitOnError)
	fs.String("notify-queue-url", "", "SQS queue carrying notifications (NOTIFY_QUEUE_URL)")
	fs.Int("worker-concurrency", 0, "parallel deliveries (WORKER_CONCURRENCY)")
	_ = fs.Parse(os.Args[1:])
	cfg := config.LoadWithFlags(fs)
	defer telemetry.Sync()

	queueURL := strings.TrimSpace(cfg.NotifyQueueURL)
	if queueURL == "" {
		fatal("worker.config_invalid", errors.New("NOTIFY_QUEUE_URL is required"))
	}
	region := cfg.AWSRegion
	if region == "" {
		region = "us-east-1"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		fatal("worker.aws_config_failed", err)
	}
	var sqsClient sqsAPI = sqs.NewFromConfig(awsCfg)

	store, err := bootstrap.BuildStore(ctx, cfg)
	if err != nil {
		fatal("worker.store_failed", err)
	}
	notifier, err := bootstrap.BuildDeliveryNotifier(ctx, cfg, store)
	if err != nil {
		fatal("worker.notifier_failed", err)
	}

	concurrency := max(1, cfg.WorkerConcurrency)
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	telemetry.Info("worker.started", map[string]any{
		"queue":              queueURL,
		"concurrency":        concurrency,
		"visibility_seconds": cfg.WorkerVisibilitySecs,
	})

pollLoop:
	for {
		select {
		case <-ctx.Done():
			break pollLoop
		default:
		}

		resp, err := sqsClient.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     20,
			VisibilityTimeout:   int32(cfg.WorkerVisibilitySecs),
			AttributeNames:      []sqstypes.QueueAttributeName{sqstypes.QueueAttributeName("ApproximateReceiveCount")},
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				break pollLoop
			}
			telemetry.Warn("worker.receive_failed", map[string]any{"error": err})
			continue
		}

		for _, msg := range resp.Messages {
			select {
			case <-ctx.Done():
				break pollLoop
			case sem <- struct{}{}:
			}
			metrics.IncJobsReceived()
			wg.Add(1)
			go func(m sqstypes.Message) {
				defer wg.Done()
				defer func() { <-sem }()
				handleMessage(ctx, sqsClient, queueURL, notifier, m)
			}(msg)
		}
	}

	shutdownTimeout := time.Duration(cfg.ShutdownTimeoutSecs) * time.Second
	telemetry.Info("worker.draining", map[string]any{"timeout": shutdownTimeout.String()})
	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-time.After(shutdownTimeout):
		telemetry.Warn("worker.shutdown_timeout", map[string]any{"timeout": shutdownTimeout.String()})
	}
}

type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// handleMessage delivers one notification. Undecodable messages are deleted;
// failed deliveries stay on the queue and reappear after the visibility timeout.
func handleMessage(ctx context.Context, client sqsAPI, queueURL string, n notify.Notifier, msg sqstypes.Message) {
	body := aws.ToString(msg.Body)
	job, meta, err := workerproc.ParseMessage(body)
	if err != nil {
		fields := baseFields(msg, workerproc.Job{})
		fields["body_len"] = meta.BodyLen
		if meta.BodySHA != "" {
			fields["body_sha256"] = meta.BodySHA
		}
		fields["error"] = err.Error()
		event := "worker.decode_failed"
		var empty workerproc.ErrEmptyBody
		if errors.As(err, &empty) {
			event = "worker.empty_body"
		}
		telemetry.Error(event, fields)
		if deleteMessage(ctx, client, queueURL, msg, workerproc.Job{}) {
			metrics.IncJobsDropped()
		}
		return
	}

	telemetry.Info("worker.received", baseFields(msg, job))
	if err := workerproc.HandleMessage(workerproc.WithParsedJob(ctx, job), n, body); err != nil {
		fields := baseFields(msg, job)
		fields["error"] = err.Error()
		telemetry.Error("worker.delivery_failed", fields)
		metrics.IncJobsFailed()
		return
	}

	if deleteMessage(ctx, client, queueURL, msg, job) {
		telemetry.Info("worker.delivered", baseFields(msg, job))
		metrics.IncJobsCompleted()
	}
}

func deleteMessage(ctx context.Context, client sqsAPI, queueURL string, msg sqstypes.Message, job workerproc.Job) bool {
	receipt := aws.ToString(msg.ReceiptHandle)
	if receipt == "" {
		fields := baseFields(msg, job)
		fields["error"] = "missing receipt handle"
		telemetry.Error("worker.delete_failed", fields)
		return false
	}
	if _, err := client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(queueURL),
		ReceiptHandle: aws.String(receipt),
	}); err != nil {
		fields := baseFields(msg, job)
		fields["error"] = err.Error()
		telemetry.Error("worker.delete_failed", fields)
		return false
	}
	return true
}

func baseFields(msg sqstypes.Message, job workerproc.Job) map[string]any {
	fields := map[string]any{
		"sqs_message_id": aws.ToString(msg.MessageId),
		"receive_count":  receiveCount(msg),
	}
	if job.Envelope.ID != "" {
		fields["envelope_id"] = job.Envelope.ID
	}
	if job.Notification.DocumentID != "" {
		fields["document_id"] = job.Notification.DocumentID
		fields["kind"] = string(job.Notification.Kind)
	}
	return fields
}

func receiveCount(msg sqstypes.Message) int {
	if msg.Attributes == nil {
		return 0
	}
	parsed, err := strconv.Atoi(msg.Attributes["ApproximateReceiveCount"])
	if err != nil {
		return 0
	}
	return parsed
}

func fatal(event string, err error) {
	telemetry.Error(event, map[string]any{"error": err})
	telemetry.Sync()
	os.Exit(1)
}
