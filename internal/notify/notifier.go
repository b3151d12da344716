package notify

import (
	"context"

	"github.com/sourcegraph/conc/pool"

	"esign-backend/internal/shared/metrics"
	"esign-backend/internal/shared/telemetry"
)

// maxConcurrentSends bounds the fan-out of one broadcast.
const maxConcurrentSends = 8

// Notifier delivers one message.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Failure is a message that could not be delivered.
type Failure struct {
	Message Message
	Err     error
}

// Broadcast sends every message concurrently. Individual failures are logged
// and returned; they never stop the other sends.
func Broadcast(ctx context.Context, n Notifier, msgs []Message) []Failure {
	if n == nil || len(msgs) == 0 {
		return nil
	}
	p := pool.NewWithResults[*Failure]().WithMaxGoroutines(maxConcurrentSends)
	for _, msg := range msgs {
		p.Go(func() *Failure {
			if err := msg.Validate(); err != nil {
				return &Failure{Message: msg, Err: err}
			}
			if err := n.Notify(ctx, msg); err != nil {
				return &Failure{Message: msg, Err: err}
			}
			return nil
		})
	}
	var failures []Failure
	for _, f := range p.Wait() {
		if f == nil {
			continue
		}
		telemetry.Warn("notify.failed", map[string]any{
			"kind":        string(f.Message.Kind),
			"document_id": f.Message.DocumentID,
			"recipient":   f.Message.Recipient,
			"error":       f.Err,
		})
		failures = append(failures, *f)
	}
	metrics.AddNotifications(len(msgs)-len(failures), len(failures))
	return failures
}

// DedupeByRecipient keeps the first message per recipient, compared
// case-insensitively.
func DedupeByRecipient(msgs []Message) []Message {
	seen := make(map[string]struct{}, len(msgs))
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		key := normalizeAddress(m.Recipient)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, m)
	}
	return out
}
