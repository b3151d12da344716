package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"esign-backend/internal/queue"
)

// QueueKind tags queue envelopes carrying a Message.
const QueueKind = "notification"

// QueueNotifier hands messages to a queue for the worker to deliver.
type QueueNotifier struct {
	Client queue.Client
	Now    func() time.Time
}

func (q *QueueNotifier) Notify(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	now := time.Now
	if q.Now != nil {
		now = q.Now
	}
	return q.Client.Send(ctx, queue.Message{
		Kind:       QueueKind,
		ID:         uuid.NewString(),
		EnqueuedAt: now().UTC().Format(time.RFC3339),
		Version:    queue.CurrentVersion,
		GroupKey:   msg.DocumentID,
		Payload:    payload,
	})
}

// DecodeQueued extracts a Message from a queue envelope.
func DecodeQueued(env queue.Message) (Message, error) {
	if env.Kind != QueueKind {
		return Message{}, fmt.Errorf("unexpected queue message kind %q", env.Kind)
	}
	var msg Message
	if err := json.Unmarshal(env.Payload, &msg); err != nil {
		return Message{}, fmt.Errorf("decode notification: %w", err)
	}
	return msg, msg.Validate()
}
