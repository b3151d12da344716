package notify

import (
	"context"

	"esign-backend/internal/shared/telemetry"
)

// LogNotifier writes notifications to the log instead of sending them.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	telemetry.Info("notify.logged", map[string]any{
		"kind":        string(msg.Kind),
		"document_id": msg.DocumentID,
		"recipient":   msg.Recipient,
		"link":        msg.Link,
		"attachment":  msg.AttachmentKey != "",
	})
	return nil
}
