// Package notify delivers signing invitations and completion notices.
package notify

import (
	"strings"

	"esign-backend/internal/shared/apperr"
)

// Kind selects the template of a notification.
type Kind string

const (
	KindSigningRequest Kind = "signing_request"
	KindCompleted      Kind = "completed"
)

// Message is one email-shaped notification. AttachmentKey, when set, names an
// object store key to attach as AttachmentName.
type Message struct {
	Kind           Kind   `json:"kind"`
	DocumentID     string `json:"documentId"`
	Recipient      string `json:"recipient"`
	RecipientName  string `json:"recipientName,omitempty"`
	SenderName     string `json:"senderName,omitempty"`
	DocumentTitle  string `json:"documentTitle"`
	Link           string `json:"link"`
	AttachmentKey  string `json:"attachmentKey,omitempty"`
	AttachmentName string `json:"attachmentName,omitempty"`
}

// Validate rejects messages that cannot be delivered.
func (m Message) Validate() error {
	if m.Kind != KindSigningRequest && m.Kind != KindCompleted {
		return apperr.Validation("notification kind %q is not supported", m.Kind)
	}
	if strings.TrimSpace(m.Recipient) == "" {
		return apperr.Validation("notification recipient is required")
	}
	return nil
}

// Greeting is the name used to address the recipient.
func (m Message) Greeting() string {
	if name := strings.TrimSpace(m.RecipientName); name != "" {
		return name
	}
	return m.Recipient
}
