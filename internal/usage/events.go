package usage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"esign-backend/internal/shared/apperr"
)

// Event types accepted by the billing webhook.
const (
	EventSubscriptionActivated = "subscription.activated"
	EventSubscriptionUpdated   = "subscription.updated"
	EventSubscriptionCanceled  = "subscription.canceled"
	EventInvoicePaid           = "invoice.paid"
	EventInvoicePaymentFailed  = "invoice.payment_failed"
)

// Event is a billing provider notification. The concrete types below are the
// only implementations.
type Event interface {
	Type() string
	validate() error
}

// SubscriptionActivated links a new subscription to a user.
type SubscriptionActivated struct {
	UserID         string `json:"userId"`
	SubscriptionID string `json:"subscriptionId"`
	CustomerID     string `json:"customerId"`
	Plan           Plan   `json:"plan"`
}

// SubscriptionUpdated reports a status or plan change.
type SubscriptionUpdated struct {
	SubscriptionID string `json:"subscriptionId"`
	Status         string `json:"status"`
	Plan           Plan   `json:"plan,omitempty"`
}

// SubscriptionCanceled ends a subscription; the account falls back to free.
type SubscriptionCanceled struct {
	SubscriptionID string `json:"subscriptionId"`
}

// InvoicePaid marks the customer's subscription active.
type InvoicePaid struct {
	CustomerID string `json:"customerId"`
	InvoiceID  string `json:"invoiceId,omitempty"`
}

// InvoicePaymentFailed marks the customer's subscription past due.
type InvoicePaymentFailed struct {
	CustomerID string `json:"customerId"`
	InvoiceID  string `json:"invoiceId,omitempty"`
}

func (SubscriptionActivated) Type() string { return EventSubscriptionActivated }
func (SubscriptionUpdated) Type() string   { return EventSubscriptionUpdated }
func (SubscriptionCanceled) Type() string  { return EventSubscriptionCanceled }
func (InvoicePaid) Type() string           { return EventInvoicePaid }
func (InvoicePaymentFailed) Type() string  { return EventInvoicePaymentFailed }

func (e SubscriptionActivated) validate() error {
	if blank(e.UserID) || blank(e.SubscriptionID) {
		return apperr.Validation("%s requires userId and subscriptionId", e.Type())
	}
	if e.Plan != PlanMetered && e.Plan != PlanUnlimited {
		return apperr.Validation("%s requires a paid plan", e.Type())
	}
	return nil
}

func (e SubscriptionUpdated) validate() error {
	if blank(e.SubscriptionID) || blank(e.Status) {
		return apperr.Validation("%s requires subscriptionId and status", e.Type())
	}
	if e.Plan != "" && !e.Plan.Valid() {
		return apperr.Validation("%s: unknown plan %q", e.Type(), e.Plan)
	}
	return nil
}

func (e SubscriptionCanceled) validate() error {
	if blank(e.SubscriptionID) {
		return apperr.Validation("%s requires subscriptionId", e.Type())
	}
	return nil
}

func (e InvoicePaid) validate() error {
	if blank(e.CustomerID) {
		return apperr.Validation("%s requires customerId", e.Type())
	}
	return nil
}

func (e InvoicePaymentFailed) validate() error {
	if blank(e.CustomerID) {
		return apperr.Validation("%s requires customerId", e.Type())
	}
	return nil
}

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ParseEvent decodes a webhook body of the form {"type": ..., "data": {...}}.
func ParseEvent(body []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, apperr.Validation("invalid event body")
	}
	var ev Event
	switch env.Type {
	case EventSubscriptionActivated:
		ev = decodeEvent[SubscriptionActivated](env.Data)
	case EventSubscriptionUpdated:
		ev = decodeEvent[SubscriptionUpdated](env.Data)
	case EventSubscriptionCanceled:
		ev = decodeEvent[SubscriptionCanceled](env.Data)
	case EventInvoicePaid:
		ev = decodeEvent[InvoicePaid](env.Data)
	case EventInvoicePaymentFailed:
		ev = decodeEvent[InvoicePaymentFailed](env.Data)
	default:
		return nil, apperr.Validation("unsupported event type %q", env.Type)
	}
	if ev == nil {
		return nil, apperr.Validation("invalid %s payload", env.Type)
	}
	if err := ev.validate(); err != nil {
		return nil, err
	}
	return ev, nil
}

func decodeEvent[T Event](raw json.RawMessage) Event {
	var v T
	if len(raw) == 0 || json.Unmarshal(raw, &v) != nil {
		return nil
	}
	return v
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a hex HMAC-SHA256 signature in constant time.
func VerifySignature(secret, body []byte, signature string) error {
	got, err := hex.DecodeString(strings.TrimSpace(strings.TrimPrefix(signature, "sha256=")))
	if err != nil || len(secret) == 0 {
		return ErrBadSignature
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrBadSignature
	}
	return nil
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
