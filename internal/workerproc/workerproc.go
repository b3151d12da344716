// Package workerproc decodes queued notifications and delivers them.
package workerproc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"esign-backend/internal/notify"
	"esign-backend/internal/queue"
)

// MessageMeta captures details useful for logging and diagnostics.
type MessageMeta struct {
	BodyLen int
	BodySHA string
}

// ComputeMeta returns the body length and SHA-256 hash.
func ComputeMeta(body string) MessageMeta {
	if body == "" {
		return MessageMeta{}
	}
	sum := sha256.Sum256([]byte(body))
	return MessageMeta{BodyLen: len(body), BodySHA: hex.EncodeToString(sum[:])}
}

// ErrEmptyBody indicates an empty queue payload.
type ErrEmptyBody struct {
	Meta MessageMeta
}

func (e ErrEmptyBody) Error() string { return "empty message body" }

// ErrDecode indicates the envelope or its notification could not be decoded.
type ErrDecode struct {
	Meta MessageMeta
	Kind string
	Err  error
}

func (e ErrDecode) Error() string {
	if e.Err == nil {
		return "decode message"
	}
	return "decode message: " + e.Err.Error()
}

// ErrDeliver indicates delivery failed after successful parsing.
type ErrDeliver struct {
	EnvelopeID string
	DocumentID string
	Err        error
}

func (e ErrDeliver) Error() string {
	if e.Err == nil {
		return "deliver notification"
	}
	return "deliver notification: " + e.Err.Error()
}

func (e ErrDeliver) Unwrap() error { return e.Err }

// Job is a decoded queue message.
type Job struct {
	Envelope     queue.Message
	Notification notify.Message
}

// ParseMessage validates and decodes the queue payload.
func ParseMessage(body string) (Job, MessageMeta, error) {
	meta := ComputeMeta(body)
	if strings.TrimSpace(body) == "" {
		return Job{}, meta, ErrEmptyBody{Meta: meta}
	}
	env, err := queue.DecodeMessage([]byte(body))
	if err != nil {
		return Job{}, meta, ErrDecode{Meta: meta, Err: err}
	}
	msg, err := notify.DecodeQueued(env)
	if err != nil {
		return Job{Envelope: env}, meta, ErrDecode{Meta: meta, Kind: env.Kind, Err: err}
	}
	return Job{Envelope: env, Notification: msg}, meta, nil
}

type parsedJobKey struct{}

// WithParsedJob stores a decoded job in the context for reuse.
func WithParsedJob(ctx context.Context, job Job) context.Context {
	return context.WithValue(ctx, parsedJobKey{}, job)
}

func parsedJobFromContext(ctx context.Context) (Job, bool) {
	if ctx == nil {
		return Job{}, false
	}
	job, ok := ctx.Value(parsedJobKey{}).(Job)
	return job, ok
}

// HandleMessage parses the payload, unless already parsed into ctx, and
// delivers it with n.
func HandleMessage(ctx context.Context, n notify.Notifier, body string) error {
	if n == nil {
		return errors.New("notifier not configured")
	}
	job, ok := parsedJobFromContext(ctx)
	if !ok {
		var err error
		job, _, err = ParseMessage(body)
		if err != nil {
			return err
		}
	}
	if err := n.Notify(ctx, job.Notification); err != nil {
		return ErrDeliver{EnvelopeID: job.Envelope.ID, DocumentID: job.Notification.DocumentID, Err: err}
	}
	return nil
}
