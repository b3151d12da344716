package queue

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessagePayloadSurvivesEncoding(t *testing.T) {
	msg := Message{
		Kind:       "notification",
		ID:         "msg-1",
		EnqueuedAt: "2026-01-30T22:00:00Z",
		Version:    CurrentVersion,
		Payload:    json.RawMessage(`{"recipient":"a@example.com"}`),
	}
	payload, err := EncodeMessage(msg)
	require.NoError(t, err)

	got, err := DecodeMessage(payload)
	require.NoError(t, err)
	assert.Equal(t, "notification", got.Kind)
	assert.JSONEq(t, `{"recipient":"a@example.com"}`, string(got.Payload))
}

func TestEncodeRequiresKind(t *testing.T) {
	_, err := EncodeMessage(Message{ID: "x"})
	assert.ErrorIs(t, err, ErrMissingKind)
}
