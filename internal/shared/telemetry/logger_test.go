package telemetry

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorWritesJSONWithFields(t *testing.T) {
	var buf bytes.Buffer
	restore := SetOutput(&buf)
	defer restore()

	Error("notify.failed", map[string]any{
		"recipient": "a@example.com",
		"error":     errors.New("smtp down"),
		"attempt":   2,
	})

	line := strings.TrimSpace(buf.String())
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &payload))
	require.Equal(t, "error", payload["level"])
	require.Equal(t, "notify.failed", payload["msg"])
	require.Equal(t, "smtp down", payload["error"])
	require.Equal(t, "a@example.com", payload["recipient"])
	require.EqualValues(t, 2, payload["attempt"])
	require.NotEmpty(t, payload["ts"])
}
