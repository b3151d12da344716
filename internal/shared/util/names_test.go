package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNamespaceKeyIsStableHex(t *testing.T) {
	got := NamespaceKey("signed/doc-1")
	assert.Equal(t, got, NamespaceKey("signed/doc-1"))
	assert.NotEqual(t, got, NamespaceKey("final/doc-1"))
	assert.Len(t, got, 64)
	assert.Regexp(t, "^[0-9a-f]+$", got)
}

func TestSanitizeFileName(t *testing.T) {
	cases := []struct {
		in   string
		want string
		err  bool
	}{
		{in: " lease.pdf ", want: "lease.pdf"},
		{in: "dir/sub\\lease.pdf", want: "dir_sub_lease.pdf"},
		{in: "lea\x00se\n.pdf", want: "lease.pdf"},
		{in: "../etc/passwd", err: true},
		{in: "   ", err: true},
		{in: "\x01\x02", err: true},
	}
	for _, tc := range cases {
		got, err := SanitizeFileName(tc.in)
		if tc.err {
			assert.ErrorIs(t, err, ErrInvalidFileName, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got)
	}
}

func TestSanitizeFileNameKeepsExtensionWhenTruncating(t *testing.T) {
	got, err := SanitizeFileName(strings.Repeat("é", 200) + ".pdf")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(got), MaxFileNameBytes)
	assert.True(t, strings.HasSuffix(got, ".pdf"))
	assert.True(t, strings.HasPrefix(got, "é"))
}
