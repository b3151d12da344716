// Package util holds the naming rules shared by the object stores and the
// document upload path.
package util

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxFileNameBytes caps stored file names. Longer names are shortened before
// the extension.
const MaxFileNameBytes = 160

var ErrInvalidFileName = errors.New("invalid file name")

// NamespaceKey maps an object namespace such as "documents/<owner>" or
// "signed/<document>" to a stable, filesystem-safe directory name.
func NamespaceKey(namespace string) string {
	sum := sha256.Sum256([]byte(namespace))
	return hex.EncodeToString(sum[:])
}

// SanitizeFileName drops path separators and control characters and rejects
// traversal patterns. The extension survives truncation.
func SanitizeFileName(name string) (string, error) {
	if strings.Contains(name, "..") {
		return "", ErrInvalidFileName
	}
	s := strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\':
			return '_'
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, strings.TrimSpace(name))
	s = strings.TrimSpace(s)
	if s == "" || s == "." {
		return "", ErrInvalidFileName
	}
	if len(s) > MaxFileNameBytes {
		ext := filepath.Ext(s)
		if len(ext) > 16 {
			ext = ""
		}
		base := s[:MaxFileNameBytes-len(ext)]
		for !utf8.ValidString(base) {
			base = base[:len(base)-1]
		}
		s = base + ext
	}
	return s, nil
}
