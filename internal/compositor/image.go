package compositor

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"regexp"
	"strings"
)

var dataURLPrefix = regexp.MustCompile(`^data:image/[a-zA-Z+.-]+;base64,`)

// signatureImage is a decoded signature payload with its native size.
type signatureImage struct {
	raw    []byte
	width  int
	height int
	format string
}

// decodeSignature strips an optional data URL prefix, base64-decodes the
// payload and reads the image header.
func decodeSignature(data string) (signatureImage, error) {
	payload := dataURLPrefix.ReplaceAllString(strings.TrimSpace(data), "")
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return signatureImage{}, fmt.Errorf("decode base64: %w", err)
		}
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return signatureImage{}, fmt.Errorf("decode image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return signatureImage{}, fmt.Errorf("image has no area")
	}
	return signatureImage{raw: raw, width: cfg.Width, height: cfg.Height, format: format}, nil
}
