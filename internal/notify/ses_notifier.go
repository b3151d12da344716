package notify

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"esign-backend/internal/shared/storage/object"
	"esign-backend/internal/shared/telemetry"
)

// maxAttachmentBytes keeps raw messages under the SES size limit.
const maxAttachmentBytes = 7 << 20

type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESNotifier sends notifications as raw MIME email through SES v2.
type SESNotifier struct {
	client sesAPI
	from   string
	store  object.ObjectStore
}

// NewSESNotifier builds a notifier using the default AWS credential chain.
// store may be nil, in which case completion notices are sent link-only.
func NewSESNotifier(ctx context.Context, region, from string, store object.ObjectStore) (*SESNotifier, error) {
	if strings.TrimSpace(from) == "" {
		return nil, fmt.Errorf("ses from address is required")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &SESNotifier{client: sesv2.NewFromConfig(cfg), from: from, store: store}, nil
}

func (s *SESNotifier) Notify(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	attachment := s.loadAttachment(ctx, msg)
	raw, err := BuildRawEmail(s.from, msg, attachment)
	if err != nil {
		return err
	}
	_, err = s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from),
		Destination:      &sestypes.Destination{ToAddresses: []string{msg.Recipient}},
		Content:          &sestypes.EmailContent{Raw: &sestypes.RawMessage{Data: raw}},
	})
	if err != nil {
		return fmt.Errorf("ses send email: %w", err)
	}
	return nil
}

// loadAttachment fetches the attachment bytes. Any failure degrades the
// message to link-only.
func (s *SESNotifier) loadAttachment(ctx context.Context, msg Message) []byte {
	if msg.AttachmentKey == "" || s.store == nil {
		return nil
	}
	data, err := object.ReadAll(ctx, s.store, msg.AttachmentKey)
	if err == nil && len(data) > maxAttachmentBytes {
		err = fmt.Errorf("attachment is %d bytes", len(data))
	}
	if err != nil {
		telemetry.Warn("notify.attachment_skipped", map[string]any{
			"document_id": msg.DocumentID,
			"recipient":   msg.Recipient,
			"error":       err,
		})
		return nil
	}
	return data
}

// BuildRawEmail renders a multipart/mixed message with an HTML body and, when
// attachment is non-empty, a PDF attachment.
func BuildRawEmail(from string, msg Message, attachment []byte) ([]byte, error) {
	body, err := RenderBody(msg, len(attachment) > 0)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", msg.Recipient)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", Subject(msg)))
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", mw.Boundary())

	htmlPart, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/html; charset=UTF-8"},
		"Content-Transfer-Encoding": {"quoted-printable"},
	})
	if err != nil {
		return nil, err
	}
	qp := quotedprintable.NewWriter(htmlPart)
	if _, err := qp.Write([]byte(body)); err != nil {
		return nil, err
	}
	if err := qp.Close(); err != nil {
		return nil, err
	}

	if len(attachment) > 0 {
		name := msg.AttachmentName
		if name == "" {
			name = "signed.pdf"
		}
		filePart, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {mime.FormatMediaType("application/pdf", map[string]string{"name": name})},
			"Content-Transfer-Encoding": {"base64"},
			"Content-Disposition":       {mime.FormatMediaType("attachment", map[string]string{"filename": name})},
		})
		if err != nil {
			return nil, err
		}
		if err := writeBase64Lines(filePart, attachment); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeBase64Lines(w io.Writer, data []byte) error {
	encoded := base64.StdEncoding.EncodeToString(data)
	for len(encoded) > 0 {
		n := min(76, len(encoded))
		if _, err := w.Write([]byte(encoded[:n] + "\r\n")); err != nil {
			return err
		}
		encoded = encoded[n:]
	}
	return nil
}

var _ Notifier = (*SESNotifier)(nil)
