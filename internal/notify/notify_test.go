package notify

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"esign-backend/internal/queue"
	"esign-backend/internal/shared/storage/object/local"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []Message
	fail map[string]bool
}

func (r *recordingNotifier) Notify(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail[msg.Recipient] {
		return errors.New("mailbox unavailable")
	}
	r.sent = append(r.sent, msg)
	return nil
}

func TestBroadcastCollectsFailuresWithoutStopping(t *testing.T) {
	n := &recordingNotifier{fail: map[string]bool{"b@example.com": true}}
	msgs := []Message{
		{Kind: KindSigningRequest, Recipient: "a@example.com"},
		{Kind: KindSigningRequest, Recipient: "b@example.com"},
		{Kind: KindSigningRequest, Recipient: "c@example.com"},
		{Kind: KindSigningRequest, Recipient: ""},
	}
	failures := Broadcast(context.Background(), n, msgs)
	assert.Len(t, failures, 2)
	assert.Len(t, n.sent, 2)
}

func TestDedupeByRecipientIgnoresCase(t *testing.T) {
	out := DedupeByRecipient([]Message{
		{Recipient: "Owner@Example.com", RecipientName: "Owner"},
		{Recipient: "owner@example.com", RecipientName: "Signer"},
		{Recipient: "b@example.com"},
	})
	require.Len(t, out, 2)
	assert.Equal(t, "Owner", out[0].RecipientName)
}

func TestRenderBodyEscapesTitle(t *testing.T) {
	body, err := RenderBody(Message{Kind: KindSigningRequest, Recipient: "a@example.com", DocumentTitle: "<b>Lease</b>", Link: "https://app.example/sign/tok"}, false)
	require.NoError(t, err)
	assert.Contains(t, body, "&lt;b&gt;Lease&lt;/b&gt;")
	assert.Contains(t, body, "https://app.example/sign/tok")
	assert.Equal(t, "Signature requested: <b>Lease</b>", Subject(Message{Kind: KindSigningRequest, DocumentTitle: "<b>Lease</b>"}))
}

func TestBuildRawEmailWithAttachment(t *testing.T) {
	msg := Message{Kind: KindCompleted, Recipient: "a@example.com", DocumentTitle: "Lease", AttachmentName: "lease-signed.pdf"}
	raw, err := BuildRawEmail("noreply@example.com", msg, []byte("%PDF-1.4 fake"))
	require.NoError(t, err)

	parsed, err := mail.ReadMessage(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", parsed.Header.Get("To"))
	mediaType, params, err := mime.ParseMediaType(parsed.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/mixed", mediaType)

	reader := multipart.NewReader(parsed.Body, params["boundary"])
	htmlPart, err := reader.NextPart()
	require.NoError(t, err)
	html, err := io.ReadAll(htmlPart)
	require.NoError(t, err)
	assert.Contains(t, string(html), "attached")

	filePart, err := reader.NextPart()
	require.NoError(t, err)
	assert.Equal(t, "lease-signed.pdf", filePart.FileName())
}

type fakeSES struct {
	inputs []*sesv2.SendEmailInput
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.inputs = append(f.inputs, in)
	return &sesv2.SendEmailOutput{}, nil
}

func TestSESNotifierDegradesToLinkOnlyWhenAttachmentMissing(t *testing.T) {
	fake := &fakeSES{}
	n := &SESNotifier{client: fake, from: "noreply@example.com", store: local.New(t.TempDir())}

	err := n.Notify(context.Background(), Message{
		Kind:          KindCompleted,
		Recipient:     "a@example.com",
		DocumentTitle: "Lease",
		Link:          "https://app.example/documents/1",
		AttachmentKey: "missing/key.pdf",
	})
	require.NoError(t, err)
	require.Len(t, fake.inputs, 1)
	raw := string(fake.inputs[0].Content.Raw.Data)
	assert.NotContains(t, raw, "Content-Disposition: attachment")
	assert.Contains(t, raw, "https://app.example/documents/1")
}

func TestSESNotifierAttachesStoredFile(t *testing.T) {
	store := local.New(t.TempDir())
	key, _, _, err := store.Save(context.Background(), "finals", "lease.pdf", strings.NewReader("%PDF-1.4 body"))
	require.NoError(t, err)
	fake := &fakeSES{}
	n := &SESNotifier{client: fake, from: "noreply@example.com", store: store}

	require.NoError(t, n.Notify(context.Background(), Message{
		Kind:           KindCompleted,
		Recipient:      "a@example.com",
		AttachmentKey:  key,
		AttachmentName: "lease-signed.pdf",
	}))
	assert.Contains(t, string(fake.inputs[0].Content.Raw.Data), "filename=lease-signed.pdf")
}

type captureQueue struct {
	msgs []queue.Message
}

func (c *captureQueue) Send(_ context.Context, msg queue.Message) error {
	c.msgs = append(c.msgs, msg)
	return nil
}

func TestQueueNotifierRoundTrip(t *testing.T) {
	q := &captureQueue{}
	n := &QueueNotifier{Client: q}
	msg := Message{Kind: KindSigningRequest, Recipient: "a@example.com", DocumentID: "doc-1", Link: "https://x/sign/t"}
	require.NoError(t, n.Notify(context.Background(), msg))
	require.Len(t, q.msgs, 1)
	assert.Equal(t, QueueKind, q.msgs[0].Kind)
	assert.Equal(t, "doc-1", q.msgs[0].GroupKey)

	got, err := DecodeQueued(q.msgs[0])
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}
