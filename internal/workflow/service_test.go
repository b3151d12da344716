package workflow

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"esign-backend/internal/compositor"
	"esign-backend/internal/compositor/pdftest"
	"esign-backend/internal/documents"
	"esign-backend/internal/notify"
	"esign-backend/internal/regions"
	"esign-backend/internal/shared/apperr"
	"esign-backend/internal/shared/storage/object"
	"esign-backend/internal/shared/storage/object/local"
	"esign-backend/internal/signing"
	"esign-backend/internal/usage"
)

const ownerID = "owner-1"

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (n *recordingNotifier) Notify(_ context.Context, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
	return nil
}

func (n *recordingNotifier) byKind(kind notify.Kind) []notify.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notify.Message
	for _, m := range n.msgs {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}

type fakeMeter struct {
	calls atomic.Int32
	err   error
}

func (m *fakeMeter) RecordCompletion(context.Context, string, string, string) (usage.Result, error) {
	m.calls.Add(1)
	if m.err != nil {
		return usage.Result{}, m.err
	}
	return usage.Result{Recorded: true}, nil
}

type staticDirectory map[string][2]string

func (d staticDirectory) Contact(_ context.Context, userID string) (string, string, error) {
	c, ok := d[userID]
	if !ok {
		return "", "", errors.New("unknown user")
	}
	return c[0], c[1], nil
}

// stubRenderer appends a marker to the input instead of drawing.
type stubRenderer struct {
	calls atomic.Int32
	err   error
}

func (r *stubRenderer) Render(_ context.Context, original []byte, placements []signing.Placement) (compositor.Result, error) {
	r.calls.Add(1)
	if r.err != nil {
		return compositor.Result{}, r.err
	}
	out := append(bytes.Clone(original), []byte("\n% stamped\n")...)
	return compositor.Result{PDF: out, Drawn: len(placements)}, nil
}

type fixture struct {
	svc      *Service
	repo     *documents.MemoryRepo
	store    object.ObjectStore
	notifier *recordingNotifier
	meter    *fakeMeter
	doc      documents.Document
}

func newFixture(t *testing.T, signers int) *fixture {
	t.Helper()
	ctx := context.Background()
	repo := documents.NewMemoryRepo()
	store := local.New(t.TempDir())
	key, size, _, err := store.Save(ctx, "documents/"+ownerID, "lease.pdf", bytes.NewReader(pdftest.Build(pdftest.Letter)))
	require.NoError(t, err)

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	doc := documents.Document{
		ID:              "doc-1",
		OwnerID:         ownerID,
		Title:           "Lease",
		FileName:        "lease.pdf",
		MimeType:        "application/pdf",
		SizeBytes:       size,
		PageCount:       1,
		OriginalKey:     key,
		NumberOfSigners: signers,
		Status:          documents.StatusDraft,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	require.NoError(t, repo.Create(ctx, doc))
	second := 1
	_, err = repo.ReplaceLayout(ctx, doc.ID, signers, []regions.Region{
		{ID: "sig", DocumentID: doc.ID, Type: regions.TypeSignature, Geometry: regions.Geometry{X: 72, Y: 600, Width: 200, Height: 60, PageNumber: 1}},
		{ID: "name", DocumentID: doc.ID, Type: regions.TypeName, Geometry: regions.Geometry{X: 72, Y: 680, Width: 200, Height: 20, PageNumber: 1}},
		{ID: "witness", DocumentID: doc.ID, Type: regions.TypeBusiness, Geometry: regions.Geometry{X: 300, Y: 680, Width: 200, Height: 20, PageNumber: 1}, SignerIndex: &second},
	})
	require.NoError(t, err)

	notifier := &recordingNotifier{}
	meter := &fakeMeter{}
	svc := New(repo, store, meter, notifier, staticDirectory{ownerID: {"owner@example.com", "Olivia Owner"}}, "https://sign.example.com/")
	svc.Signer = &stubRenderer{}
	svc.Final = &stubRenderer{}
	svc.Now = func() time.Time { return now }
	return &fixture{svc: svc, repo: repo, store: store, notifier: notifier, meter: meter, doc: doc}
}

func signerList(n int) []signing.Signer {
	names := []string{"alice", "bob", "carol", "dave"}
	out := make([]signing.Signer, n)
	for i := range out {
		out[i] = signing.Signer{Email: names[i] + "@example.com", Name: strings.ToUpper(names[i][:1]) + names[i][1:]}
	}
	return out
}

func values() signing.Values {
	return signing.Values{
		"sig":  {Type: regions.TypeSignature, Data: pdftest.PNGDataURL(120, 40)},
		"name": {Type: regions.TypeName, Data: "Alice Example"},
	}
}

func (f *fixture) request(t *testing.T, n int) RequestResult {
	t.Helper()
	res, err := f.svc.CreateRequest(context.Background(), ownerID, CreateRequestInput{DocumentID: f.doc.ID, Signers: signerList(n)})
	require.NoError(t, err)
	return res
}

func TestSingleSignerHappyPathWithRealRenderer(t *testing.T) {
	f := newFixture(t, 1)
	f.svc.Signer = compositor.Renderer{Anchor: compositor.AnchorBottomLeft}
	f.svc.Final = compositor.Renderer{Anchor: compositor.AnchorCenter}
	ctx := context.Background()

	req := f.request(t, 1)
	assert.Equal(t, documents.StatusSent, req.Document.Status)
	invites := f.notifier.byKind(notify.KindSigningRequest)
	require.Len(t, invites, 1)
	assert.Equal(t, "alice@example.com", invites[0].Recipient)
	assert.Equal(t, "Olivia Owner", invites[0].SenderName)
	assert.Equal(t, "https://sign.example.com/sign/"+req.Signatures[0].Token, invites[0].Link)

	out, err := f.svc.SubmitSignature(ctx, req.Signatures[0].Token, SubmitInput{SignerName: "Alice", SignerDate: "2024-05-01", Values: values()})
	require.NoError(t, err)
	assert.True(t, out.Completed)
	assert.Equal(t, signing.StatusSigned, out.Signature.Status)
	assert.Equal(t, int32(1), f.meter.calls.Load())

	doc, err := f.repo.GetByID(ctx, f.doc.ID)
	require.NoError(t, err)
	assert.Equal(t, documents.StatusCompleted, doc.Status)
	require.True(t, doc.HasFinal())

	final, err := object.ReadAll(ctx, f.store, doc.FinalKey)
	require.NoError(t, err)
	info, err := compositor.Inspect(final)
	require.NoError(t, err)
	assert.Equal(t, 1, info.PageCount)

	done := f.notifier.byKind(notify.KindCompleted)
	require.Len(t, done, 2)
	recipients := []string{done[0].Recipient, done[1].Recipient}
	assert.ElementsMatch(t, []string{"owner@example.com", "alice@example.com"}, recipients)
	for _, m := range done {
		assert.Equal(t, doc.FinalKey, m.AttachmentKey)
		assert.Equal(t, "lease-signed.pdf", m.AttachmentName)
	}
}

func TestCreateRequestRejectsSignerCountMismatch(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	_, err := f.svc.CreateRequest(ctx, ownerID, CreateRequestInput{DocumentID: f.doc.ID, Signers: signerList(1)})
	require.ErrorIs(t, err, apperr.ErrValidation)

	detail, err := f.repo.GetDetail(ctx, f.doc.ID)
	require.NoError(t, err)
	assert.Empty(t, detail.Signatures)
	assert.Equal(t, documents.StatusDraft, detail.Status)
	assert.Empty(t, f.notifier.byKind(notify.KindSigningRequest))
}

func TestCreateRequestRequiresRegionsAndOwnership(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	_, err := f.svc.CreateRequest(ctx, "intruder", CreateRequestInput{DocumentID: f.doc.ID, Signers: signerList(1)})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.repo.ReplaceLayout(ctx, f.doc.ID, 1, nil)
	require.NoError(t, err)
	_, err = f.svc.CreateRequest(ctx, ownerID, CreateRequestInput{DocumentID: f.doc.ID, Signers: signerList(1)})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

// relayoutRepo changes the layout right after the first detail read, the way
// an owner editing regions in another tab would.
type relayoutRepo struct {
	*documents.MemoryRepo
	once   sync.Once
	layout func(ctx context.Context, documentID string)
}

func (r *relayoutRepo) GetDetail(ctx context.Context, documentID string) (documents.Detail, error) {
	detail, err := r.MemoryRepo.GetDetail(ctx, documentID)
	r.once.Do(func() { r.layout(ctx, documentID) })
	return detail, err
}

func TestCreateRequestRejectsLayoutChangedAfterRead(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	f.svc.Repo = &relayoutRepo{MemoryRepo: f.repo, layout: func(ctx context.Context, documentID string) {
		_, err := f.repo.ReplaceLayout(ctx, documentID, 3, []regions.Region{
			{ID: "sig", DocumentID: documentID, Type: regions.TypeSignature, Geometry: regions.Geometry{X: 72, Y: 600, Width: 200, Height: 60, PageNumber: 1}},
		})
		require.NoError(t, err)
	}}

	_, err := f.svc.CreateRequest(ctx, ownerID, CreateRequestInput{DocumentID: f.doc.ID, Signers: signerList(2)})
	require.ErrorIs(t, err, documents.ErrLayoutChanged)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	detail, err := f.repo.GetDetail(ctx, f.doc.ID)
	require.NoError(t, err)
	assert.Empty(t, detail.Signatures)
	assert.Equal(t, 3, detail.NumberOfSigners)
	assert.Equal(t, documents.StatusDraft, detail.Status)
	assert.Empty(t, f.notifier.byKind(notify.KindSigningRequest))
}

func TestCreateRequestRejectsMovedRegionsAfterRead(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	f.svc.Repo = &relayoutRepo{MemoryRepo: f.repo, layout: func(ctx context.Context, documentID string) {
		_, err := f.repo.ReplaceLayout(ctx, documentID, 1, []regions.Region{
			{ID: "sig", DocumentID: documentID, Type: regions.TypeSignature, Geometry: regions.Geometry{X: 10, Y: 10, Width: 200, Height: 60, PageNumber: 1}},
		})
		require.NoError(t, err)
	}}

	_, err := f.svc.CreateRequest(ctx, ownerID, CreateRequestInput{
		DocumentID: f.doc.ID,
		Signers:    signerList(1),
		SelfSign:   &SelfSign{SignerIndex: 0, SignerName: "Alice", Values: values()},
	})
	require.ErrorIs(t, err, documents.ErrLayoutChanged)

	detail, err := f.repo.GetDetail(ctx, f.doc.ID)
	require.NoError(t, err)
	assert.Empty(t, detail.Signatures)
	assert.Equal(t, documents.StatusDraft, detail.Status)
}

func TestSubmitAfterDeleteIsGone(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	req := f.request(t, 2)

	require.NoError(t, f.svc.DeleteRequest(ctx, ownerID, req.RequestID))

	_, err := f.svc.SubmitSignature(ctx, req.Signatures[0].Token, SubmitInput{SignerName: "Alice", Values: values()})
	require.ErrorIs(t, err, apperr.ErrGone)
	_, err = f.svc.Lookup(ctx, req.Signatures[1].Token)
	require.ErrorIs(t, err, signing.ErrRequestDeleted)

	doc, err := f.repo.GetByID(ctx, f.doc.ID)
	require.NoError(t, err)
	assert.Equal(t, documents.StatusDraft, doc.Status)
}

func TestDeleteRequestRules(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	req := f.request(t, 2)

	err := f.svc.DeleteRequest(ctx, "intruder", req.RequestID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.svc.SubmitSignature(ctx, req.Signatures[0].Token, SubmitInput{SignerName: "Alice", Values: values()})
	require.NoError(t, err)
	err = f.svc.DeleteRequest(ctx, ownerID, req.RequestID)
	assert.ErrorIs(t, err, signing.ErrRequestHasSignatures)

	err = f.svc.DeleteRequest(ctx, ownerID, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestResubmissionConflictsAndKeepsFirstValues(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	req := f.request(t, 2)
	token := req.Signatures[0].Token

	_, err := f.svc.SubmitSignature(ctx, token, SubmitInput{SignerName: "Alice", Values: values()})
	require.NoError(t, err)

	second := signing.Values{"name": {Type: regions.TypeName, Data: "Mallory"}}
	_, err = f.svc.SubmitSignature(ctx, token, SubmitInput{SignerName: "Mallory", Values: second})
	require.ErrorIs(t, err, signing.ErrAlreadySigned)

	sig, err := f.repo.GetSignatureByToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "Alice", sig.SignerName)
	assert.Equal(t, "Alice Example", sig.Values["name"].Data)
	assert.Equal(t, int32(1), f.meter.calls.Load())
}

func TestPartialSubmissionStaysSent(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	req := f.request(t, 2)

	out, err := f.svc.SubmitSignature(ctx, req.Signatures[1].Token, SubmitInput{SignerName: "Bob", Values: values()})
	require.NoError(t, err)
	assert.False(t, out.Completed)

	doc, err := f.repo.GetByID(ctx, f.doc.ID)
	require.NoError(t, err)
	assert.Equal(t, documents.StatusSent, doc.Status)
	assert.False(t, doc.HasFinal())
	assert.Empty(t, f.notifier.byKind(notify.KindCompleted))
	assert.Equal(t, int32(0), f.svc.Final.(*stubRenderer).calls.Load())
}

func TestConcurrentLastSignersFinalizeOnce(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	req := f.request(t, 3)

	var wg sync.WaitGroup
	var completed atomic.Int32
	errs := make(chan error, len(req.Signatures))
	for _, sig := range req.Signatures {
		wg.Add(1)
		go func(token string) {
			defer wg.Done()
			out, err := f.svc.SubmitSignature(ctx, token, SubmitInput{SignerName: "Signer", Values: values()})
			if err != nil {
				errs <- err
				return
			}
			if out.Completed {
				completed.Add(1)
			}
		}(sig.Token)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, int32(1), completed.Load())
	assert.Equal(t, int32(1), f.svc.Final.(*stubRenderer).calls.Load())
	doc, err := f.repo.GetByID(ctx, f.doc.ID)
	require.NoError(t, err)
	assert.Equal(t, documents.StatusCompleted, doc.Status)
	assert.True(t, doc.HasFinal())
	assert.Len(t, f.notifier.byKind(notify.KindCompleted), 4)
}

func TestSubmitValidatesInput(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	req := f.request(t, 1)
	token := req.Signatures[0].Token

	_, err := f.svc.SubmitSignature(ctx, token, SubmitInput{Values: values()})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = f.svc.SubmitSignature(ctx, token, SubmitInput{SignerName: "Alice"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = f.svc.SubmitSignature(ctx, "unknown-token", SubmitInput{SignerName: "Alice", Values: values()})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRenderFailureLeavesSignaturePending(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	req := f.request(t, 1)
	f.svc.Signer = &stubRenderer{err: compositor.ErrRender}

	_, err := f.svc.SubmitSignature(ctx, req.Signatures[0].Token, SubmitInput{SignerName: "Alice", Values: values()})
	require.ErrorIs(t, err, compositor.ErrRender)

	sig, err := f.repo.GetSignatureByToken(ctx, req.Signatures[0].Token)
	require.NoError(t, err)
	assert.Equal(t, signing.StatusPending, sig.Status)
}

func TestSelfSignSoleSignerCompletesAtCreation(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	res, err := f.svc.CreateRequest(ctx, ownerID, CreateRequestInput{
		DocumentID: f.doc.ID,
		Signers:    []signing.Signer{{Email: "owner@example.com", Name: "Olivia"}},
		SelfSign:   &SelfSign{SignerIndex: 0, SignerName: "Olivia", Values: values()},
	})
	require.NoError(t, err)
	assert.Equal(t, documents.StatusCompleted, res.Document.Status)
	assert.Equal(t, signing.StatusSigned, res.Signatures[0].Status)
	assert.Empty(t, f.notifier.byKind(notify.KindSigningRequest))
	assert.Equal(t, int32(1), f.meter.calls.Load())

	doc, err := f.repo.GetByID(ctx, f.doc.ID)
	require.NoError(t, err)
	assert.True(t, doc.HasFinal())
	done := f.notifier.byKind(notify.KindCompleted)
	require.Len(t, done, 1)
	assert.Equal(t, "owner@example.com", done[0].Recipient)
}

func TestSelfSignSkipsCreatorInvitation(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	res, err := f.svc.CreateRequest(ctx, ownerID, CreateRequestInput{
		DocumentID: f.doc.ID,
		Signers:    signerList(2),
		SelfSign:   &SelfSign{SignerIndex: 0, SignerName: "Alice", Values: values()},
	})
	require.NoError(t, err)
	assert.Equal(t, documents.StatusSent, res.Document.Status)
	invites := f.notifier.byKind(notify.KindSigningRequest)
	require.Len(t, invites, 1)
	assert.Equal(t, "bob@example.com", invites[0].Recipient)

	_, err = f.svc.CreateRequest(ctx, ownerID, CreateRequestInput{
		DocumentID: f.doc.ID,
		Signers:    signerList(2),
		SelfSign:   &SelfSign{SignerIndex: 5, SignerName: "Alice", Values: values()},
	})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestMeterFailureDoesNotFailSubmission(t *testing.T) {
	f := newFixture(t, 1)
	f.meter.err = usage.ErrNoActivePlan
	ctx := context.Background()
	req := f.request(t, 1)

	out, err := f.svc.SubmitSignature(ctx, req.Signatures[0].Token, SubmitInput{SignerName: "Alice", Values: values()})
	require.NoError(t, err)
	assert.True(t, out.Completed)
}

func TestRetryFinalizeAfterFailedMerge(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	req := f.request(t, 1)

	_, err := f.svc.RetryFinalize(ctx, ownerID, f.doc.ID)
	require.ErrorIs(t, err, ErrNotCompleted)

	f.svc.Final = &stubRenderer{err: compositor.ErrRender}
	out, err := f.svc.SubmitSignature(ctx, req.Signatures[0].Token, SubmitInput{SignerName: "Alice", Values: values()})
	require.NoError(t, err)
	assert.True(t, out.Completed)
	doc, err := f.repo.GetByID(ctx, f.doc.ID)
	require.NoError(t, err)
	assert.False(t, doc.HasFinal())

	_, err = f.svc.RetryFinalize(ctx, "intruder", f.doc.ID)
	require.ErrorIs(t, err, apperr.ErrForbidden)

	f.svc.Final = &stubRenderer{}
	doc, err = f.svc.RetryFinalize(ctx, ownerID, f.doc.ID)
	require.NoError(t, err)
	assert.True(t, doc.HasFinal())

	again, err := f.svc.RetryFinalize(ctx, ownerID, f.doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.FinalKey, again.FinalKey)
	assert.Equal(t, int32(1), f.svc.Final.(*stubRenderer).calls.Load())
}

func TestLookupShowsApplicableRegions(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	req := f.request(t, 2)

	first, err := f.svc.Lookup(ctx, req.Signatures[0].Token)
	require.NoError(t, err)
	assert.Equal(t, "Lease", first.DocumentTitle)
	assert.Len(t, first.Regions, 2)
	assert.Equal(t, signing.AggregateIncomplete, first.Aggregate)
	assert.Len(t, first.Members, 2)

	second, err := f.svc.Lookup(ctx, req.Signatures[1].Token)
	require.NoError(t, err)
	assert.Len(t, second.Regions, 3)

	data, name, err := f.svc.OpenDocument(ctx, req.Signatures[0].Token)
	require.NoError(t, err)
	assert.Equal(t, "lease.pdf", name)
	assert.Equal(t, pdftest.Build(pdftest.Letter), data)
}
