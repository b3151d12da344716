// Package workflow runs signature requests end to end: creation and
// invitations, per-signer submissions, the final merge and cancellation.
package workflow

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"esign-backend/internal/compositor"
	"esign-backend/internal/documents"
	"esign-backend/internal/notify"
	"esign-backend/internal/regions"
	"esign-backend/internal/shared/apperr"
	"esign-backend/internal/shared/metrics"
	"esign-backend/internal/shared/storage/object"
	"esign-backend/internal/shared/telemetry"
	"esign-backend/internal/signing"
	"esign-backend/internal/usage"
)

// Renderer draws placements onto a PDF.
type Renderer interface {
	Render(ctx context.Context, original []byte, placements []signing.Placement) (compositor.Result, error)
}

// Meter charges one unit per completed signature.
type Meter interface {
	RecordCompletion(ctx context.Context, ownerID, documentID, signatureID string) (usage.Result, error)
}

// Directory resolves a user's notification address.
type Directory interface {
	Contact(ctx context.Context, userID string) (email, name string, err error)
}

// ErrNotCompleted is returned when finalizing a document that still waits on signers.
var ErrNotCompleted = apperr.New(apperr.ErrConflict, "invalid_state", "document is not completed yet")

// Service orchestrates signature requests.
type Service struct {
	Repo      documents.Repo
	Store     object.ObjectStore
	Signer    Renderer
	Final     Renderer
	Meter     Meter
	Notifier  notify.Notifier
	Directory Directory
	BaseURL   string
	Now       func() time.Time
}

// New wires a Service with the standard renderers: per-signer artifacts are
// anchored bottom-left, the final merge is centered.
func New(repo documents.Repo, store object.ObjectStore, meter Meter, notifier notify.Notifier, dir Directory, baseURL string) *Service {
	return &Service{
		Repo:      repo,
		Store:     store,
		Signer:    compositor.Renderer{Anchor: compositor.AnchorBottomLeft},
		Final:     compositor.Renderer{Anchor: compositor.AnchorCenter},
		Meter:     meter,
		Notifier:  notifier,
		Directory: dir,
		BaseURL:   strings.TrimRight(baseURL, "/"),
		Now:       time.Now,
	}
}

// SelfSign is the creator's own submission supplied with the request.
type SelfSign struct {
	SignerIndex int            `json:"signerIndex"`
	SignerName  string         `json:"signerName"`
	Values      signing.Values `json:"values"`
}

// CreateRequestInput describes a new signature request.
type CreateRequestInput struct {
	DocumentID string
	Signers    []signing.Signer
	SelfSign   *SelfSign
}

// RequestResult is the outcome of CreateRequest.
type RequestResult struct {
	RequestID            string              `json:"requestId"`
	Document             documents.Document  `json:"document"`
	Signatures           []signing.Signature `json:"signatures"`
	NotificationFailures int                 `json:"notificationFailures"`
}

// CreateRequest creates one signature per signer under a shared request id and
// invites every signer who has not already signed.
func (s *Service) CreateRequest(ctx context.Context, ownerID string, in CreateRequestInput) (RequestResult, error) {
	detail, err := s.Repo.GetDetail(ctx, in.DocumentID)
	if err != nil {
		return RequestResult{}, err
	}
	if detail.OwnerID != ownerID {
		return RequestResult{}, documents.ErrForbidden
	}
	if detail.Status == documents.StatusCompleted {
		return RequestResult{}, documents.ErrCompleted
	}
	if len(detail.Regions) == 0 {
		return RequestResult{}, apperr.Validation("document has no signing regions")
	}
	if len(in.Signers) != detail.NumberOfSigners {
		return RequestResult{}, apperr.Validation("document expects %d signers, got %d", detail.NumberOfSigners, len(in.Signers))
	}

	now := s.now()
	sigs, err := signing.NewRequest(detail.ID, in.Signers, now)
	if err != nil {
		return RequestResult{}, err
	}

	var selfKey string
	if in.SelfSign != nil {
		idx := in.SelfSign.SignerIndex
		if idx < 0 || idx >= len(sigs) {
			return RequestResult{}, apperr.Validation("selfSign.signerIndex must be in [0, %d)", len(sigs))
		}
		if strings.TrimSpace(in.SelfSign.SignerName) == "" {
			return RequestResult{}, apperr.Validation("selfSign.signerName is required")
		}
		if err := signing.ValidateValues(in.SelfSign.Values); err != nil {
			return RequestResult{}, err
		}
		sig := sigs[idx]
		sig.Values = in.SelfSign.Values
		selfKey, err = s.renderSigner(ctx, detail, sig)
		if err != nil {
			return RequestResult{}, err
		}
		sigs[idx], err = signing.MarkSigned(sigs[idx], in.SelfSign.SignerName, in.SelfSign.Values, selfKey, now)
		if err != nil {
			s.deleteBlob(ctx, selfKey)
			return RequestResult{}, err
		}
	}

	// The layout read above must still hold under the document lock.
	doc, err := s.Repo.CreateRequest(ctx, detail.ID, sigs, func(locked documents.Detail) error {
		if !regions.SameLayout(detail.Regions, locked.Regions) {
			return documents.ErrLayoutChanged
		}
		return nil
	})
	if err != nil {
		s.deleteBlob(ctx, selfKey)
		return RequestResult{}, err
	}
	metrics.IncRequestsCreated()
	requestID := sigs[0].RequestID
	telemetry.Info("workflow.request_created", map[string]any{
		"document_id": doc.ID,
		"request_id":  requestID,
		"signers":     len(sigs),
		"self_signed": in.SelfSign != nil,
	})

	if in.SelfSign != nil {
		s.meter(ctx, doc.OwnerID, doc.ID, sigs[in.SelfSign.SignerIndex].ID)
	}

	_, ownerName := s.contact(ctx, ownerID)
	var invites []notify.Message
	for _, sig := range sigs {
		if sig.Status != signing.StatusPending {
			continue
		}
		invites = append(invites, notify.Message{
			Kind:          notify.KindSigningRequest,
			DocumentID:    doc.ID,
			Recipient:     sig.SignerEmail,
			RecipientName: sig.SignerName,
			SenderName:    ownerName,
			DocumentTitle: doc.Title,
			Link:          s.signingLink(sig.Token),
		})
	}
	failures := notify.Broadcast(ctx, s.Notifier, invites)

	if doc.Status == documents.StatusCompleted {
		metrics.IncDocumentsCompleted()
		if err := s.finalize(ctx, doc.ID); err != nil {
			s.logFinalizeFailure(doc.ID, err)
		}
	}

	return RequestResult{
		RequestID:            requestID,
		Document:             doc,
		Signatures:           sigs,
		NotificationFailures: len(failures),
	}, nil
}

// SubmitInput is one signer's submission.
type SubmitInput struct {
	SignerName string
	SignerDate string
	Values     signing.Values
}

// SubmitResult is the outcome of SubmitSignature.
type SubmitResult struct {
	Signature signing.Signature `json:"signature"`
	Completed bool              `json:"completed"`
}

// SubmitSignature renders and records one signer's submission. When it is the
// last one outstanding, the document is finalized.
func (s *Service) SubmitSignature(ctx context.Context, token string, in SubmitInput) (SubmitResult, error) {
	if strings.TrimSpace(in.SignerName) == "" {
		return SubmitResult{}, apperr.Validation("signerName is required")
	}
	if err := signing.ValidateValues(in.Values); err != nil {
		return SubmitResult{}, err
	}
	sig, err := s.Repo.GetSignatureByToken(ctx, token)
	if err != nil {
		return SubmitResult{}, err
	}
	if err := signing.CheckSubmittable(sig); err != nil {
		return SubmitResult{}, err
	}
	detail, err := s.Repo.GetDetail(ctx, sig.DocumentID)
	if err != nil {
		return SubmitResult{}, err
	}

	sig.Values = in.Values
	key, err := s.renderSigner(ctx, detail, sig)
	if err != nil {
		return SubmitResult{}, err
	}
	out, err := s.Repo.RecordSignature(ctx, documents.SignedUpdate{
		SignatureID: sig.ID,
		SignerName:  in.SignerName,
		Values:      in.Values,
		ArtifactKey: key,
		SignedAt:    s.now(),
	})
	if err != nil {
		s.deleteBlob(ctx, key)
		return SubmitResult{}, err
	}
	metrics.IncSignaturesSubmitted()
	telemetry.Info("workflow.signature_recorded", map[string]any{
		"document_id":  sig.DocumentID,
		"request_id":   sig.RequestID,
		"signer_index": sig.SignerIndex,
		"signer_date":  in.SignerDate,
		"completed":    out.Completed,
	})

	s.meter(ctx, detail.OwnerID, detail.ID, sig.ID)

	if out.Completed {
		metrics.IncDocumentsCompleted()
		if err := s.finalize(ctx, detail.ID); err != nil {
			s.logFinalizeFailure(detail.ID, err)
		}
	}
	return SubmitResult{Signature: out.Signature, Completed: out.Completed}, nil
}

// RetryFinalize re-runs the final merge for a completed document that has no
// merged artifact yet. It is a no-op when the artifact exists.
func (s *Service) RetryFinalize(ctx context.Context, ownerID, documentID string) (documents.Document, error) {
	doc, err := s.Repo.GetByID(ctx, documentID)
	if err != nil {
		return documents.Document{}, err
	}
	if doc.OwnerID != ownerID {
		return documents.Document{}, documents.ErrForbidden
	}
	if doc.Status != documents.StatusCompleted {
		return documents.Document{}, ErrNotCompleted
	}
	if !doc.HasFinal() {
		if err := s.finalize(ctx, documentID); err != nil {
			s.logFinalizeFailure(documentID, err)
			return documents.Document{}, err
		}
	}
	return s.Repo.GetByID(ctx, documentID)
}

// DeleteRequest cancels a request that nobody has signed yet.
func (s *Service) DeleteRequest(ctx context.Context, ownerID, requestID string) error {
	members, err := s.Repo.DeleteRequest(ctx, requestID, func(doc documents.Document, members []signing.Signature) error {
		if doc.OwnerID != ownerID {
			return documents.ErrForbidden
		}
		return signing.CheckDeletable(members)
	})
	if err != nil {
		return err
	}
	telemetry.Info("workflow.request_deleted", map[string]any{
		"document_id": members[0].DocumentID,
		"request_id":  requestID,
		"members":     len(members),
	})
	return nil
}

// SigningView is what an external signer sees for a token.
type SigningView struct {
	DocumentID    string                `json:"documentId"`
	DocumentTitle string                `json:"documentTitle"`
	PageCount     int                   `json:"pageCount"`
	Signature     signing.Signature     `json:"signature"`
	Regions       []documents.RegionDTO `json:"regions"`
	Aggregate     signing.Aggregate     `json:"aggregate"`
	Members       []signing.Signature   `json:"members"`
}

// Lookup resolves a signing token for display. Deleted requests are gone.
func (s *Service) Lookup(ctx context.Context, token string) (SigningView, error) {
	sig, detail, err := s.resolveToken(ctx, token)
	if err != nil {
		return SigningView{}, err
	}
	applicable := regions.SelectApplicable(detail.Regions, sig.SignerIndex)
	dtos := make([]documents.RegionDTO, 0, len(applicable))
	for _, r := range applicable {
		dtos = append(dtos, documents.RegionToDTO(r))
	}
	var members []signing.Signature
	for _, m := range detail.Signatures {
		if m.RequestID == sig.RequestID {
			members = append(members, m)
		}
	}
	return SigningView{
		DocumentID:    detail.ID,
		DocumentTitle: detail.Title,
		PageCount:     detail.PageCount,
		Signature:     sig,
		Regions:       dtos,
		Aggregate:     signing.AggregateOf(members),
		Members:       members,
	}, nil
}

// OpenDocument returns the PDF a signer should view: their own signed copy
// once they have signed, the original otherwise.
func (s *Service) OpenDocument(ctx context.Context, token string) ([]byte, string, error) {
	sig, detail, err := s.resolveToken(ctx, token)
	if err != nil {
		return nil, "", err
	}
	key, name := detail.OriginalKey, detail.FileName
	if sig.Status == signing.StatusSigned && sig.SignedDocumentKey != "" {
		key, name = sig.SignedDocumentKey, documents.SignedFileName(detail.FileName)
	}
	data, err := object.ReadAll(ctx, s.Store, key)
	if err != nil {
		return nil, "", fmt.Errorf("load document: %w", err)
	}
	return data, name, nil
}

func (s *Service) resolveToken(ctx context.Context, token string) (signing.Signature, documents.Detail, error) {
	sig, err := s.Repo.GetSignatureByToken(ctx, token)
	if err != nil {
		return signing.Signature{}, documents.Detail{}, err
	}
	if sig.Status == signing.StatusDeleted {
		return signing.Signature{}, documents.Detail{}, signing.ErrRequestDeleted
	}
	detail, err := s.Repo.GetDetail(ctx, sig.DocumentID)
	if err != nil {
		return signing.Signature{}, documents.Detail{}, err
	}
	return sig, detail, nil
}

// renderSigner draws one signer's values onto the original and stores the
// result, returning its key.
func (s *Service) renderSigner(ctx context.Context, detail documents.Detail, sig signing.Signature) (string, error) {
	original, err := object.ReadAll(ctx, s.Store, detail.OriginalKey)
	if err != nil {
		return "", fmt.Errorf("load original: %w", err)
	}
	res, err := s.Signer.Render(ctx, original, signing.Placements(detail.Regions, sig))
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("signer-%d-%s", sig.SignerIndex, documents.SignedFileName(detail.FileName))
	key, _, _, err := s.Store.Save(ctx, "signed/"+detail.ID, name, bytes.NewReader(res.PDF))
	if err != nil {
		return "", fmt.Errorf("store signer artifact: %w", err)
	}
	return key, nil
}

func (s *Service) meter(ctx context.Context, ownerID, documentID, signatureID string) {
	if s.Meter == nil {
		return
	}
	if _, err := s.Meter.RecordCompletion(ctx, ownerID, documentID, signatureID); err != nil {
		metrics.IncMeterFailed()
		telemetry.Warn("workflow.meter_failed", map[string]any{
			"owner_id":     ownerID,
			"document_id":  documentID,
			"signature_id": signatureID,
			"error":        err,
		})
	}
}

func (s *Service) contact(ctx context.Context, userID string) (string, string) {
	if s.Directory == nil {
		return "", ""
	}
	email, name, err := s.Directory.Contact(ctx, userID)
	if err != nil {
		telemetry.Warn("workflow.owner_contact_missing", map[string]any{"owner_id": userID, "error": err})
		return "", ""
	}
	return email, name
}

func (s *Service) signingLink(token string) string {
	return s.BaseURL + "/sign/" + token
}

func (s *Service) deleteBlob(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.Store.Delete(ctx, key); err != nil {
		telemetry.Warn("workflow.blob_delete_failed", map[string]any{"key": key, "error": err})
	}
}

func (s *Service) logFinalizeFailure(documentID string, err error) {
	metrics.IncFinalizeFailed()
	telemetry.Error("workflow.finalize_failed", map[string]any{"document_id": documentID, "error": err})
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
