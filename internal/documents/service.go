package documents

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"esign-backend/internal/compositor"
	"esign-backend/internal/regions"
	"esign-backend/internal/shared/apperr"
	"esign-backend/internal/shared/storage/object"
	"esign-backend/internal/shared/telemetry"
	"esign-backend/internal/shared/util"
)

// DefaultMaxUploadBytes caps uploads when the service is not configured.
const DefaultMaxUploadBytes = 10 << 20

// Download variants.
const (
	VariantOriginal = "original"
	VariantFinal    = "final"
)

// Service contains owner-facing document operations.
type Service struct {
	Store          object.ObjectStore
	Repo           Repo
	MaxUploadBytes int64
	Now            func() time.Time
}

// UploadInput describes an uploaded file.
type UploadInput struct {
	Title    string
	FileName string
	Body     io.Reader
}

// Upload validates the file as a PDF, stores it and records a draft document.
func (s *Service) Upload(ctx context.Context, ownerID string, in UploadInput) (Document, error) {
	if strings.TrimSpace(in.FileName) == "" || in.Body == nil {
		return Document{}, apperr.Validation("file is required")
	}
	fileName, err := util.SanitizeFileName(in.FileName)
	if err != nil {
		return Document{}, apperr.Validation("invalid file name %q", in.FileName)
	}
	limit := s.MaxUploadBytes
	if limit <= 0 {
		limit = DefaultMaxUploadBytes
	}
	data, err := io.ReadAll(io.LimitReader(in.Body, limit+1))
	if err != nil {
		return Document{}, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > limit {
		return Document{}, ErrUploadTooLarge
	}
	info, err := compositor.Inspect(data)
	if err != nil {
		if errors.Is(err, compositor.ErrNotPDF) {
			return Document{}, ErrInvalidUpload
		}
		return Document{}, err
	}

	key, size, _, err := s.Store.Save(ctx, "documents/"+ownerID, fileName, bytes.NewReader(data))
	if err != nil {
		return Document{}, fmt.Errorf("store upload: %w", err)
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = strings.TrimSuffix(fileName, filepath.Ext(fileName))
	}
	now := s.now()
	doc := Document{
		ID:              uuid.NewString(),
		OwnerID:         ownerID,
		Title:           title,
		FileName:        fileName,
		MimeType:        "application/pdf",
		SizeBytes:       size,
		PageCount:       info.PageCount,
		OriginalKey:     key,
		NumberOfSigners: 1,
		Status:          StatusDraft,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.Repo.Create(ctx, doc); err != nil {
		s.deleteBlob(ctx, key)
		return Document{}, err
	}
	telemetry.Info("document.uploaded", map[string]any{
		"document_id": doc.ID,
		"owner_id":    ownerID,
		"pages":       doc.PageCount,
		"size_bytes":  size,
	})
	return doc, nil
}

// List returns one page of the owner's documents.
func (s *Service) List(ctx context.Context, ownerID string, limit, offset int) ([]Detail, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.Repo.ListByOwner(ctx, ownerID, limit, offset)
}

// Get returns the owner's document with regions and live signatures.
func (s *Service) Get(ctx context.Context, ownerID, documentID string) (Detail, error) {
	detail, err := s.Repo.GetDetail(ctx, documentID)
	if err != nil {
		return Detail{}, err
	}
	if detail.OwnerID != ownerID {
		return Detail{}, ErrForbidden
	}
	return detail, nil
}

// ReplaceLayout validates and stores a full region layout. Any existing
// signature request on the document is discarded along with its signed
// artifacts; blob failures are logged only.
func (s *Service) ReplaceLayout(ctx context.Context, ownerID, documentID string, numberOfSigners int, rs []regions.Region) (Detail, error) {
	doc, err := s.Repo.GetByID(ctx, documentID)
	if err != nil {
		return Detail{}, err
	}
	if doc.OwnerID != ownerID {
		return Detail{}, ErrForbidden
	}
	valid, err := regions.ValidateLayout(documentID, rs, numberOfSigners, doc.PageCount)
	if err != nil {
		return Detail{}, err
	}
	dropped, err := s.Repo.ReplaceLayout(ctx, documentID, numberOfSigners, valid)
	if err != nil {
		return Detail{}, err
	}
	for _, key := range dropped {
		s.deleteBlob(ctx, key)
	}
	if len(dropped) > 0 {
		telemetry.Info("document.layout_reset", map[string]any{
			"document_id":       documentID,
			"dropped_artifacts": len(dropped),
		})
	}
	return s.Repo.GetDetail(ctx, documentID)
}

// Delete removes a document that is not waiting on signers, then cleans up
// its blobs. Blob failures are logged only.
func (s *Service) Delete(ctx context.Context, ownerID, documentID string) error {
	removed, err := s.Repo.Delete(ctx, documentID, func(d Detail) error {
		if d.OwnerID != ownerID {
			return ErrForbidden
		}
		return CheckDeletable(d.Document, d.Signatures)
	})
	if err != nil {
		return err
	}
	s.deleteBlob(ctx, removed.OriginalKey)
	s.deleteBlob(ctx, removed.FinalKey)
	for _, sig := range removed.Signatures {
		s.deleteBlob(ctx, sig.SignedDocumentKey)
	}
	telemetry.Info("document.deleted", map[string]any{"document_id": documentID, "owner_id": ownerID})
	return nil
}

// Download opens the requested variant. An empty variant prefers the final
// artifact and falls back to the original.
func (s *Service) Download(ctx context.Context, ownerID, documentID, variant string) (io.ReadCloser, string, error) {
	doc, err := s.Repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, "", err
	}
	if doc.OwnerID != ownerID {
		return nil, "", ErrForbidden
	}
	key, name := doc.OriginalKey, doc.FileName
	switch strings.ToLower(strings.TrimSpace(variant)) {
	case VariantOriginal:
	case VariantFinal:
		if !doc.HasFinal() {
			return nil, "", ErrNoFinal
		}
		key, name = doc.FinalKey, SignedFileName(doc.FileName)
	case "":
		if doc.HasFinal() {
			key, name = doc.FinalKey, SignedFileName(doc.FileName)
		}
	default:
		return nil, "", apperr.Validation("variant must be %q or %q", VariantOriginal, VariantFinal)
	}
	rc, err := s.Store.Open(ctx, key)
	if errors.Is(err, object.ErrNotFound) {
		return nil, "", apperr.New(apperr.ErrNotFound, "not_found", "file is missing from storage")
	}
	if err != nil {
		return nil, "", err
	}
	return rc, name, nil
}

// SignedFileName names the merged artifact after the original upload.
func SignedFileName(fileName string) string {
	base := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	if base == "" {
		base = "document"
	}
	return base + "-signed.pdf"
}

func (s *Service) deleteBlob(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.Store.Delete(ctx, key); err != nil && !errors.Is(err, object.ErrNotFound) {
		telemetry.Warn("document.blob_delete_failed", map[string]any{"key": key, "error": err})
	}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
