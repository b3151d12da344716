package workflow

import (
	"bytes"
	"context"
	"fmt"

	"esign-backend/internal/documents"
	"esign-backend/internal/notify"
	"esign-backend/internal/shared/storage/object"
	"esign-backend/internal/shared/telemetry"
	"esign-backend/internal/signing"
)

// finalize merges every member's values onto the original, stores the result
// as the document's final file and mails it to the owner and the signers.
// Repeated or concurrent calls produce at most one final file.
func (s *Service) finalize(ctx context.Context, documentID string) error {
	detail, err := s.Repo.GetDetail(ctx, documentID)
	if err != nil {
		return err
	}
	if detail.Status != documents.StatusCompleted || detail.HasFinal() {
		return nil
	}

	original, err := object.ReadAll(ctx, s.Store, detail.OriginalKey)
	if err != nil {
		return fmt.Errorf("load original: %w", err)
	}
	res, err := s.Final.Render(ctx, original, signing.MergedPlacements(detail.Regions, detail.Signatures))
	if err != nil {
		return err
	}
	name := documents.SignedFileName(detail.FileName)
	key, _, _, err := s.Store.Save(ctx, "final/"+detail.ID, name, bytes.NewReader(res.PDF))
	if err != nil {
		return fmt.Errorf("store final artifact: %w", err)
	}
	won, err := s.Repo.SetFinalFile(ctx, detail.ID, key)
	if err != nil {
		s.deleteBlob(ctx, key)
		return err
	}
	if !won {
		s.deleteBlob(ctx, key)
		return nil
	}
	telemetry.Info("workflow.finalized", map[string]any{
		"document_id": detail.ID,
		"drawn":       res.Drawn,
		"skipped":     len(res.Skipped),
	})

	notify.Broadcast(ctx, s.Notifier, s.completionNotices(ctx, detail, key, name))
	return nil
}

func (s *Service) completionNotices(ctx context.Context, detail documents.Detail, key, name string) []notify.Message {
	ownerEmail, ownerName := s.contact(ctx, detail.OwnerID)
	base := notify.Message{
		Kind:           notify.KindCompleted,
		DocumentID:     detail.ID,
		SenderName:     ownerName,
		DocumentTitle:  detail.Title,
		AttachmentKey:  key,
		AttachmentName: name,
	}
	var msgs []notify.Message
	if ownerEmail != "" {
		m := base
		m.Recipient = ownerEmail
		m.RecipientName = ownerName
		m.Link = s.BaseURL + "/documents/" + detail.ID
		msgs = append(msgs, m)
	}
	for _, sig := range detail.Signatures {
		if sig.Status != signing.StatusSigned {
			continue
		}
		m := base
		m.Recipient = sig.SignerEmail
		m.RecipientName = sig.SignerName
		m.Link = s.signingLink(sig.Token)
		msgs = append(msgs, m)
	}
	return notify.DedupeByRecipient(msgs)
}
