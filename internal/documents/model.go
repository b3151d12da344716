package documents

import (
	"time"

	"esign-backend/internal/regions"
	"esign-backend/internal/signing"
)

// Status is the document lifecycle state.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSent      Status = "sent"
	StatusCompleted Status = "completed"
)

// Document is an uploaded PDF owned by one user.
type Document struct {
	ID              string    `json:"id"`
	OwnerID         string    `json:"ownerId"`
	Title           string    `json:"title"`
	FileName        string    `json:"fileName"`
	MimeType        string    `json:"mimeType"`
	SizeBytes       int64     `json:"sizeBytes"`
	PageCount       int       `json:"pageCount"`
	OriginalKey     string    `json:"-"`
	FinalKey        string    `json:"-"`
	NumberOfSigners int       `json:"numberOfSigners"`
	Status          Status    `json:"status"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// HasFinal reports whether the merged artifact has been stored.
func (d Document) HasFinal() bool {
	return d.FinalKey != ""
}

// Detail is a document with its layout and live (non-deleted) signatures.
type Detail struct {
	Document
	Regions    []regions.Region    `json:"regions"`
	Signatures []signing.Signature `json:"signatures"`
}

// CheckDeletable allows deletion of drafts, completed documents, and documents
// whose every live signature is signed.
func CheckDeletable(doc Document, sigs []signing.Signature) error {
	if doc.Status == StatusDraft || doc.Status == StatusCompleted {
		return nil
	}
	for _, s := range sigs {
		if s.Status == signing.StatusDeleted {
			continue
		}
		if s.Status != signing.StatusSigned {
			return ErrInFlight
		}
	}
	return nil
}

// SignedUpdate is a validated submission to record against one signature.
type SignedUpdate struct {
	SignatureID string
	SignerName  string
	Values      signing.Values
	ArtifactKey string
	SignedAt    time.Time
}

// SignOutcome is the state after a submission was recorded. Completed is true
// only for the one submission that moved the document to completed.
type SignOutcome struct {
	Signature signing.Signature
	Members   []signing.Signature
	Completed bool
}
