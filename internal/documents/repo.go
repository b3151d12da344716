package documents

import (
	"context"

	"esign-backend/internal/regions"
	"esign-backend/internal/signing"
)

// Repo is the transactional record store for documents, their regions and
// their signatures.
type Repo interface {
	Create(ctx context.Context, doc Document) error
	GetByID(ctx context.Context, documentID string) (Document, error)
	GetDetail(ctx context.Context, documentID string) (Detail, error)
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]Detail, error)
	// Delete runs guard against the locked document and removes it with its
	// regions and signatures. It returns what was removed.
	Delete(ctx context.Context, documentID string, guard func(Detail) error) (Detail, error)

	// ReplaceLayout swaps every region, drops every signature row and resets
	// the document to draft in one transaction. It returns the signed artifact
	// keys of the dropped rows so the caller can remove the blobs.
	ReplaceLayout(ctx context.Context, documentID string, numberOfSigners int, rs []regions.Region) ([]string, error)

	// CreateRequest inserts the members of a new request and moves the
	// document to sent, or to completed when every member is already signed.
	// Against the locked document it requires at least one region and one
	// member per expected signer (ErrLayoutChanged otherwise), then runs guard
	// on the locked document and regions.
	CreateRequest(ctx context.Context, documentID string, sigs []signing.Signature, guard func(Detail) error) (Document, error)
	GetSignatureByToken(ctx context.Context, token string) (signing.Signature, error)
	ListRequest(ctx context.Context, requestID string) ([]signing.Signature, error)
	// RecordSignature marks one signature signed and re-checks the request
	// aggregate in the same transaction.
	RecordSignature(ctx context.Context, u SignedUpdate) (SignOutcome, error)
	// DeleteRequest runs guard against the locked members and marks pending
	// members deleted.
	DeleteRequest(ctx context.Context, requestID string, guard func(Document, []signing.Signature) error) ([]signing.Signature, error)
	// SetFinalFile stores the merged artifact key once. It reports whether this
	// call stored it.
	SetFinalFile(ctx context.Context, documentID, key string) (bool, error)
}
