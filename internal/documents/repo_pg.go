package documents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"esign-backend/internal/regions"
	"esign-backend/internal/shared/storage/db"
	"esign-backend/internal/signing"
)

// PGRepo implements Repo using Postgres. Operations that touch signatures lock
// the parent document row first so concurrent submissions serialize per document.
type PGRepo struct {
	DB *sql.DB
}

const documentColumns = `id, owner_id, title, file_name, mime_type, size_bytes, page_count, original_key, final_key, number_of_signers, status, created_at, updated_at`

const signatureColumns = `id, document_id, request_id, signer_index, signer_email, signer_name, status, signed_at, signature_data, signed_document_key, token, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// Create inserts a new document.
func (r *PGRepo) Create(ctx context.Context, doc Document) error {
	const query = `
INSERT INTO documents (id, owner_id, title, file_name, mime_type, size_bytes, page_count, original_key, number_of_signers, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := r.DB.ExecContext(ctx, query,
		doc.ID,
		doc.OwnerID,
		doc.Title,
		doc.FileName,
		doc.MimeType,
		doc.SizeBytes,
		doc.PageCount,
		doc.OriginalKey,
		doc.NumberOfSigners,
		string(doc.Status),
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	return err
}

// GetByID returns a document by ID.
func (r *PGRepo) GetByID(ctx context.Context, documentID string) (Document, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, documentID)
	return scanDocument(row)
}

// GetDetail returns a document with its regions and live signatures.
func (r *PGRepo) GetDetail(ctx context.Context, documentID string) (Detail, error) {
	doc, err := r.GetByID(ctx, documentID)
	if err != nil {
		return Detail{}, err
	}
	rs, err := listRegions(ctx, r.DB, documentID)
	if err != nil {
		return Detail{}, err
	}
	sigs, err := liveSignatures(ctx, r.DB, documentID)
	if err != nil {
		return Detail{}, err
	}
	return Detail{Document: doc, Regions: rs, Signatures: sigs}, nil
}

// ListByOwner returns one page of the owner's documents, newest first.
func (r *PGRepo) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]Detail, error) {
	const query = `SELECT ` + documentColumns + `
FROM documents
WHERE owner_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3`
	rows, err := r.DB.QueryContext(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	out := make([]Detail, 0, len(docs))
	for _, doc := range docs {
		sigs, err := liveSignatures(ctx, r.DB, doc.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, Detail{Document: doc, Signatures: sigs})
	}
	return out, nil
}

// Delete removes a document after guard accepts its locked state. Regions and
// signatures go with it through ON DELETE CASCADE.
func (r *PGRepo) Delete(ctx context.Context, documentID string, guard func(Detail) error) (Detail, error) {
	var detail Detail
	err := db.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		doc, err := lockDocument(ctx, tx, documentID)
		if err != nil {
			return err
		}
		sigs, err := liveSignatures(ctx, tx, documentID)
		if err != nil {
			return err
		}
		detail = Detail{Document: doc, Signatures: sigs}
		if guard != nil {
			if err := guard(detail); err != nil {
				return err
			}
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, documentID)
		return err
	})
	if err != nil {
		return Detail{}, err
	}
	return detail, nil
}

// ReplaceLayout swaps the region set and drops every signature of the
// document, returning the signed artifact keys of the dropped rows.
func (r *PGRepo) ReplaceLayout(ctx context.Context, documentID string, numberOfSigners int, rs []regions.Region) ([]string, error) {
	var dropped []string
	err := db.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		doc, err := lockDocument(ctx, tx, documentID)
		if err != nil {
			return err
		}
		if doc.Status == StatusCompleted {
			return ErrCompleted
		}
		dropped, err = deleteSignatures(ctx, tx, documentID)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM regions WHERE document_id = $1`, documentID); err != nil {
			return err
		}
		const insert = `
INSERT INTO regions (id, document_id, position, type, x, y, width, height, page_number, label, signer_index)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
		for i, reg := range rs {
			var signerIndex sql.NullInt64
			if reg.SignerIndex != nil {
				signerIndex = sql.NullInt64{Int64: int64(*reg.SignerIndex), Valid: true}
			}
			if _, err := tx.ExecContext(ctx, insert,
				reg.ID,
				documentID,
				i,
				string(reg.Type),
				reg.Geometry.X,
				reg.Geometry.Y,
				reg.Geometry.Width,
				reg.Geometry.Height,
				reg.Geometry.PageNumber,
				nullString(reg.Label),
				signerIndex,
			); err != nil {
				if isUniqueViolation(err) {
					return ErrDuplicateID
				}
				return fmt.Errorf("insert region %s: %w", reg.ID, err)
			}
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE documents SET number_of_signers = $2, status = 'draft', updated_at = now() WHERE id = $1`,
			documentID, numberOfSigners)
		return err
	})
	if err != nil {
		return nil, err
	}
	return dropped, nil
}

// CreateRequest inserts the request members and advances the document status.
func (r *PGRepo) CreateRequest(ctx context.Context, documentID string, sigs []signing.Signature, guard func(Detail) error) (Document, error) {
	var doc Document
	err := db.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		var err error
		doc, err = lockDocument(ctx, tx, documentID)
		if err != nil {
			return err
		}
		if doc.Status == StatusCompleted {
			return ErrCompleted
		}
		rs, err := listRegions(ctx, tx, documentID)
		if err != nil {
			return err
		}
		if len(rs) == 0 || len(sigs) != doc.NumberOfSigners {
			return ErrLayoutChanged
		}
		if guard != nil {
			if err := guard(Detail{Document: doc, Regions: rs}); err != nil {
				return err
			}
		}
		var pending int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM signatures WHERE document_id = $1 AND status = 'pending'`,
			documentID).Scan(&pending); err != nil {
			return err
		}
		if pending > 0 {
			return ErrActiveRequest
		}
		const insert = `
INSERT INTO signatures (id, document_id, request_id, signer_index, signer_email, signer_name, status, signed_at, signature_data, signed_document_key, token, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
		for _, s := range sigs {
			data, err := signing.MarshalValues(s.Values)
			if err != nil {
				return err
			}
			var signedAt sql.NullTime
			if s.SignedAt != nil {
				signedAt = sql.NullTime{Time: *s.SignedAt, Valid: true}
			}
			if _, err := tx.ExecContext(ctx, insert,
				s.ID,
				documentID,
				s.RequestID,
				s.SignerIndex,
				s.SignerEmail,
				nullString(s.SignerName),
				string(s.Status),
				signedAt,
				data,
				nullString(s.SignedDocumentKey),
				s.Token,
				s.CreatedAt,
			); err != nil {
				return fmt.Errorf("insert signature %d: %w", s.SignerIndex, err)
			}
		}
		doc.Status = StatusSent
		if signing.AggregateOf(sigs) == signing.AggregateComplete {
			doc.Status = StatusCompleted
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE documents SET status = $2, updated_at = now() WHERE id = $1`,
			documentID, string(doc.Status))
		return err
	})
	if err != nil {
		return Document{}, err
	}
	return doc, nil
}

// GetSignatureByToken resolves a signing token.
func (r *PGRepo) GetSignatureByToken(ctx context.Context, token string) (signing.Signature, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+signatureColumns+` FROM signatures WHERE token = $1`, token)
	return scanSignature(row)
}

// ListRequest returns every member of a request in signer order.
func (r *PGRepo) ListRequest(ctx context.Context, requestID string) ([]signing.Signature, error) {
	return querySignatures(ctx, r.DB,
		`SELECT `+signatureColumns+` FROM signatures WHERE request_id = $1 ORDER BY signer_index`, requestID)
}

// RecordSignature marks a signature signed and flips the document to completed
// when this was the last pending member.
func (r *PGRepo) RecordSignature(ctx context.Context, u SignedUpdate) (SignOutcome, error) {
	var out SignOutcome
	err := db.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		var documentID string
		err := tx.QueryRowContext(ctx, `SELECT document_id FROM signatures WHERE id = $1`, u.SignatureID).Scan(&documentID)
		if errors.Is(err, sql.ErrNoRows) {
			return signing.ErrNotFound
		}
		if err != nil {
			return err
		}
		doc, err := lockDocument(ctx, tx, documentID)
		if err != nil {
			return err
		}
		sig, err := scanSignature(tx.QueryRowContext(ctx,
			`SELECT `+signatureColumns+` FROM signatures WHERE id = $1 FOR UPDATE`, u.SignatureID))
		if err != nil {
			return err
		}
		signed, err := signing.MarkSigned(sig, u.SignerName, u.Values, u.ArtifactKey, u.SignedAt)
		if err != nil {
			return err
		}
		data, err := signing.MarshalValues(signed.Values)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
UPDATE signatures
SET status = 'signed', signer_name = $2, signed_at = $3, signature_data = $4, signed_document_key = $5
WHERE id = $1`,
			signed.ID, nullString(signed.SignerName), *signed.SignedAt, data, nullString(signed.SignedDocumentKey)); err != nil {
			return err
		}
		members, err := querySignatures(ctx, tx,
			`SELECT `+signatureColumns+` FROM signatures WHERE request_id = $1 ORDER BY signer_index`, signed.RequestID)
		if err != nil {
			return err
		}
		out = SignOutcome{Signature: signed, Members: members}
		if doc.Status != StatusCompleted && signing.AggregateOf(members) == signing.AggregateComplete {
			if _, err := tx.ExecContext(ctx,
				`UPDATE documents SET status = 'completed', updated_at = now() WHERE id = $1`, documentID); err != nil {
				return err
			}
			out.Completed = true
		}
		return nil
	})
	if err != nil {
		return SignOutcome{}, err
	}
	return out, nil
}

// DeleteRequest marks the pending members of a request deleted and returns the
// document to draft when it was waiting on them.
func (r *PGRepo) DeleteRequest(ctx context.Context, requestID string, guard func(Document, []signing.Signature) error) ([]signing.Signature, error) {
	var members []signing.Signature
	err := db.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		var documentID string
		err := tx.QueryRowContext(ctx,
			`SELECT document_id FROM signatures WHERE request_id = $1 LIMIT 1`, requestID).Scan(&documentID)
		if errors.Is(err, sql.ErrNoRows) {
			return signing.ErrNotFound
		}
		if err != nil {
			return err
		}
		doc, err := lockDocument(ctx, tx, documentID)
		if err != nil {
			return err
		}
		members, err = querySignatures(ctx, tx,
			`SELECT `+signatureColumns+` FROM signatures WHERE request_id = $1 ORDER BY signer_index FOR UPDATE`, requestID)
		if err != nil {
			return err
		}
		if guard != nil {
			if err := guard(doc, members); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE signatures SET status = 'deleted' WHERE request_id = $1 AND status = 'pending'`, requestID); err != nil {
			return err
		}
		if doc.Status == StatusSent {
			if _, err := tx.ExecContext(ctx,
				`UPDATE documents SET status = 'draft', updated_at = now() WHERE id = $1`, documentID); err != nil {
				return err
			}
		}
		for i := range members {
			if members[i].Status == signing.StatusPending {
				members[i].Status = signing.StatusDeleted
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return members, nil
}

// SetFinalFile stores the merged artifact key unless one is already set.
func (r *PGRepo) SetFinalFile(ctx context.Context, documentID, key string) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE documents SET final_key = $2, updated_at = now() WHERE id = $1 AND final_key IS NULL`,
		documentID, key)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func deleteSignatures(ctx context.Context, tx *sql.Tx, documentID string) ([]string, error) {
	rows, err := tx.QueryContext(ctx,
		`DELETE FROM signatures WHERE document_id = $1 RETURNING signed_document_key`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var key sql.NullString
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		if key.Valid && key.String != "" {
			keys = append(keys, key.String)
		}
	}
	return keys, rows.Err()
}

// isUniqueViolation matches Postgres SQLSTATE 23505.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func lockDocument(ctx context.Context, tx *sql.Tx, documentID string) (Document, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1 FOR UPDATE`, documentID)
	return scanDocument(row)
}

func listRegions(ctx context.Context, q querier, documentID string) ([]regions.Region, error) {
	rows, err := q.QueryContext(ctx, `
SELECT id, type, x, y, width, height, page_number, label, signer_index
FROM regions
WHERE document_id = $1
ORDER BY position`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []regions.Region{}
	for rows.Next() {
		var (
			reg         regions.Region
			typ         string
			label       sql.NullString
			signerIndex sql.NullInt64
		)
		if err := rows.Scan(
			&reg.ID,
			&typ,
			&reg.Geometry.X,
			&reg.Geometry.Y,
			&reg.Geometry.Width,
			&reg.Geometry.Height,
			&reg.Geometry.PageNumber,
			&label,
			&signerIndex,
		); err != nil {
			return nil, err
		}
		reg.DocumentID = documentID
		reg.Type = regions.Type(typ)
		reg.Label = label.String
		if signerIndex.Valid {
			idx := int(signerIndex.Int64)
			reg.SignerIndex = &idx
		}
		out = append(out, reg)
	}
	return out, rows.Err()
}

func liveSignatures(ctx context.Context, q querier, documentID string) ([]signing.Signature, error) {
	return querySignatures(ctx, q, `SELECT `+signatureColumns+`
FROM signatures
WHERE document_id = $1 AND status <> 'deleted'
ORDER BY created_at, request_id, signer_index`, documentID)
}

func querySignatures(ctx context.Context, q querier, query string, args ...any) ([]signing.Signature, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []signing.Signature{}
	for rows.Next() {
		sig, err := scanSignature(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}

func scanDocument(row rowScanner) (Document, error) {
	var (
		doc      Document
		finalKey sql.NullString
		status   string
	)
	err := row.Scan(
		&doc.ID,
		&doc.OwnerID,
		&doc.Title,
		&doc.FileName,
		&doc.MimeType,
		&doc.SizeBytes,
		&doc.PageCount,
		&doc.OriginalKey,
		&finalKey,
		&doc.NumberOfSigners,
		&status,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, err
	}
	doc.FinalKey = finalKey.String
	doc.Status = Status(status)
	return doc, nil
}

func scanSignature(row rowScanner) (signing.Signature, error) {
	var (
		sig      signing.Signature
		name     sql.NullString
		status   string
		signedAt sql.NullTime
		data     []byte
		key      sql.NullString
	)
	err := row.Scan(
		&sig.ID,
		&sig.DocumentID,
		&sig.RequestID,
		&sig.SignerIndex,
		&sig.SignerEmail,
		&name,
		&status,
		&signedAt,
		&data,
		&key,
		&sig.Token,
		&sig.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return signing.Signature{}, signing.ErrNotFound
	}
	if err != nil {
		return signing.Signature{}, err
	}
	sig.SignerName = name.String
	sig.Status = signing.Status(status)
	sig.SignedDocumentKey = key.String
	if signedAt.Valid {
		t := signedAt.Time.UTC()
		sig.SignedAt = &t
	}
	values, err := signing.UnmarshalValues(data)
	if err != nil {
		return signing.Signature{}, fmt.Errorf("decode signature %s values: %w", sig.ID, err)
	}
	sig.Values = values
	return sig, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

var _ Repo = (*PGRepo)(nil)
var _ Repo = (*MemoryRepo)(nil)
