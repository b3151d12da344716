// Package signing holds the per-signer state machine and the derived
// request aggregate. Transitions are pending to signed or pending to deleted;
// nothing leaves a terminal state and signers are never ordered.
package signing

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/mail"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"esign-backend/internal/regions"
	"esign-backend/internal/shared/apperr"
)

// CheckSubmittable guards the pending to signed transition.
func CheckSubmittable(sig Signature) error {
	switch sig.Status {
	case StatusPending:
		return nil
	case StatusSigned:
		return ErrAlreadySigned
	case StatusDeleted:
		return ErrRequestDeleted
	default:
		return fmt.Errorf("signature %s: unknown status %q", sig.ID, sig.Status)
	}
}

// CheckDeletable guards the bulk pending to deleted transition of a request.
func CheckDeletable(members []Signature) error {
	if len(members) == 0 {
		return ErrNotFound
	}
	deleted := 0
	for _, m := range members {
		switch m.Status {
		case StatusSigned:
			return ErrRequestHasSignatures
		case StatusDeleted:
			deleted++
		}
	}
	if deleted == len(members) {
		return ErrRequestDeleted
	}
	return nil
}

// AggregateOf derives the request state from its members.
func AggregateOf(members []Signature) Aggregate {
	if len(members) == 0 {
		return AggregateIncomplete
	}
	signed, deleted := 0, 0
	for _, m := range members {
		switch m.Status {
		case StatusSigned:
			signed++
		case StatusDeleted:
			deleted++
		}
	}
	switch {
	case signed == len(members):
		return AggregateComplete
	case deleted == len(members):
		return AggregateDeleted
	default:
		return AggregateIncomplete
	}
}

// MarkSigned applies a validated submission to a pending record.
func MarkSigned(sig Signature, name string, values Values, artifactKey string, at time.Time) (Signature, error) {
	if err := CheckSubmittable(sig); err != nil {
		return Signature{}, err
	}
	t := at.UTC()
	sig.Status = StatusSigned
	sig.SignedAt = &t
	sig.Values = values
	sig.SignedDocumentKey = artifactKey
	if strings.TrimSpace(name) != "" {
		sig.SignerName = strings.TrimSpace(name)
	}
	return sig, nil
}

// ValidateValues rejects empty payloads and values with unknown types or no data.
func ValidateValues(values Values) error {
	if len(values) == 0 {
		return apperr.Validation("at least one region value is required")
	}
	for id, v := range values {
		if strings.TrimSpace(id) == "" {
			return apperr.Validation("region id is required")
		}
		if !v.Type.Valid() {
			return apperr.Validation("region %s: unknown value type %q", id, v.Type)
		}
		if strings.TrimSpace(v.Data) == "" {
			return apperr.Validation("region %s: value is empty", id)
		}
	}
	return nil
}

// NewRequest builds the pending records of one request: a shared request id,
// sequential signer indexes and one signing token per signer.
func NewRequest(documentID string, signers []Signer, now time.Time) ([]Signature, error) {
	if len(signers) == 0 {
		return nil, apperr.Validation("at least one signer is required")
	}
	requestID := uuid.NewString()
	seen := make(map[string]struct{}, len(signers))
	out := make([]Signature, 0, len(signers))
	for i, s := range signers {
		email := strings.ToLower(strings.TrimSpace(s.Email))
		if _, err := mail.ParseAddress(email); err != nil || email == "" {
			return nil, apperr.Validation("signer %d: invalid email %q", i, s.Email)
		}
		if _, dup := seen[email]; dup {
			return nil, apperr.Validation("signer %d: duplicate email %q", i, email)
		}
		seen[email] = struct{}{}
		token, err := NewToken()
		if err != nil {
			return nil, err
		}
		out = append(out, Signature{
			ID:          uuid.NewString(),
			DocumentID:  documentID,
			RequestID:   requestID,
			SignerIndex: i,
			SignerEmail: email,
			SignerName:  strings.TrimSpace(s.Name),
			Status:      StatusPending,
			Token:       token,
			CreatedAt:   now.UTC(),
		})
	}
	return out, nil
}

// NewToken returns a 256-bit random url-safe signing token.
func NewToken() (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("generate signing token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b[:]), nil
}

// Placements pairs this signer's applicable regions with their submitted values.
// Regions without a value are left out.
func Placements(rs []regions.Region, sig Signature) []Placement {
	applicable := regions.SelectApplicable(rs, sig.SignerIndex)
	out := make([]Placement, 0, len(applicable))
	for _, r := range applicable {
		v, ok := sig.Values[r.ID]
		if !ok {
			continue
		}
		out = append(out, Placement{Region: r, Value: v})
	}
	return out
}

// MergedPlacements collects placements of every signed member, in signer order.
func MergedPlacements(rs []regions.Region, members []Signature) []Placement {
	ordered := append([]Signature(nil), members...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].SignerIndex < ordered[j].SignerIndex })
	var out []Placement
	for _, m := range ordered {
		if m.Status != StatusSigned {
			continue
		}
		out = append(out, Placements(rs, m)...)
	}
	return out
}

// Placement is a region paired with the value drawn into it.
type Placement struct {
	Region regions.Region
	Value  Value
}
