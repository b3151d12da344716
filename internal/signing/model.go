package signing

import (
	"encoding/json"
	"time"

	"esign-backend/internal/regions"
)

// Status is the lifecycle state of one signer's record.
type Status string

const (
	StatusPending Status = "pending"
	StatusSigned  Status = "signed"
	StatusDeleted Status = "deleted"
)

// Aggregate is the derived state of a whole request.
type Aggregate string

const (
	AggregateIncomplete Aggregate = "incomplete"
	AggregateComplete   Aggregate = "complete"
	AggregateDeleted    Aggregate = "deleted"
)

// Value is one submitted region value. Signature data is a base64 image,
// optionally with a data URL prefix; text regions carry plain text.
type Value struct {
	Type regions.Type `json:"type"`
	Data string       `json:"data"`
}

// Values maps region id to the submitted value.
type Values map[string]Value

// Signature is one signer's participation in a request.
type Signature struct {
	ID                string     `json:"id"`
	DocumentID        string     `json:"documentId"`
	RequestID         string     `json:"requestId"`
	SignerIndex       int        `json:"signerIndex"`
	SignerEmail       string     `json:"signerEmail"`
	SignerName        string     `json:"signerName,omitempty"`
	Status            Status     `json:"status"`
	SignedAt          *time.Time `json:"signedAt,omitempty"`
	Values            Values     `json:"-"`
	SignedDocumentKey string     `json:"-"`
	Token             string     `json:"-"`
	CreatedAt         time.Time  `json:"createdAt"`
}

// Signer is an invitee supplied when a request is created.
type Signer struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// MarshalValues encodes values for storage.
func MarshalValues(v Values) ([]byte, error) {
	if len(v) == 0 {
		return nil, nil
	}
	return json.Marshal(v)
}

// UnmarshalValues decodes stored values; empty input yields nil.
func UnmarshalValues(raw []byte) (Values, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v Values
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}
