// Package regions models the typed rectangles a document owner places on
// pages and the rules deciding which signer fills which rectangle.
package regions

import (
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"esign-backend/internal/shared/apperr"
)

// Type is the kind of value a region receives.
type Type string

const (
	TypeSignature Type = "signature"
	TypeName      Type = "name"
	TypeDate      Type = "date"
	TypeBusiness  Type = "business"
)

// Valid reports whether t is a known region type.
func (t Type) Valid() bool {
	switch t {
	case TypeSignature, TypeName, TypeDate, TypeBusiness:
		return true
	}
	return false
}

// IsText reports whether the region is filled with text rather than an image.
func (t Type) IsText() bool {
	return t == TypeName || t == TypeDate || t == TypeBusiness
}

// Geometry is stored with a top-left origin in page units.
type Geometry struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	PageNumber int     `json:"pageNumber"`
}

// Region is one placed rectangle. A nil SignerIndex means every signer fills it.
type Region struct {
	ID          string   `json:"id"`
	DocumentID  string   `json:"documentId"`
	Type        Type     `json:"type"`
	Geometry    Geometry `json:"geometry"`
	Label       string   `json:"label,omitempty"`
	SignerIndex *int     `json:"signerIndex"`
}

// AppliesTo reports whether the signer at index fills this region.
func (r Region) AppliesTo(index int) bool {
	return r.SignerIndex == nil || *r.SignerIndex == index
}

// ValidationError names the offending field.
type ValidationError struct {
	RegionID string
	Field    string
	Reason   string
}

func (e *ValidationError) Error() string {
	if e.RegionID != "" {
		return fmt.Sprintf("region %s: %s %s", e.RegionID, e.Field, e.Reason)
	}
	return fmt.Sprintf("region: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return apperr.ErrValidation
}

// Details is the error payload exposed to API clients.
func (e *ValidationError) Details() map[string]string {
	d := map[string]string{"field": e.Field, "reason": e.Reason}
	if e.RegionID != "" {
		d["regionId"] = e.RegionID
	}
	return d
}

// Validate checks a single region against the document's signer count.
func Validate(r Region, numberOfSigners int) (Region, error) {
	fail := func(field, reason string) (Region, error) {
		return Region{}, &ValidationError{RegionID: r.ID, Field: field, Reason: reason}
	}
	g := r.Geometry
	for name, v := range map[string]float64{"x": g.X, "y": g.Y, "width": g.Width, "height": g.Height} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fail(name, "must be a finite number")
		}
	}
	if g.Width <= 0 {
		return fail("width", "must be positive")
	}
	if g.Height <= 0 {
		return fail("height", "must be positive")
	}
	if g.X < 0 || g.Y < 0 {
		return fail("position", "must not be negative")
	}
	if g.PageNumber < 1 {
		return fail("pageNumber", "must be at least 1")
	}
	if !r.Type.Valid() {
		return fail("type", fmt.Sprintf("%q is not a recognized region type", r.Type))
	}
	if r.SignerIndex != nil && (*r.SignerIndex < 0 || *r.SignerIndex >= numberOfSigners) {
		return fail("signerIndex", fmt.Sprintf("must be in [0, %d)", numberOfSigners))
	}
	r.Label = strings.TrimSpace(r.Label)
	return r, nil
}

// ValidateLayout validates a full replacement layout for a document. Regions
// without an ID get one. pageCount of zero skips the page bound check.
func ValidateLayout(documentID string, rs []Region, numberOfSigners, pageCount int) ([]Region, error) {
	if numberOfSigners < 1 || numberOfSigners > MaxSigners {
		return nil, apperr.Validation("numberOfSigners must be between 1 and %d", MaxSigners)
	}
	if len(rs) == 0 {
		return nil, apperr.Validation("at least one region is required")
	}
	out := make([]Region, 0, len(rs))
	seen := make(map[string]struct{}, len(rs))
	for _, r := range rs {
		if strings.TrimSpace(r.ID) == "" {
			r.ID = uuid.NewString()
		}
		if _, dup := seen[r.ID]; dup {
			return nil, &ValidationError{RegionID: r.ID, Field: "id", Reason: "is duplicated"}
		}
		seen[r.ID] = struct{}{}
		r.DocumentID = documentID
		valid, err := Validate(r, numberOfSigners)
		if err != nil {
			return nil, err
		}
		if pageCount > 0 && valid.Geometry.PageNumber > pageCount {
			return nil, &ValidationError{RegionID: r.ID, Field: "pageNumber", Reason: fmt.Sprintf("exceeds page count %d", pageCount)}
		}
		out = append(out, valid)
	}
	return out, nil
}

// MaxSigners bounds numberOfSigners on a document.
const MaxSigners = 10

// SelectApplicable returns the regions the signer at index fills, in order.
func SelectApplicable(rs []Region, index int) []Region {
	out := make([]Region, 0, len(rs))
	for _, r := range rs {
		if r.AppliesTo(index) {
			out = append(out, r)
		}
	}
	return out
}

// SameLayout reports whether two region lists describe the same layout:
// equal length and, position by position, the same id, type, geometry, label
// and signer assignment.
func SameLayout(a, b []Region) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		x, y := a[i], b[i]
		if x.ID != y.ID || x.Type != y.Type || x.Geometry != y.Geometry || x.Label != y.Label {
			return false
		}
		if (x.SignerIndex == nil) != (y.SignerIndex == nil) {
			return false
		}
		if x.SignerIndex != nil && *x.SignerIndex != *y.SignerIndex {
			return false
		}
	}
	return true
}
