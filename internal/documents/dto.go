package documents

import (
	"time"

	"esign-backend/internal/regions"
	"esign-backend/internal/signing"
)

type documentResponse struct {
	DocumentID      string              `json:"documentId"`
	Title           string              `json:"title"`
	FileName        string              `json:"fileName"`
	MimeType        string              `json:"mimeType"`
	SizeBytes       int64               `json:"sizeBytes"`
	PageCount       int                 `json:"pageCount"`
	NumberOfSigners int                 `json:"numberOfSigners"`
	Status          Status              `json:"status"`
	HasFinal        bool                `json:"hasFinal"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
	Regions         []RegionDTO         `json:"regions,omitempty"`
	Signatures      []signing.Signature `json:"signatures"`
}

// RegionDTO is the flat wire shape of a region.
type RegionDTO struct {
	ID          string       `json:"id,omitempty"`
	Type        regions.Type `json:"type"`
	X           float64      `json:"x"`
	Y           float64      `json:"y"`
	Width       float64      `json:"width"`
	Height      float64      `json:"height"`
	PageNumber  int          `json:"pageNumber"`
	Label       string       `json:"label,omitempty"`
	SignerIndex *int         `json:"signerIndex"`
}

type layoutRequest struct {
	NumberOfSigners int         `json:"numberOfSigners"`
	Regions         []RegionDTO `json:"regions"`
}

type listResponse struct {
	Items  []documentResponse `json:"items"`
	Limit  int                `json:"limit"`
	Offset int                `json:"offset"`
}

func toResponse(doc Document) documentResponse {
	return documentResponse{
		DocumentID:      doc.ID,
		Title:           doc.Title,
		FileName:        doc.FileName,
		MimeType:        doc.MimeType,
		SizeBytes:       doc.SizeBytes,
		PageCount:       doc.PageCount,
		NumberOfSigners: doc.NumberOfSigners,
		Status:          doc.Status,
		HasFinal:        doc.HasFinal(),
		CreatedAt:       doc.CreatedAt,
		UpdatedAt:       doc.UpdatedAt,
		Signatures:      []signing.Signature{},
	}
}

func toDetailResponse(d Detail) documentResponse {
	resp := toResponse(d.Document)
	resp.Regions = make([]RegionDTO, 0, len(d.Regions))
	for _, r := range d.Regions {
		resp.Regions = append(resp.Regions, RegionToDTO(r))
	}
	if d.Signatures != nil {
		resp.Signatures = d.Signatures
	}
	return resp
}

// RegionToDTO flattens a region for the wire.
func RegionToDTO(r regions.Region) RegionDTO {
	return RegionDTO{
		ID:          r.ID,
		Type:        r.Type,
		X:           r.Geometry.X,
		Y:           r.Geometry.Y,
		Width:       r.Geometry.Width,
		Height:      r.Geometry.Height,
		PageNumber:  r.Geometry.PageNumber,
		Label:       r.Label,
		SignerIndex: r.SignerIndex,
	}
}

func (d RegionDTO) toRegion() regions.Region {
	return regions.Region{
		ID:   d.ID,
		Type: d.Type,
		Geometry: regions.Geometry{
			X:          d.X,
			Y:          d.Y,
			Width:      d.Width,
			Height:     d.Height,
			PageNumber: d.PageNumber,
		},
		Label:       d.Label,
		SignerIndex: d.SignerIndex,
	}
}
