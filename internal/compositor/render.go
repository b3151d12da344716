// Package compositor draws submitted region values onto a PDF. Every render
// parses a fresh copy of the original bytes and returns new bytes.
package compositor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"esign-backend/internal/regions"
	"esign-backend/internal/shared/metrics"
	"esign-backend/internal/shared/telemetry"
	"esign-backend/internal/signing"
)

// ErrRender wraps failures of the PDF engine.
var ErrRender = errors.New("render pdf")

func init() {
	api.DisableConfigDir()
}

// Renderer draws placements. The zero value anchors signatures bottom-left
// with DefaultMargin.
type Renderer struct {
	Anchor Anchor
	Margin float64
}

// Skip records a placement that was not drawn.
type Skip struct {
	RegionID string `json:"regionId"`
	Reason   string `json:"reason"`
}

// Result is a rendered document.
type Result struct {
	PDF     []byte
	Drawn   int
	Skipped []Skip
}

// Render stamps every placement onto a copy of original. Placements that
// cannot be drawn (unknown type, bad page, undecodable image) are skipped
// with a warning; only an engine failure is returned as an error.
func (r Renderer) Render(ctx context.Context, original []byte, placements []signing.Placement) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	start := time.Now()
	defer func() {
		metrics.ObserveRenderDurationMs(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	info, err := Inspect(original)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrRender, err)
	}
	margin := r.Margin
	if margin <= 0 {
		margin = DefaultMargin
	}

	var res Result
	stamps := make(map[int][]*model.Watermark)
	skip := func(p signing.Placement, reason string) {
		res.Skipped = append(res.Skipped, Skip{RegionID: p.Region.ID, Reason: reason})
		telemetry.Warn("compositor.skip", map[string]any{
			"region_id":   p.Region.ID,
			"region_type": string(p.Region.Type),
			"page":        p.Region.Geometry.PageNumber,
			"reason":      reason,
		})
	}

	for _, p := range placements {
		if p.Value.Data == "" {
			continue
		}
		pageNr := p.Region.Geometry.PageNumber
		if pageNr < 1 || pageNr > info.PageCount {
			skip(p, fmt.Sprintf("page %d out of range", pageNr))
			continue
		}
		area := Place(p.Region.Geometry, info.Pages[pageNr-1])

		var wm *model.Watermark
		switch {
		case p.Region.Type == regions.TypeSignature:
			wm, err = r.imageStamp(p.Value.Data, area, margin)
		case p.Region.Type.IsText():
			wm, err = textStamp(p.Value.Data, area, margin)
		default:
			skip(p, fmt.Sprintf("unknown region type %q", p.Region.Type))
			continue
		}
		if err != nil {
			skip(p, err.Error())
			continue
		}
		stamps[pageNr] = append(stamps[pageNr], wm)
		res.Drawn++
	}

	if len(stamps) == 0 {
		res.PDF = bytes.Clone(original)
		return res, nil
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	var out bytes.Buffer
	if err := api.AddWatermarksSliceMap(bytes.NewReader(original), &out, stamps, conf); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrRender, err)
	}
	res.PDF = out.Bytes()
	return res, nil
}

func (r Renderer) imageStamp(data string, area Rect, margin float64) (*model.Watermark, error) {
	img, err := decodeSignature(data)
	if err != nil {
		return nil, err
	}
	fit, ok := FitImage(float64(img.width), float64(img.height), area, margin, r.Anchor)
	if !ok {
		return nil, errors.New("region too small for signature")
	}
	desc := fmt.Sprintf("position:bl, offset:%s %s, scalefactor:%s abs, rotation:0, opacity:1",
		num(fit.X), num(fit.Y), strconv.FormatFloat(fit.W/float64(img.width), 'f', 6, 64))
	wm, err := api.ImageWatermarkForReader(bytes.NewReader(img.raw), desc, true, false, types.POINTS)
	if err != nil {
		return nil, fmt.Errorf("image stamp: %w", err)
	}
	return wm, nil
}

func textStamp(text string, area Rect, margin float64) (*model.Watermark, error) {
	points := int(math.Round(FontSize(area.H)))
	if points < 1 {
		points = 1
	}
	desc := fmt.Sprintf("fontname:Helvetica, points:%d, fillcolor:#000000, position:bl, offset:%s %s, scalefactor:1 abs, rotation:0, opacity:1",
		points, num(area.X+margin), num(area.Y+margin))
	wm, err := api.TextWatermark(text, desc, true, false, types.POINTS)
	if err != nil {
		return nil, fmt.Errorf("text stamp: %w", err)
	}
	return wm, nil
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
