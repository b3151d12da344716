package compositor

import (
	"math"

	"esign-backend/internal/regions"
)

// Anchor decides where a fitted signature image sits inside its region.
type Anchor int

const (
	// AnchorBottomLeft places the image at the interior bottom-left corner.
	AnchorBottomLeft Anchor = iota
	// AnchorCenter centers the image inside the region.
	AnchorCenter
)

func (a Anchor) String() string {
	if a == AnchorCenter {
		return "center"
	}
	return "bottom-left"
}

// DefaultMargin is the inset applied on every side of a region.
const DefaultMargin = 5.0

const maxFontSize = 12.0

// PageSize is a page's width and height in points.
type PageSize struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Rect is a rectangle in PDF space (bottom-left origin).
type Rect struct {
	X, Y, W, H float64
}

// Right returns the x coordinate of the right edge.
func (r Rect) Right() float64 { return r.X + r.W }

// Top returns the y coordinate of the top edge.
func (r Rect) Top() float64 { return r.Y + r.H }

// Place converts stored top-left geometry into a PDF-space rectangle clamped
// onto the page. Oversized regions are shrunk to the page first.
func Place(g regions.Geometry, page PageSize) Rect {
	w := math.Min(g.Width, page.Width)
	h := math.Min(g.Height, page.Height)
	x := g.X
	y := page.Height - g.Y - g.Height
	return Rect{
		X: math.Max(0, math.Min(x, page.Width-w)),
		Y: math.Max(0, math.Min(y, page.Height-h)),
		W: w,
		H: h,
	}
}

// FitImage scales an image of the given native size into area minus margin
// on every side, keeping its aspect ratio. ok is false when nothing fits.
func FitImage(imgW, imgH float64, area Rect, margin float64, anchor Anchor) (Rect, bool) {
	availW := area.W - 2*margin
	availH := area.H - 2*margin
	if imgW <= 0 || imgH <= 0 || availW <= 0 || availH <= 0 {
		return Rect{}, false
	}
	aspect := imgW / imgH
	var w, h float64
	if aspect > availW/availH {
		w = availW
		h = availW / aspect
	} else {
		h = availH
		w = availH * aspect
	}
	out := Rect{W: w, H: h}
	switch anchor {
	case AnchorCenter:
		out.X = area.X + (area.W-w)/2
		out.Y = area.Y + (area.H-h)/2
	default:
		out.X = area.X + margin
		out.Y = area.Y + margin
	}
	return out, true
}

// FontSize is the text size for a region of height h.
func FontSize(h float64) float64 {
	return math.Min(maxFontSize, h*0.3)
}
