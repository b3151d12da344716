package compositor

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// ErrNotPDF is returned when bytes cannot be parsed as a PDF.
var ErrNotPDF = errors.New("not a readable pdf")

// letter is used when a page carries no resolvable MediaBox.
var letter = PageSize{Width: 612, Height: 792}

const maxTreeDepth = 32

// Info describes a document's pages.
type Info struct {
	PageCount int        `json:"pageCount"`
	Pages     []PageSize `json:"pages"`
}

// Inspect reads the page count and per-page MediaBox sizes.
func Inspect(data []byte) (info Info, err error) {
	if len(data) == 0 {
		return Info{}, ErrNotPDF
	}
	defer func() {
		if rec := recover(); rec != nil {
			info, err = Info{}, fmt.Errorf("%w: %v", ErrNotPDF, rec)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrNotPDF, err)
	}
	n := r.NumPage()
	if n < 1 {
		return Info{}, fmt.Errorf("%w: no pages", ErrNotPDF)
	}
	info = Info{PageCount: n, Pages: make([]PageSize, 0, n)}
	for i := 1; i <= n; i++ {
		info.Pages = append(info.Pages, mediaBox(r.Page(i).V))
	}
	return info, nil
}

// mediaBox resolves the page's MediaBox, walking up inherited page tree nodes.
func mediaBox(page pdf.Value) PageSize {
	node := page
	for depth := 0; depth < maxTreeDepth && !node.IsNull(); depth, node = depth+1, node.Key("Parent") {
		box := node.Key("MediaBox")
		if box.Kind() != pdf.Array || box.Len() != 4 {
			continue
		}
		w := box.Index(2).Float64() - box.Index(0).Float64()
		h := box.Index(3).Float64() - box.Index(1).Float64()
		if w < 0 {
			w = -w
		}
		if h < 0 {
			h = -h
		}
		if w > 0 && h > 0 {
			return PageSize{Width: w, Height: h}
		}
	}
	return letter
}
