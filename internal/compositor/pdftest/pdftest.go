// Package pdftest builds small in-memory PDFs and images for tests.
package pdftest

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"
)

// Page is a page size in points.
type Page struct {
	Width, Height float64
}

// Letter is a US letter page.
var Letter = Page{Width: 612, Height: 792}

// Build returns a valid PDF with one empty page per size, each page carrying
// its own MediaBox.
func Build(pages ...Page) []byte {
	if len(pages) == 0 {
		pages = []Page{Letter}
	}
	return build(pages, false)
}

// BuildInherited returns a PDF whose pages inherit the MediaBox from the page tree root.
func BuildInherited(size Page, count int) []byte {
	pages := make([]Page, count)
	for i := range pages {
		pages[i] = size
	}
	return build(pages, true)
}

func build(pages []Page, inherit bool) []byte {
	var objs []string
	kids := ""
	for i := range pages {
		kids += fmt.Sprintf("%d 0 R ", 3+2*i)
	}
	objs = append(objs, "<< /Type /Catalog /Pages 2 0 R >>")
	root := fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d", kids, len(pages))
	if inherit {
		root += fmt.Sprintf(" /MediaBox [0 0 %s %s]", f(pages[0].Width), f(pages[0].Height))
	}
	objs = append(objs, root+" >>")
	const content = "q Q"
	for _, p := range pages {
		page := "<< /Type /Page /Parent 2 0 R /Resources << >>"
		if !inherit {
			page += fmt.Sprintf(" /MediaBox [0 0 %s %s]", f(p.Width), f(p.Height))
		}
		page += fmt.Sprintf(" /Contents %d 0 R >>", len(objs)+2)
		objs = append(objs, page)
		objs = append(objs, fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, body := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objs)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

func f(v float64) string {
	return fmt.Sprintf("%g", v)
}

// PNG returns a w x h opaque PNG.
func PNG(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{A: 255})
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

// PNGDataURL returns PNG(w, h) as a data URL, the form browsers submit.
func PNGDataURL(w, h int) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(PNG(w, h))
}
