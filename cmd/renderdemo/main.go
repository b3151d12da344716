package main

// Stamp sample values onto a PDF the way signers and the final merge do:
//   go run ./cmd/renderdemo --in contract.pdf --out ./out/contract-signed.pdf --anchor center

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"

	"esign-backend/internal/compositor"
	"esign-backend/internal/compositor/pdftest"
	"esign-backend/internal/regions"
	"esign-backend/internal/signing"
)

func main() {
	inPath := pflag.String("in", "", "input PDF (a blank letter page when empty)")
	outPath := pflag.String("out", "./out/sample-signed.pdf", "output path")
	anchor := pflag.String("anchor", "bottom-left", "signature anchor: bottom-left or center")
	signer := pflag.String("signer", "Alice Example", "name stamped into the name region")
	pflag.Parse()

	original := pdftest.Build(pdftest.Letter)
	if *inPath != "" {
		data, err := os.ReadFile(*inPath)
		if err != nil {
			exitf("read input: %v", err)
		}
		original = data
	}

	renderer := compositor.Renderer{Anchor: compositor.AnchorBottomLeft}
	if *anchor == "center" {
		renderer.Anchor = compositor.AnchorCenter
	}

	res, err := renderer.Render(context.Background(), original, samplePlacements(*signer))
	if err != nil {
		exitf("render failed: %v", err)
	}
	for _, skip := range res.Skipped {
		fmt.Fprintf(os.Stderr, "skipped %s: %s\n", skip.RegionID, skip.Reason)
	}

	if err := os.MkdirAll(filepath.Dir(*outPath), 0o755); err != nil {
		exitf("create output dir: %v", err)
	}
	if err := os.WriteFile(*outPath, res.PDF, 0o644); err != nil {
		exitf("write output: %v", err)
	}
	fmt.Printf("wrote %s (%d drawn, %d skipped, anchor %s)\n", *outPath, res.Drawn, len(res.Skipped), renderer.Anchor)
}

func samplePlacements(name string) []signing.Placement {
	region := func(id string, typ regions.Type, y float64, h float64) regions.Region {
		return regions.Region{ID: id, Type: typ, Geometry: regions.Geometry{X: 72, Y: y, Width: 220, Height: h, PageNumber: 1}}
	}
	return []signing.Placement{
		{Region: region("signature", regions.TypeSignature, 560, 70), Value: signing.Value{Type: regions.TypeSignature, Data: pdftest.PNGDataURL(240, 80)}},
		{Region: region("name", regions.TypeName, 640, 20), Value: signing.Value{Type: regions.TypeName, Data: name}},
		{Region: region("date", regions.TypeDate, 670, 20), Value: signing.Value{Type: regions.TypeDate, Data: time.Now().Format("2006-01-02")}},
		{Region: region("business", regions.TypeBusiness, 700, 20), Value: signing.Value{Type: regions.TypeBusiness, Data: "Example Holdings LLC"}},
	}
}

func exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
