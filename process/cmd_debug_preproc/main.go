package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"expensemgr/pkg/ocr"
)

// Writes the normalized image the OCR engine would see, for eyeballing
// contrast and sharpening settings.
func main() {
	in := flag.String("file", "", "receipt image (jpeg, png, webp, heic or pdf)")
	out := flag.String("out", "preproc.png", "where to write the normalized PNG")
	sigma := flag.Float64("sharpen", 1.0, "sharpen sigma")
	minHeight := flag.Int("min-height", 0, "upscale images shorter than this many pixels (0 disables)")
	flag.Parse()
	if *in == "" {
		log.Fatalf("-file required")
	}

	n := ocr.NewNormalizer()
	n.SharpenSigma = *sigma
	n.MinHeight = *minHeight
	png, err := n.Normalize(*in)
	if err != nil {
		log.Fatalf("normalize: %v", err)
	}
	if err := os.WriteFile(*out, png, 0o644); err != nil {
		log.Fatalf("write: %v", err)
	}
	fmt.Printf("wrote %s (%d bytes)\n", *out, len(png))
}
