package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"log/slog"
	"os"
	"time"

	"expensemgr/pkg/ocr"
)

func main() {
	f := flag.String("file", "", "image file to run through the full pipeline")
	text := flag.String("text", "", "text file to run through the field parser only")
	lang := flag.String("lang", ocr.DefaultLanguage, "Tesseract language code")
	timeout := flag.Duration("timeout", 2*time.Minute, "pipeline timeout")
	flag.Parse()

	var out any
	switch {
	case *text != "":
		b, err := os.ReadFile(*text)
		if err != nil {
			log.Fatalf("read text: %v", err)
		}
		out = ocr.ParseReceiptText(string(b))
	case *f != "":
		ctx, cancel := context.WithTimeout(context.Background(), *timeout)
		defer cancel()
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
		data, err := ocr.NewPipeline(*lang, logger).Process(ctx, *f)
		if err != nil {
			log.Fatalf("ocr error (stage %s): %v", ocr.Stage(err), err)
		}
		out = data
	default:
		log.Fatalf("-file or -text required")
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatalf("encode: %v", err)
	}
}
