package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"expensemgr/pkg/ocr"
	ocrupdater "expensemgr/process/ocr_updater"
	"expensemgr/process/report"
)

func main() {
	dir := flag.String("upload-dir", "uploads", "directory holding stored receipts")
	dry := flag.Bool("dry-run", true, "dry-run: don't write to DB")
	reparse := flag.Bool("reparse", false, "only re-run the field parser over stored text (no OCR)")
	missing := flag.Bool("only-missing-amount", false, "only touch receipts with no detected amount")
	minConf := flag.Float64("min-conf", 0, "minimum OCR confidence (0-100) to accept a rescan")
	lang := flag.String("lang", ocr.DefaultLanguage, "Tesseract language code")
	flag.Parse()

	gdb, err := report.OpenDB()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	opts := ocrupdater.Options{UploadDir: *dir, Reparse: *reparse, OnlyMissingAmount: *missing, MinConfidence: *minConf, DryRun: *dry}
	if err := ocrupdater.Run(context.Background(), gdb, ocr.NewPipeline(*lang, logger), opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "run failed: %v\n", err)
		os.Exit(1)
	}
}
