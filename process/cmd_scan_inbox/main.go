package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"expensemgr/pkg/ocr"
	"expensemgr/process/inbox"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
)

// Scans a directory of receipt images, writes <file>.json results next to the
// moved originals and optionally keeps watching for new files.
func main() {
	_ = godotenv.Load()
	fs := ff.NewFlagSet("scan-inbox")
	var (
		dir       = fs.StringLong("dir", "inbox", "directory to scan for receipt images")
		processed = fs.StringLong("processed-dir", "", "where finished receipts go (default <dir>/processed)")
		ledger    = fs.StringLong("ledger", "inbox-ledger.db", "bbolt file remembering processed receipts")
		lang      = fs.StringLong("ocr-lang", ocr.DefaultLanguage, "Tesseract language code")
		workers   = fs.IntLong("workers", 0, "worker pool size (default NumCPU)")
		maxKB     = fs.IntLong("max-processed-kb", 0, "downscale processed images above this size (0 keeps originals)")
		watch     = fs.BoolLong("watch", "keep watching the directory for new files")
		dryRun    = fs.BoolLong("dry-run", "run OCR and log results without writing or moving anything")
		verbose   = fs.BoolLong("verbose", "per-file debug logging")
	)
	if err := ff.Parse(fs, os.Args[1:], ff.WithEnvVarPrefix("EXPENSEMGR")); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	var l *inbox.Ledger
	if !*dryRun {
		var err error
		l, err = inbox.OpenLedger(*ledger)
		if err != nil {
			log.Error("failed to open ledger", "path", *ledger, "error", err)
			os.Exit(1)
		}
		defer l.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := inbox.New(ocr.NewPipeline(*lang, log), l, inbox.Options{
		Dir:               *dir,
		ProcessedDir:      *processed,
		Workers:           *workers,
		MaxProcessedBytes: int64(*maxKB) * 1024,
		DryRun:            *dryRun,
		Logger:            log,
	})
	sum, err := p.Scan(ctx)
	if err != nil {
		log.Error("scan failed", "error", err)
		os.Exit(1)
	}
	log.Info("scan finished", "processed", sum.Processed, "skipped", sum.Skipped, "failed", sum.Failed)

	if *watch {
		if err := p.Watch(ctx); err != nil {
			log.Error("watch failed", "error", err)
			os.Exit(1)
		}
	}
}
