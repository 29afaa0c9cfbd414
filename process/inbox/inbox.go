// Package inbox scans a directory of receipt files through the OCR pipeline,
// writing a JSON sidecar per receipt and moving finished files aside.
package inbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"expensemgr/pkg/ocr"

	"github.com/fsnotify/fsnotify"
)

// Scanner is satisfied by *ocr.Pipeline.
type Scanner interface {
	Process(ctx context.Context, path string) (*ocr.ExtractedReceiptData, error)
}

// Options configure a Processor. Zero values pick defaults.
type Options struct {
	Dir string
	// ProcessedDir receives finished receipts and their sidecars (default Dir/processed).
	ProcessedDir string
	Workers      int
	// MaxProcessedBytes downscales large raster images when moving them; 0 keeps files as is.
	MaxProcessedBytes int64
	// Debounce is how long a new file must stay quiet before it is picked up in watch mode.
	Debounce time.Duration
	DryRun   bool
	Logger   *slog.Logger
}

// Summary counts the outcome of a scan.
type Summary struct {
	Processed int
	Skipped   int
	Failed    int
}

// Processor runs receipts from Options.Dir through a Scanner.
type Processor struct {
	scanner Scanner
	ledger  *Ledger
	opts    Options
	log     *slog.Logger
}

// New returns a Processor. ledger may be nil, in which case duplicates are
// detected only by the file having been moved.
func New(scanner Scanner, ledger *Ledger, opts Options) *Processor {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.ProcessedDir == "" {
		opts.ProcessedDir = filepath.Join(opts.Dir, "processed")
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 300 * time.Millisecond
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Processor{scanner: scanner, ledger: ledger, opts: opts, log: log.With("component", "inbox")}
}

// IsSupported reports whether name looks like a receipt the pipeline can read.
func IsSupported(name string) bool {
	// ignore OCR-generated temp files to avoid recursive processing
	if strings.Contains(name, ".ocr.") || strings.HasPrefix(name, ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp", ".bmp", ".tif", ".tiff", ".heic", ".heif", ".pdf":
		return true
	}
	return false
}

// ListFiles returns supported file names in dir, sorted.
func ListFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !IsSupported(e.Name()) {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out, nil
}

// Scan processes every supported file currently in the inbox.
func (p *Processor) Scan(ctx context.Context) (Summary, error) {
	files, err := ListFiles(p.opts.Dir)
	if err != nil {
		return Summary{}, fmt.Errorf("listing inbox: %w", err)
	}
	p.log.Info("scanning inbox", "dir", p.opts.Dir, "files", len(files), "workers", p.opts.Workers)
	ch := make(chan string)
	go func() {
		defer close(ch)
		for _, f := range files {
			select {
			case ch <- f:
			case <-ctx.Done():
				return
			}
		}
	}()
	return p.runWorkers(ctx, ch), ctx.Err()
}

// Watch processes files created in the inbox until ctx is cancelled.
func (p *Processor) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(p.opts.Dir); err != nil {
		return err
	}
	p.log.Info("watching inbox", "dir", p.opts.Dir, "debounce", p.opts.Debounce)

	fileCh := make(chan string, 256)
	go func() {
		defer close(fileCh)
		// a file is handed off once it has seen no events for the debounce window
		pending := map[string]time.Time{}
		ticker := time.NewTicker(p.opts.Debounce / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
					continue
				}
				name := filepath.Base(ev.Name)
				if filepath.Dir(ev.Name) != filepath.Clean(p.opts.Dir) || !IsSupported(name) {
					continue
				}
				pending[name] = time.Now()
			case <-ticker.C:
				now := time.Now()
				for name, t := range pending {
					if now.Sub(t) > p.opts.Debounce {
						delete(pending, name)
						select {
						case fileCh <- name:
						case <-ctx.Done():
							return
						}
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				p.log.Warn("watch error", "error", err)
			}
		}
	}()

	sum := p.runWorkers(ctx, fileCh)
	p.log.Info("watch stopped", "processed", sum.Processed, "skipped", sum.Skipped, "failed", sum.Failed)
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return ctx.Err()
}

func (p *Processor) runWorkers(ctx context.Context, files <-chan string) Summary {
	var processed, skipped, failed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < p.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range files {
				switch _, err := p.ProcessFile(ctx, name); {
				case errors.Is(err, ErrAlreadyProcessed):
					skipped.Add(1)
				case err != nil:
					failed.Add(1)
				default:
					processed.Add(1)
				}
			}
		}()
	}
	wg.Wait()
	return Summary{Processed: int(processed.Load()), Skipped: int(skipped.Load()), Failed: int(failed.Load())}
}

// ErrAlreadyProcessed is returned for files whose content is already in the ledger.
var ErrAlreadyProcessed = errors.New("receipt already processed")

// ProcessFile scans one inbox file by name. On success the sidecar is written,
// the file is moved to the processed directory and the ledger updated.
func (p *Processor) ProcessFile(ctx context.Context, name string) (*ocr.ExtractedReceiptData, error) {
	src := filepath.Join(p.opts.Dir, name)
	log := p.log.With("file", name)

	sum, err := fileSum(src)
	if err != nil {
		log.Warn("hash failed", "error", err)
		return nil, err
	}
	if p.ledger != nil {
		if prev, ok, err := p.ledger.Lookup(sum); err != nil {
			return nil, err
		} else if ok {
			log.Debug("skip already processed", "first_seen_as", prev.File, "at", prev.ProcessedAt)
			if !p.opts.DryRun {
				if err := p.moveToProcessed(src, name); err != nil {
					log.Warn("failed to move duplicate", "error", err)
				}
			}
			return nil, ErrAlreadyProcessed
		}
	}

	data, err := p.scanner.Process(ctx, src)
	if err != nil {
		log.Warn("scan failed", "stage", ocr.Stage(err), "error", err)
		return nil, err
	}
	if p.opts.DryRun {
		log.Info("dry-run result", "amount", data.Amount, "currency", data.Currency, "merchant", data.Merchant)
		return data, nil
	}

	if err := os.MkdirAll(p.opts.ProcessedDir, 0o755); err != nil {
		return nil, err
	}
	if err := writeSidecar(filepath.Join(p.opts.ProcessedDir, name+".json"), data); err != nil {
		return nil, fmt.Errorf("writing sidecar: %w", err)
	}
	if err := p.moveToProcessed(src, name); err != nil {
		log.Warn("failed to move processed file", "error", err)
	}
	if p.ledger != nil {
		entry := Entry{File: name, ProcessedAt: time.Now().UTC(), Amount: data.Amount, Currency: data.Currency, Confidence: data.Confidence}
		if err := p.ledger.Record(sum, entry); err != nil {
			return nil, err
		}
	}
	log.Info("receipt filed", "amount", data.Amount, "currency", data.Currency, "confidence", data.Confidence)
	return data, nil
}

func writeSidecar(path string, data *ocr.ExtractedReceiptData) error {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
