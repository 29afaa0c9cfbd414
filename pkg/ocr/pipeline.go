package ocr

import (
	"context"
	"log/slog"
	"time"
)

// Pipeline runs Normalizer -> Extractor -> parser for one image. It holds no
// per-call state and may be shared between goroutines.
type Pipeline struct {
	Normalizer Normalizer
	Extractor  *Extractor
	// Lang is passed to the extractor; empty means the extractor default.
	Lang     string
	Progress ProgressFunc
	Logger   *slog.Logger
}

// NewPipeline wires the default imaging normalizer and Tesseract engine.
func NewPipeline(lang string, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		Normalizer: NewNormalizer(),
		Extractor:  NewExtractor(&TesseractEngine{}),
		Lang:       lang,
		Logger:     logger,
	}
}

// Process extracts receipt data from the image at path. A stage failure is
// returned unchanged (*ImageProcessingError or *OcrExtractionError) with no
// partial result.
func (p *Pipeline) Process(ctx context.Context, path string) (*ExtractedReceiptData, error) {
	log := p.logger().With("path", path)
	start := time.Now()

	img, err := p.Normalizer.Normalize(path)
	if err != nil {
		log.Warn("receipt normalize failed", "error", err)
		return nil, err
	}
	ext, err := p.Extractor.Extract(ctx, img, p.Lang, p.progressFor(log))
	if err != nil {
		log.Warn("receipt ocr failed", "error", err)
		return nil, err
	}

	data := ParseReceiptText(ext.Text)
	data.RawText = ext.Text
	data.Confidence = ext.Confidence
	data.WordCount = ext.WordCount
	data.LineCount = ext.LineCount

	log.Info("receipt processed",
		"confidence", data.Confidence,
		"words", data.WordCount,
		"lines", data.LineCount,
		"amount_found", data.Amount != nil,
		"took", time.Since(start),
		"text", snippet(ext.Text, 120),
	)
	return &data, nil
}

func (p *Pipeline) progressFor(log *slog.Logger) ProgressFunc {
	if p.Progress != nil {
		return p.Progress
	}
	return func(status string, progress float64) {
		log.Debug("ocr progress", "status", status, "pct", int(progress*100))
	}
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}
