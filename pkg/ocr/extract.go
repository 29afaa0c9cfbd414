package ocr

import (
	"context"
	"errors"
)

// Extraction is the minimal record produced by the text extractor.
type Extraction struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	WordCount  int     `json:"wordCount"`
	LineCount  int     `json:"lineCount"`
}

// Extractor wraps an Engine and maps its output to an Extraction.
type Extractor struct {
	Engine Engine
	// Lang is used when Extract is called with an empty language.
	Lang string
}

// NewExtractor returns an extractor over engine using DefaultLanguage.
func NewExtractor(engine Engine) *Extractor {
	return &Extractor{Engine: engine, Lang: DefaultLanguage}
}

// Extract runs recognition over a normalized image. Engine failures are
// returned as *OcrExtractionError; no retry is attempted. The engine's
// confidence is passed through as is.
func (e *Extractor) Extract(ctx context.Context, img []byte, lang string, progress ProgressFunc) (Extraction, error) {
	if lang == "" {
		lang = e.Lang
	}
	if lang == "" {
		lang = DefaultLanguage
	}
	if e.Engine == nil {
		return Extraction{}, &OcrExtractionError{Lang: lang, Err: errors.New("no ocr engine configured")}
	}
	rec, err := e.Engine.Recognize(ctx, img, lang, progress)
	if err != nil {
		return Extraction{}, &OcrExtractionError{Lang: lang, Err: err}
	}
	return Extraction{
		Text:       rec.Text,
		Confidence: rec.Confidence,
		WordCount:  rec.Words,
		LineCount:  rec.Lines,
	}, nil
}
