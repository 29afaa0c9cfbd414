package ocr

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"
)

// DefaultLanguage is the Tesseract language used when none is given.
const DefaultLanguage = "eng"

// ProgressFunc receives engine progress in the range 0..1. It is called on
// the recognizing goroutine and must return quickly.
type ProgressFunc func(status string, progress float64)

// Recognition is the raw engine output for one page.
type Recognition struct {
	Text       string
	Confidence float64 // 0..100, engine aggregate over the page
	Words      int
	Lines      int
}

// Engine is an OCR capability. Implementations must be safe for concurrent use.
type Engine interface {
	Recognize(ctx context.Context, img []byte, lang string, progress ProgressFunc) (Recognition, error)
}

// TesseractEngine runs Tesseract through gosseract. A fresh client is created
// per call so concurrent recognitions share no state.
type TesseractEngine struct {
	// PageSegMode overrides Tesseract's default segmentation when non-zero.
	PageSegMode gosseract.PageSegMode
	// TessdataPrefix points at a custom tessdata directory.
	TessdataPrefix string
}

// Recognize implements Engine. ctx cancellation returns early, but the
// underlying Tesseract call cannot be interrupted and finishes in the background.
func (t *TesseractEngine) Recognize(ctx context.Context, img []byte, lang string, progress ProgressFunc) (Recognition, error) {
	type result struct {
		rec Recognition
		err error
	}
	done := make(chan result, 1)
	go func() {
		rec, err := t.recognize(ctx, img, lang, progress)
		done <- result{rec, err}
	}()
	select {
	case <-ctx.Done():
		return Recognition{}, ctx.Err()
	case r := <-done:
		return r.rec, r.err
	}
}

func (t *TesseractEngine) recognize(ctx context.Context, img []byte, lang string, progress ProgressFunc) (Recognition, error) {
	report := liveProgress(ctx, progress)
	report("initializing api", 0)
	client := gosseract.NewClient()
	defer client.Close()

	if t.TessdataPrefix != "" {
		if err := client.SetTessdataPrefix(t.TessdataPrefix); err != nil {
			return Recognition{}, fmt.Errorf("set tessdata prefix: %w", err)
		}
	}
	if err := client.SetLanguage(lang); err != nil {
		return Recognition{}, fmt.Errorf("set language %q: %w", lang, err)
	}
	if t.PageSegMode != 0 {
		if err := client.SetPageSegMode(t.PageSegMode); err != nil {
			return Recognition{}, fmt.Errorf("set page seg mode: %w", err)
		}
	}
	if err := client.SetImageFromBytes(img); err != nil {
		return Recognition{}, fmt.Errorf("set image: %w", err)
	}
	report("recognizing text", 0)
	text, err := client.Text()
	if err != nil {
		return Recognition{}, fmt.Errorf("recognize: %w", err)
	}
	report("recognizing text", 0.5)
	words, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return Recognition{}, fmt.Errorf("word boxes: %w", err)
	}
	lines, err := client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return Recognition{}, fmt.Errorf("line boxes: %w", err)
	}
	report("recognizing text", 1)
	return Recognition{
		Text:       text,
		Confidence: meanConfidence(words),
		Words:      len(words),
		Lines:      len(lines),
	}, nil
}

// liveProgress wraps progress so it is silent once ctx is done. Recognize
// returns on cancellation while the Tesseract call keeps running, and the
// caller's sink must not hear from it after that.
func liveProgress(ctx context.Context, progress ProgressFunc) ProgressFunc {
	return func(status string, p float64) {
		if progress != nil && ctx.Err() == nil {
			progress(status, p)
		}
	}
}

// meanConfidence is Tesseract's page confidence: the mean of word confidences.
func meanConfidence(words []gosseract.BoundingBox) float64 {
	if len(words) == 0 {
		return 0
	}
	var sum float64
	for _, w := range words {
		sum += w.Confidence
	}
	return sum / float64(len(words))
}
