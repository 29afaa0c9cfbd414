package ocr

import (
	"errors"
	"fmt"
)

// Stage names reported by Stage.
const (
	StageNormalize = "normalize"
	StageExtract   = "extract"
)

// ImageProcessingError is returned when the source image cannot be read or decoded.
type ImageProcessingError struct {
	Path string
	Err  error
}

func (e *ImageProcessingError) Error() string {
	return fmt.Sprintf("image processing %s: %v", e.Path, e.Err)
}

func (e *ImageProcessingError) Unwrap() error { return e.Err }

// OcrExtractionError is returned when the recognition engine fails.
type OcrExtractionError struct {
	Lang string
	Err  error
}

func (e *OcrExtractionError) Error() string {
	return fmt.Sprintf("ocr extraction (lang=%s): %v", e.Lang, e.Err)
}

func (e *OcrExtractionError) Unwrap() error { return e.Err }

// Stage reports which pipeline stage produced err, or "" if neither.
func Stage(err error) string {
	var ipe *ImageProcessingError
	if errors.As(err, &ipe) {
		return StageNormalize
	}
	var oce *OcrExtractionError
	if errors.As(err, &oce) {
		return StageExtract
	}
	return ""
}
