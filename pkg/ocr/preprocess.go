package ocr

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"os"

	"github.com/disintegration/imaging"
)

// Normalizer turns a source image into bytes favourable to text recognition.
type Normalizer interface {
	Normalize(path string) ([]byte, error)
}

// ImagingNormalizer converts to grayscale, stretches the histogram to the full
// 0..255 range and sharpens. The result is PNG encoded and never written to disk.
type ImagingNormalizer struct {
	// SharpenSigma is the gaussian sigma used by the unsharp pass.
	SharpenSigma float64
	// MinHeight upscales shorter images with Lanczos before sharpening. 0 disables it.
	MinHeight int
}

// NewNormalizer returns a normalizer with the default sharpening strength.
func NewNormalizer() *ImagingNormalizer {
	return &ImagingNormalizer{SharpenSigma: 1.0}
}

// Normalize reads path and returns the normalized PNG bytes.
func (n *ImagingNormalizer) Normalize(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ImageProcessingError{Path: path, Err: err}
	}
	out, err := n.normalize(data)
	if err != nil {
		return nil, &ImageProcessingError{Path: path, Err: err}
	}
	return out, nil
}

// NormalizeBytes is Normalize for an already loaded source.
func (n *ImagingNormalizer) NormalizeBytes(data []byte) ([]byte, error) {
	out, err := n.normalize(data)
	if err != nil {
		return nil, &ImageProcessingError{Path: "<memory>", Err: err}
	}
	return out, nil
}

func (n *ImagingNormalizer) normalize(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("empty image")
	}
	img, err := decodeImage(data)
	if err != nil {
		return nil, err
	}
	gray := imaging.Grayscale(img)
	gray = stretchContrast(gray)
	if n.MinHeight > 0 && gray.Bounds().Dy() < n.MinHeight {
		gray = imaging.Resize(gray, 0, n.MinHeight, imaging.Lanczos)
	}
	sigma := n.SharpenSigma
	if sigma <= 0 {
		sigma = 1.0
	}
	gray = imaging.Sharpen(gray, sigma)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, gray, imaging.PNG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// stretchContrast maps the darkest populated luminance bin to 0 and the
// brightest to 255. A flat image is returned unchanged.
func stretchContrast(img *image.NRGBA) *image.NRGBA {
	hist := imaging.Histogram(img)
	lo, hi := -1, -1
	for i := 0; i < len(hist); i++ {
		if hist[i] > 0 {
			lo = i
			break
		}
	}
	for i := len(hist) - 1; i >= 0; i-- {
		if hist[i] > 0 {
			hi = i
			break
		}
	}
	if lo < 0 || hi <= lo {
		return img
	}
	if lo == 0 && hi == 255 {
		return img
	}
	span := float64(hi - lo)
	lut := [256]uint8{}
	for v := 0; v < 256; v++ {
		s := (float64(v-lo) * 255.0 / span) + 0.5
		switch {
		case s < 0:
			lut[v] = 0
		case s > 255:
			lut[v] = 255
		default:
			lut[v] = uint8(s)
		}
	}
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{R: lut[c.R], G: lut[c.G], B: lut[c.B], A: c.A}
	})
}
