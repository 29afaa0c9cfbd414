package inbox

import (
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
)

// moveToProcessed moves src into the processed directory. It attempts an
// atomic rename and falls back to copy+remove across filesystems. When
// MaxProcessedBytes is set, oversized raster images are downscaled on the way.
func (p *Processor) moveToProcessed(src, name string) error {
	if err := os.MkdirAll(p.opts.ProcessedDir, 0o755); err != nil {
		return err
	}
	dst := filepath.Join(p.opts.ProcessedDir, name)
	maxBytes := p.opts.MaxProcessedBytes

	fi, err := os.Stat(src)
	if err != nil {
		return err
	}
	if maxBytes <= 0 || fi.Size() <= maxBytes {
		return renameOrCopy(src, dst)
	}
	img, err := imaging.Open(src, imaging.AutoOrientation(true))
	if err != nil { // heic, pdf or undecodable: keep the original bytes
		return renameOrCopy(src, dst)
	}
	// encoded size roughly scales with area
	scale := math.Sqrt(float64(maxBytes) / float64(fi.Size()))
	scale = math.Max(0.1, math.Min(scale, 0.95))
	w := int(math.Max(1, math.Round(float64(img.Bounds().Dx())*scale)))
	img = imaging.Resize(img, w, 0, imaging.Lanczos)
	if err := imaging.Save(img, dst); err != nil {
		return renameOrCopy(src, dst)
	}
	p.log.Debug("downscaled processed receipt", "file", name, "scale", scale)
	return os.Remove(src)
}

func renameOrCopy(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	return copyRemove(src, dst)
}

func copyRemove(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
