package ocrupdater

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"expensemgr/models"
	"expensemgr/pkg/ocr"

	"gorm.io/gorm"
)

// Scanner is satisfied by *ocr.Pipeline.
type Scanner interface {
	Process(ctx context.Context, path string) (*ocr.ExtractedReceiptData, error)
}

// Options select which stored receipts are refreshed and how.
type Options struct {
	UploadDir string
	// Reparse re-runs only the field parser over the stored raw text.
	Reparse bool
	// OnlyMissingAmount limits the run to receipts whose stored amount is null.
	OnlyMissingAmount bool
	MinConfidence     float64
	DryRun            bool
}

// Reparse applies the current field parser to stored OCR JSON, keeping the
// engine metadata. changed is false when the fields come out identical.
func Reparse(stored string) (string, bool, error) {
	var prev ocr.ExtractedReceiptData
	if err := json.Unmarshal([]byte(stored), &prev); err != nil {
		return "", false, fmt.Errorf("decode stored ocr data: %w", err)
	}
	next := ocr.ParseReceiptText(prev.RawText)
	next.Confidence = prev.Confidence
	next.WordCount = prev.WordCount
	next.LineCount = prev.LineCount
	b, err := json.Marshal(next)
	if err != nil {
		return "", false, err
	}
	old, _ := json.Marshal(prev)
	return string(b), string(b) != string(old), nil
}

func hasAmount(stored string) bool {
	var d ocr.ExtractedReceiptData
	return json.Unmarshal([]byte(stored), &d) == nil && d.Amount != nil
}

// Run refreshes ocr_data of stored receipts, either by re-running the whole
// pipeline on the uploaded file or by reparsing stored text. Progress goes to w.
func Run(ctx context.Context, gdb *gorm.DB, scanner Scanner, opts Options, w io.Writer) error {
	var receipts []models.ExpenseReceipt
	if err := gdb.Order("id").Find(&receipts).Error; err != nil {
		return fmt.Errorf("load receipts: %w", err)
	}
	updated := 0
	for _, r := range receipts {
		if err := ctx.Err(); err != nil {
			return err
		}
		if opts.OnlyMissingAmount && hasAmount(r.OCRData) {
			continue
		}
		var next string
		if opts.Reparse {
			s, changed, err := Reparse(r.OCRData)
			if err != nil {
				fmt.Fprintf(w, "receipt %d: %v\n", r.ID, err)
				continue
			}
			if !changed {
				continue
			}
			next = s
		} else {
			path := filepath.Join(opts.UploadDir, filepath.Base(r.FileURL))
			data, err := scanner.Process(ctx, path)
			if err != nil {
				fmt.Fprintf(w, "receipt %d: ocr error (%s): %v\n", r.ID, ocr.Stage(err), err)
				continue
			}
			if data.Confidence < opts.MinConfidence {
				fmt.Fprintf(w, "receipt %d: skipped conf=%.1f (min=%.1f)\n", r.ID, data.Confidence, opts.MinConfidence)
				continue
			}
			b, err := json.Marshal(data)
			if err != nil {
				return err
			}
			next = string(b)
		}
		if opts.DryRun {
			fmt.Fprintf(w, "receipt %d: would update -> %s\n", r.ID, next)
			continue
		}
		if err := gdb.Model(&models.ExpenseReceipt{}).Where("id = ?", r.ID).Update("ocr_data", next).Error; err != nil {
			return fmt.Errorf("update receipt %d: %w", r.ID, err)
		}
		updated++
		fmt.Fprintf(w, "receipt %d: updated\n", r.ID)
	}
	fmt.Fprintf(w, "done: %d of %d receipts updated\n", updated, len(receipts))
	return nil
}
