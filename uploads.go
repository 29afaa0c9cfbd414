package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"expensemgr/pkg/ocr"

	"github.com/google/uuid"
)

// receiptTypes maps accepted sniffed content types to stored file extensions.
var receiptTypes = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"image/bmp":       ".bmp",
	"image/tiff":      ".tiff",
	"image/heic":      ".heic",
	"application/pdf": ".pdf",
}

var (
	errUnsupportedType = errors.New("only image files (JPEG, PNG, GIF, WEBP, BMP, TIFF, HEIC) or PDF are allowed")
	errFileTooLarge    = errors.New("file too large")
)

// storedUpload describes a receipt written to the upload directory.
type storedUpload struct {
	Filename    string `json:"filename"`
	URL         string `json:"url"`
	Size        int64  `json:"size"`
	ContentType string `json:"mimetype"`
	// path on disk, not exposed
	fullPath string
}

// sniffContentType looks at the leading bytes rather than trusting the client header.
func sniffContentType(head []byte) string {
	switch {
	case ocr.IsHEIC(head):
		return "image/heic"
	case bytes.HasPrefix(head, []byte("II*\x00")), bytes.HasPrefix(head, []byte("MM\x00*")):
		return "image/tiff"
	}
	return http.DetectContentType(head)
}

// saveReceiptUpload validates and stores an uploaded receipt under a random name.
func saveReceiptUpload(fh *multipart.FileHeader, dir string, maxBytes int64) (storedUpload, error) {
	if fh.Size > maxBytes {
		return storedUpload{}, fmt.Errorf("%w (max %dMB)", errFileTooLarge, maxBytes/(1024*1024))
	}
	src, err := fh.Open()
	if err != nil {
		return storedUpload{}, err
	}
	defer src.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(src, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return storedUpload{}, err
	}
	head = head[:n]
	ct := sniffContentType(head)
	ext, ok := receiptTypes[ct]
	if !ok {
		return storedUpload{}, errUnsupportedType
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return storedUpload{}, fmt.Errorf("mkdir upload dir: %w", err)
	}
	name := "receipt-" + uuid.NewString() + ext
	full := filepath.Join(dir, name)
	dst, err := os.OpenFile(full, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return storedUpload{}, err
	}
	size, err := io.Copy(dst, io.MultiReader(bytes.NewReader(head), io.LimitReader(src, maxBytes+1-int64(n))))
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err == nil && size > maxBytes {
		err = fmt.Errorf("%w (max %dMB)", errFileTooLarge, maxBytes/(1024*1024))
	}
	if err != nil {
		os.Remove(full)
		return storedUpload{}, err
	}
	return storedUpload{Filename: name, URL: "/uploads/" + name, Size: size, ContentType: ct, fullPath: full}, nil
}

// removeUpload deletes a stored receipt by its public URL; missing files are ignored.
func removeUpload(dir, fileURL string) {
	if fileURL == "" {
		return
	}
	full := filepath.Join(dir, filepath.Base(fileURL))
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		logger.Warn("failed to remove receipt file", "path", full, "error", err)
	}
}

func removeUploads(dir string, fileURLs []string) {
	for _, u := range fileURLs {
		removeUpload(dir, u)
	}
}
