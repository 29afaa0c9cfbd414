package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"

	"expensemgr/models"
	"expensemgr/pkg/ocr"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// receiptProcessor is the part of *ocr.Pipeline the handlers need.
type receiptProcessor interface {
	Process(ctx context.Context, path string) (*ocr.ExtractedReceiptData, error)
}

var (
	receiptScanner receiptProcessor
	// scanSlots bounds concurrent pipeline runs; nil means unbounded.
	scanSlots chan struct{}
)

// runScan waits for a free slot then runs the pipeline under the configured timeout.
func runScan(ctx context.Context, path string) (*ocr.ExtractedReceiptData, error) {
	if receiptScanner == nil {
		return nil, errors.New("receipt scanner not initialised")
	}
	if cfg.ScanTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ScanTimeout)
		defer cancel()
	}
	if scanSlots != nil {
		select {
		case scanSlots <- struct{}{}:
			defer func() { <-scanSlots }()
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return receiptScanner.Process(ctx, path)
}

func respondScanError(c *gin.Context, msg string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case ocr.Stage(err) == ocr.StageNormalize:
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, gin.H{"error": msg, "stage": ocr.Stage(err), "details": err.Error()})
}

// receiptFromRequest stores the multipart "receipt" file or writes the error response.
func receiptFromRequest(c *gin.Context) (storedUpload, bool) {
	fh, err := c.FormFile("receipt")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return storedUpload{}, false
	}
	up, err := saveReceiptUpload(fh, cfg.UploadDir, int64(cfg.MaxUploadMB)*1024*1024)
	if errors.Is(err, errUnsupportedType) || errors.Is(err, errFileTooLarge) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return storedUpload{}, false
	}
	if err != nil {
		logger.Error("store receipt failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store receipt"})
		return storedUpload{}, false
	}
	return up, true
}

func discardUpload(up storedUpload) {
	if err := os.Remove(up.fullPath); err != nil && !os.IsNotExist(err) {
		logger.Warn("cleanup failed", "path", up.fullPath, "error", err)
	}
}

// fieldsView renders extracted data. A non-empty fallbackCurrency replaces a
// missing currency; otherwise a missing currency stays null.
func fieldsView(data *ocr.ExtractedReceiptData, withText bool, fallbackCurrency string) gin.H {
	var currency any = data.Currency
	if data.Currency == nil && fallbackCurrency != "" {
		currency = fallbackCurrency
	}
	h := gin.H{
		"amount":     data.Amount,
		"currency":   currency,
		"date":       data.Date,
		"merchant":   data.Merchant,
		"category":   data.Category,
		"confidence": data.Confidence,
	}
	if withText {
		h["rawText"] = data.RawText
		h["wordCount"] = data.WordCount
		h["lineCount"] = data.LineCount
	}
	return h
}

func scanReceiptHandler(c *gin.Context) {
	claims := currentClaims(c)
	up, ok := receiptFromRequest(c)
	if !ok {
		return
	}
	logger.Info("processing receipt", "user_id", claims.UserID, "file", up.Filename)
	data, err := runScan(c.Request.Context(), up.fullPath)
	if err != nil {
		discardUpload(up)
		respondScanError(c, "Failed to process receipt", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Receipt scanned successfully",
		"data":    fieldsView(data, true, cfg.DefaultCurrency),
		"file":    up,
	})
}

func uploadReceiptHandler(c *gin.Context) {
	claims := currentClaims(c)
	var expenseID uint
	if v := c.PostForm("expenseId"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil || id == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid expenseId"})
			return
		}
		expenseID = uint(id)
	}
	up, ok := receiptFromRequest(c)
	if !ok {
		return
	}
	if expenseID != 0 {
		var n int64
		if err := db.Model(&models.Expense{}).Where("id = ? AND user_id = ?", expenseID, claims.UserID).Count(&n).Error; err != nil || n == 0 {
			discardUpload(up)
			c.JSON(http.StatusNotFound, gin.H{"error": "Expense not found or access denied"})
			return
		}
	}

	data, err := runScan(c.Request.Context(), up.fullPath)
	if err != nil {
		discardUpload(up)
		respondScanError(c, "Failed to upload receipt", err)
		return
	}
	if expenseID == 0 {
		c.JSON(http.StatusOK, gin.H{
			"message":       "Receipt uploaded and processed",
			"file":          up,
			"extractedData": fieldsView(data, true, ""),
		})
		return
	}

	raw, err := json.Marshal(data)
	if err != nil {
		discardUpload(up)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to upload receipt"})
		return
	}
	receipt := models.ExpenseReceipt{ExpenseID: expenseID, FileURL: up.URL, OCRData: string(raw)}
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&receipt).Error; err != nil {
			return err
		}
		return writeAudit(tx, claims.UserID, models.ActionReceiptUploaded, &receipt.ID)
	})
	if err != nil {
		discardUpload(up)
		logger.Error("save receipt failed", "expense_id", expenseID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to upload receipt"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":       "Receipt uploaded and linked to expense",
		"receiptId":     receipt.ID,
		"file":          up,
		"extractedData": fieldsView(data, false, ""),
	})
}

func listReceiptsHandler(c *gin.Context) {
	expenseID, ok := parseIDParam(c, "expenseId")
	if !ok {
		return
	}
	var n int64
	if err := visibleExpenses(db.Model(&models.Expense{}), currentClaims(c)).Where("expenses.id = ?", expenseID).Count(&n).Error; err != nil || n == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Expense not found or access denied"})
		return
	}
	var receipts []models.ExpenseReceipt
	if err := db.Where("expense_id = ?", expenseID).Order("uploaded_at DESC").Find(&receipts).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch receipts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"receipts": receipts})
}

func deleteReceiptHandler(c *gin.Context) {
	receiptID, ok := parseIDParam(c, "receiptId")
	if !ok {
		return
	}
	claims := currentClaims(c)
	var receipt models.ExpenseReceipt
	if err := db.First(&receipt, receiptID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Receipt not found"})
		return
	}
	var n int64
	if err := visibleExpenses(db.Model(&models.Expense{}), claims).Where("expenses.id = ?", receipt.ExpenseID).Count(&n).Error; err != nil || n == 0 {
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
		return
	}
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&receipt).Error; err != nil {
			return err
		}
		return writeAudit(tx, claims.UserID, models.ActionReceiptDeleted, &receipt.ID)
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete receipt"})
		return
	}
	removeUpload(cfg.UploadDir, receipt.FileURL)
	c.JSON(http.StatusOK, gin.H{"message": "Receipt deleted successfully"})
}
