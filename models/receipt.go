package models

import (
	"time"
)

// ExpenseReceipt links a stored receipt file and its OCR output to an expense.
type ExpenseReceipt struct {
	ID         uint      `gorm:"primaryKey"`
	UploadedAt time.Time `gorm:"autoCreateTime"`
	ExpenseID  uint      `gorm:"index;not null"`
	FileURL    string    `gorm:"size:512;not null"`
	// OCRData is the serialized extraction result (jsonb).
	OCRData string `gorm:"type:jsonb"`
}
