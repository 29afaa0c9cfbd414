package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Expense statuses. Approval is a single status column.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Expense is a claim submitted by an employee.
type Expense struct {
	ID              uint `gorm:"primaryKey"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
	UserID          uint            `gorm:"index;not null"`
	User            *User           `json:",omitempty" gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	CompanyID       uint            `gorm:"index;not null"`
	AmountOriginal  decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	CurrencyCode    string          `gorm:"size:3;not null"`
	AmountConverted decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	Category        string          `gorm:"size:64;not null;index"`
	Description     string          `gorm:"size:1024"`
	ExpenseDate     time.Time       `gorm:"type:date;not null;index"`
	Status          string          `gorm:"size:16;not null;default:pending;index"`
	ApproverID      *uint           `gorm:"index"`
	ApprovedAt      *time.Time
	RejectionReason string           `gorm:"size:512"`
	Receipts        []ExpenseReceipt `json:",omitempty" gorm:"foreignKey:ExpenseID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}
