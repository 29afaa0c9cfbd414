package models

import "time"

// Audit actions.
const (
	ActionUserSignup      = "USER_SIGNUP"
	ActionUserLogin       = "USER_LOGIN"
	ActionUserCreated     = "USER_CREATED"
	ActionUserUpdated     = "USER_UPDATED"
	ActionUserDeleted     = "USER_DELETED"
	ActionPasswordReset   = "PASSWORD_RESET"
	ActionExpenseCreated  = "EXPENSE_CREATED"
	ActionExpenseUpdated  = "EXPENSE_UPDATED"
	ActionExpenseDeleted  = "EXPENSE_DELETED"
	ActionExpenseApproved = "EXPENSE_APPROVED"
	ActionExpenseRejected = "EXPENSE_REJECTED"
	ActionReceiptUploaded = "RECEIPT_UPLOADED"
	ActionReceiptDeleted  = "RECEIPT_DELETED"
)

// AuditLog records who did what to which entity.
type AuditLog struct {
	ID        uint      `gorm:"primaryKey"`
	CreatedAt time.Time `gorm:"index"`
	UserID    uint      `gorm:"index;not null"`
	Action    string    `gorm:"size:64;not null;index"`
	EntityID  *uint
}
