package models

import (
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// MinPasswordLen is the shortest password accepted anywhere.
const MinPasswordLen = 6

var ErrPasswordTooShort = fmt.Errorf("password too short (min %d)", MinPasswordLen)

// User model
type User struct {
	ID           uint `gorm:"primaryKey"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompanyID    uint     `gorm:"index;not null"`
	Company      *Company `json:"-" gorm:"foreignKey:CompanyID"`
	ManagerID    *uint    `gorm:"index"`
	Name         string   `gorm:"size:255;not null"`
	Email        string   `gorm:"size:255;not null;uniqueIndex"`
	PasswordHash []byte   `json:"-" gorm:"not null"`
	Role         string   `gorm:"size:16;not null;default:employee;index"`
	Active       bool     `gorm:"default:true;not null"`
}

// HashPassword bcrypts a plaintext password after checking its length.
func HashPassword(password string) ([]byte, error) {
	if len(password) < MinPasswordLen {
		return nil, ErrPasswordTooShort
	}
	return bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
}

// ResetPassword stores a new hash for userID and, when revokeSessions is set,
// revokes the user's outstanding refresh tokens. It returns how many were revoked.
func ResetPassword(tx *gorm.DB, userID uint, password string, revokeSessions bool) (int64, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return 0, err
	}
	res := tx.Model(&User{}).Where("id = ?", userID).Update("password_hash", hash)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, gorm.ErrRecordNotFound
	}
	if !revokeSessions {
		return 0, nil
	}
	res = tx.Model(&RefreshToken{}).Where("user_id = ? AND revoked_at IS NULL", userID).Update("revoked_at", gorm.Expr("NOW()"))
	if res.Error != nil {
		return 0, fmt.Errorf("revoke sessions: %w", res.Error)
	}
	return res.RowsAffected, nil
}

