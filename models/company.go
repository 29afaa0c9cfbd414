package models

import "time"

// Company is the tenant every user and expense belongs to.
type Company struct {
	ID           uint `gorm:"primaryKey"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Name         string `gorm:"size:255;not null"`
	Country      string `gorm:"size:128"`
	CurrencyCode string `gorm:"size:3;not null;default:USD"`
	Users        []User `gorm:"foreignKey:CompanyID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}
