package main

import (
	"errors"
	"fmt"
	"os"

	"expensemgr/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var db *gorm.DB

func initDB(cfg Config) error {
	if cfg.DBDSN == "" {
		return errors.New("DB_DSN is not set. This project requires a Postgres DSN in --db-dsn or DB_DSN")
	}
	var err error
	db, err = gorm.Open(postgres.Open(cfg.DBDSN), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	if !cfg.SkipMigrate {
		migrate()
	}
	seedDB()
	ensureUploadBase(cfg.UploadDir)
	return nil
}

// migrate runs AutoMigrate per model so one failure (e.g. missing
// permissions) does not block the others.
func migrate() {
	tables := []struct {
		name  string
		model any
	}{
		{"companies", &models.Company{}},
		{"users", &models.User{}},
		{"expenses", &models.Expense{}},
		{"expense_receipts", &models.ExpenseReceipt{}},
		{"audit_logs", &models.AuditLog{}},
		{"refresh_tokens", &models.RefreshToken{}},
	}
	for _, t := range tables {
		if err := db.AutoMigrate(t.model); err != nil {
			logger.Warn("migration warning", "table", t.name, "error", err)
		}
	}
}

// seedDB creates a demo company and admin on an empty database.
func seedDB() {
	var count int64
	if err := db.Model(&models.User{}).Count(&count).Error; err != nil {
		logger.Warn("seed: count users failed", "error", err)
		return
	}
	if count > 0 {
		return
	}
	err := db.Transaction(func(tx *gorm.DB) error {
		company := models.Company{Name: "Demo Company", Country: "US", CurrencyCode: "USD"}
		if err := tx.Create(&company).Error; err != nil {
			return err
		}
		hashed, err := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		admin := models.User{CompanyID: company.ID, Name: "Administrator", Email: "admin@example.com", PasswordHash: hashed, Role: models.RoleAdmin, Active: true}
		return tx.Create(&admin).Error
	})
	if err != nil {
		logger.Warn("seed admin failed", "error", err)
		return
	}
	logger.Info("seeded admin user", "email", "admin@example.com", "password", "admin123")
}

// ensureUploadBase creates the receipt upload directory.
func ensureUploadBase(dir string) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Warn("failed to create upload dir", "dir", dir, "error", err)
	}
}
