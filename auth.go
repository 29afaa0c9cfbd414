package main

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"expensemgr/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	accessTokenTTL  = 24 * time.Hour
	refreshTokenTTL = 30 * 24 * time.Hour
)

var (
	errEmailTaken         = errors.New("user with this email already exists")
	errInvalidCredentials = errors.New("invalid email or password")
)

type signupInput struct {
	CompanyName  string
	Country      string
	CurrencyCode string
	Name         string
	Email        string
	Password     string
}

// RegisterCompany creates a company and its first admin user in one transaction.
func RegisterCompany(in signupInput) (models.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" {
		return models.User{}, fmt.Errorf("email required")
	}
	currency := strings.ToUpper(strings.TrimSpace(in.CurrencyCode))
	if currency == "" {
		currency = "USD"
	}
	hashed, err := models.HashPassword(in.Password)
	if err != nil {
		return models.User{}, err
	}

	var user models.User
	err = db.Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.User{}).Where("email = ?", email).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return errEmailTaken
		}
		company := models.Company{Name: strings.TrimSpace(in.CompanyName), Country: in.Country, CurrencyCode: currency}
		if err := tx.Create(&company).Error; err != nil {
			return err
		}
		user = models.User{CompanyID: company.ID, Name: strings.TrimSpace(in.Name), Email: email, PasswordHash: hashed, Role: models.RoleAdmin, Active: true}
		if err := tx.Create(&user).Error; err != nil {
			if isUniqueConstraintError(err) { // race after the count above
				return errEmailTaken
			}
			return err
		}
		return writeAudit(tx, user.ID, models.ActionUserSignup, &company.ID)
	})
	if err != nil {
		return models.User{}, err
	}
	return user, nil
}

// Authenticate checks credentials for an active user.
func Authenticate(email, password string) (models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var user models.User
	if err := db.Where("email = ?", email).First(&user).Error; err != nil {
		return models.User{}, errInvalidCredentials
	}
	if !user.Active {
		return models.User{}, errInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return models.User{}, errInvalidCredentials
	}
	return user, nil
}

// issueAccessToken signs an HS256 token carrying the caller's identity.
func issueAccessToken(user models.User, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"userId":    user.ID,
		"companyId": user.CompanyID,
		"role":      user.Role,
		"email":     user.Email,
		"exp":       time.Now().Add(ttl).Unix(),
	})
	return token.SignedString(jwtSecret)
}

// createAndStoreRefreshToken generates a random refresh token, stores its hash with expiry and returns the raw token string
func createAndStoreRefreshToken(tx *gorm.DB, userID uint) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	token := hex.EncodeToString(b)
	rt := models.RefreshToken{UserID: userID, TokenHash: hashToken(token), ExpiresAt: time.Now().Add(refreshTokenTTL)}
	if err := tx.Create(&rt).Error; err != nil {
		return "", err
	}
	return token, nil
}

func findRefreshTokenByRaw(token string) (*models.RefreshToken, error) {
	var rt models.RefreshToken
	if err := db.Where("token_hash = ?", hashToken(token)).First(&rt).Error; err != nil {
		return nil, err
	}
	return &rt, nil
}

func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// isUniqueConstraintError detects Postgres unique violations (SQLSTATE 23505).
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	s := err.Error()
	return strings.Contains(s, "duplicate key") || strings.Contains(s, "unique constraint")
}
