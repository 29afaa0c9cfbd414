package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"expensemgr/models"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Println("usage: go run ./cmd/create_user <email> <password> [employee|manager|admin]")
		os.Exit(2)
	}
	email := strings.ToLower(strings.TrimSpace(os.Args[1]))
	password := os.Args[2]
	role := models.RoleEmployee
	if len(os.Args) > 3 {
		role = os.Args[3]
	}
	if !models.ValidRole(role) {
		log.Fatalf("unknown role %q", role)
	}
	if len(password) < 6 {
		log.Fatal("password too short (min 6)")
	}

	_ = godotenv.Load()
	dsn := os.Getenv("DB_DSN")
	if strings.TrimSpace(dsn) == "" {
		log.Fatal("DB_DSN not set in environment")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to open db: %v", err)
	}

	// users join the first company; a fresh database gets one created
	var company models.Company
	if err := db.Order("id").First(&company).Error; err != nil {
		company = models.Company{Name: "Demo Company", Country: "US", CurrencyCode: "USD"}
		if err := db.Create(&company).Error; err != nil {
			log.Fatalf("failed to create company: %v", err)
		}
	}

	var existing models.User
	if err := db.Where("email = ?", email).First(&existing).Error; err == nil {
		fmt.Printf("user %s already exists (id=%d)\n", email, existing.ID)
		os.Exit(0)
	}

	hpw, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("bcrypt failed: %v", err)
	}
	name, _, _ := strings.Cut(email, "@")
	user := models.User{CompanyID: company.ID, Name: name, Email: email, PasswordHash: hpw, Role: role, Active: true}
	if err := db.Create(&user).Error; err != nil {
		log.Fatalf("failed to create user: %v", err)
	}
	fmt.Printf("created %s %s id=%d in company %q\n", role, email, user.ID, company.Name)
}
