package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"expensemgr/models"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	email := flag.String("email", "", "email of the user to reset")
	password := flag.String("password", "", "new plaintext password (min 6 chars)")
	revoke := flag.Bool("revoke-sessions", true, "revoke the user's outstanding refresh tokens")
	flag.Parse()
	if *email == "" || *password == "" {
		log.Fatal("--email and --password are required")
	}
	if len(*password) < models.MinPasswordLen {
		log.Fatal(models.ErrPasswordTooShort)
	}
	_ = godotenv.Load()
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		log.Fatal("DB_DSN not set in env")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	var user models.User
	if err := db.Where("email = ?", strings.ToLower(strings.TrimSpace(*email))).First(&user).Error; err != nil {
		log.Fatalf("user not found: %v", err)
	}
	revoked, err := models.ResetPassword(db, user.ID, *password, *revoke)
	if err != nil {
		log.Fatalf("reset failed: %v", err)
	}
	if *revoke {
		fmt.Printf("revoked %d refresh tokens\n", revoked)
	}
	fmt.Printf("Password reset for user %s\n", user.Email)
}
