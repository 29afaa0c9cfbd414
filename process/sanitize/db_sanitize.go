package sanitize

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"expensemgr/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// DefaultTables are the application tables a reset truncates.
const DefaultTables = "audit_logs,refresh_tokens,expense_receipts,expenses,users,companies"

// Options control a reset.
type Options struct {
	Tables string
	DryRun bool
	Yes    bool
	Reseed bool
}

var tableNameRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ParseTables splits a comma-separated list, dropping blanks and anything that
// is not a plain identifier.
func ParseTables(csv string) (valid, rejected []string) {
	for _, p := range strings.Split(csv, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !tableNameRE.MatchString(p) {
			rejected = append(rejected, p)
			continue
		}
		valid = append(valid, p)
	}
	return valid, rejected
}

// TruncateStatement builds the TRUNCATE for already validated table names.
func TruncateStatement(tables []string) string {
	quoted := make([]string, 0, len(tables))
	for _, t := range tables {
		quoted = append(quoted, fmt.Sprintf("%q", t))
	}
	return fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", strings.Join(quoted, ", "))
}

// Run truncates the requested tables that exist, then optionally reseeds the
// demo company and admin. Nothing is changed unless DryRun is false and Yes is set.
func Run(gdb *gorm.DB, opts Options, w io.Writer) error {
	wanted, rejected := ParseTables(opts.Tables)
	for _, r := range rejected {
		fmt.Fprintf(w, "warning: skipping invalid table name '%s'\n", r)
	}

	existing := []string{}
	// check presence individually to avoid any injection risk
	for _, t := range wanted {
		var cnt int64
		if err := gdb.Raw("SELECT count(*) FROM pg_tables WHERE schemaname = 'public' AND tablename = ?", t).Scan(&cnt).Error; err != nil {
			return fmt.Errorf("query pg_tables for %s: %w", t, err)
		}
		if cnt > 0 {
			existing = append(existing, t)
		} else {
			fmt.Fprintf(w, "info: table %s not found, skipping\n", t)
		}
	}
	if len(existing) == 0 {
		fmt.Fprintln(w, "no requested tables present in the database; nothing to do")
		return nil
	}

	fmt.Fprintln(w, "Tables considered for truncation:")
	for _, t := range existing {
		fmt.Fprintf(w, " - %s\n", t)
	}
	if opts.DryRun {
		fmt.Fprintln(w, "dry-run enabled; no changes will be made. Use --dry-run=false --yes to execute.")
		return nil
	}
	if !opts.Yes {
		fmt.Fprintln(w, "Destructive operation. Pass --yes to confirm execution. Aborting.")
		return nil
	}

	stmt := TruncateStatement(existing)
	fmt.Fprintf(w, "Executing: %s\n", stmt)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := gdb.WithContext(ctx).Exec(stmt).Error; err != nil {
		return fmt.Errorf("truncate failed: %w", err)
	}
	fmt.Fprintln(w, "Truncate completed.")

	if opts.Reseed {
		if err := reseedAdmin(gdb); err != nil {
			return fmt.Errorf("reseed failed: %w", err)
		}
		fmt.Fprintln(w, "Reseeded admin@example.com / admin123")
	}
	return nil
}

func reseedAdmin(gdb *gorm.DB) error {
	hashed, err := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}
	return gdb.Transaction(func(tx *gorm.DB) error {
		company := models.Company{Name: "Demo Company", Country: "US", CurrencyCode: "USD"}
		if err := tx.Create(&company).Error; err != nil {
			return fmt.Errorf("failed to create company: %w", err)
		}
		admin := models.User{CompanyID: company.ID, Name: "Administrator", Email: "admin@example.com", PasswordHash: hashed, Role: models.RoleAdmin, Active: true}
		if err := tx.Create(&admin).Error; err != nil {
			return fmt.Errorf("failed to create admin user: %w", err)
		}
		return nil
	})
}
