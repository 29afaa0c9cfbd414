package report

import (
	"fmt"
	"io"
	"os"
	"time"

	"expensemgr/models"

	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// CurrencyTotal is the sum of one user's expenses in a single currency.
type CurrencyTotal struct {
	CurrencyCode string
	Count        int64
	Total        decimal.Decimal
}

// OpenDB connects to the Postgres DSN in DB_DSN.
func OpenDB() (*gorm.DB, error) {
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		return nil, fmt.Errorf("DB_DSN not set in env")
	}
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return gdb, nil
}

// MonthRange returns [start, end) in UTC for a YYYY-MM month.
func MonthRange(month string) (time.Time, time.Time, error) {
	t, err := time.Parse("2006-01", month)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid month format, expected YYYY-MM: %w", err)
	}
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0), nil
}

// Totals sums a user's expenses per currency between start and end. Rejected
// expenses are excluded.
func Totals(gdb *gorm.DB, userID uint, start, end time.Time) ([]CurrencyTotal, error) {
	var out []CurrencyTotal
	err := gdb.Model(&models.Expense{}).
		Select("currency_code, COUNT(*) AS count, COALESCE(SUM(amount_original),0) AS total").
		Where("user_id = ? AND expense_date >= ? AND expense_date < ? AND status <> ?", userID, start, end, models.StatusRejected).
		Group("currency_code").
		Order("currency_code").
		Scan(&out).Error
	return out, err
}

// RunReport prints a month-bounded report for the user with email (month in
// YYYY-MM) and optionally lists the matching expenses.
func RunReport(gdb *gorm.DB, w io.Writer, email, month string, list bool) error {
	start, end, err := MonthRange(month)
	if err != nil {
		return err
	}
	var user models.User
	if err := gdb.Where("email = ?", email).First(&user).Error; err != nil {
		return fmt.Errorf("user not found: %w", err)
	}
	totals, err := Totals(gdb, user.ID, start, end)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	WriteSummary(w, user.Email, month, totals)

	if list {
		var rows []models.Expense
		if err := gdb.Where("user_id = ? AND expense_date >= ? AND expense_date < ?", user.ID, start, end).Order("expense_date, id").Find(&rows).Error; err != nil {
			return fmt.Errorf("fetch rows failed: %w", err)
		}
		for _, r := range rows {
			WriteRow(w, r)
		}
	}
	return nil
}

// WriteSummary prints the per-currency totals block.
func WriteSummary(w io.Writer, email, month string, totals []CurrencyTotal) {
	fmt.Fprintf(w, "Report for user=%s month=%s (UTC):\n", email, month)
	if len(totals) == 0 {
		fmt.Fprintln(w, "  no expenses")
		return
	}
	for _, t := range totals {
		fmt.Fprintf(w, "  %s records=%d total=%s\n", t.CurrencyCode, t.Count, t.Total.StringFixed(2))
	}
}

// WriteRow prints one expense as a pipe-separated line.
func WriteRow(w io.Writer, e models.Expense) {
	fmt.Fprintf(w, "%d|%s|%s|%s|%s|%s\n", e.ID, e.ExpenseDate.Format("2006-01-02"), e.AmountOriginal.StringFixed(2), e.CurrencyCode, e.Category, e.Status)
}
