package report

import (
	"bytes"
	"testing"
	"time"

	"expensemgr/models"

	"github.com/shopspring/decimal"
)

func TestMonthRange(t *testing.T) {
	start, end, err := MonthRange("2024-12")
	if err != nil {
		t.Fatal(err)
	}
	if !start.Equal(time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)) || !end.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("range = %v..%v", start, end)
	}
	for _, bad := range []string{"", "2024-13", "12-2024", "2024/01"} {
		if _, _, err := MonthRange(bad); err == nil {
			t.Errorf("MonthRange(%q) should fail", bad)
		}
	}
}

func TestWriteSummary(t *testing.T) {
	var buf bytes.Buffer
	WriteSummary(&buf, "a@example.com", "2024-01", []CurrencyTotal{
		{CurrencyCode: "EUR", Count: 2, Total: decimal.RequireFromString("12.5")},
		{CurrencyCode: "USD", Count: 1, Total: decimal.RequireFromString("45.67")},
	})
	want := "Report for user=a@example.com month=2024-01 (UTC):\n" +
		"  EUR records=2 total=12.50\n" +
		"  USD records=1 total=45.67\n"
	if buf.String() != want {
		t.Fatalf("got\n%s\nwant\n%s", buf.String(), want)
	}

	buf.Reset()
	WriteSummary(&buf, "a@example.com", "2024-02", nil)
	if !bytes.Contains(buf.Bytes(), []byte("no expenses")) {
		t.Fatalf("empty report = %q", buf.String())
	}
}

func TestWriteRow(t *testing.T) {
	var buf bytes.Buffer
	WriteRow(&buf, models.Expense{
		ID:             7,
		ExpenseDate:    time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		AmountOriginal: decimal.NewFromFloat(3),
		CurrencyCode:   "GBP",
		Category:       "Meals",
		Status:         models.StatusPending,
	})
	if got, want := buf.String(), "7|2024-01-15|3.00|GBP|Meals|pending\n"; got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}
