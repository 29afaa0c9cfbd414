package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"expensemgr/models"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func ptr[T any](v T) *T { return &v }

func TestExpenseUpdates(t *testing.T) {
	got, err := expenseUpdates(updateExpenseRequest{
		Amount:       ptr(12.345),
		CurrencyCode: ptr("eur"),
		Category:     ptr("  Travel "),
		ExpenseDate:  ptr("2024-03-01"),
	}, models.StatusPending)
	if err != nil {
		t.Fatalf("expenseUpdates: %v", err)
	}
	if !got["amount_original"].(decimal.Decimal).Equal(decimal.RequireFromString("12.35")) {
		t.Errorf("amount_original = %v", got["amount_original"])
	}
	if got["currency_code"] != "EUR" || got["category"] != "Travel" {
		t.Errorf("unexpected updates %v", got)
	}
	if _, ok := got["status"]; ok {
		t.Errorf("pending expense should keep its status: %v", got)
	}

	got, err = expenseUpdates(updateExpenseRequest{Description: ptr("fixed total")}, models.StatusRejected)
	if err != nil {
		t.Fatalf("expenseUpdates rejected: %v", err)
	}
	if got["status"] != models.StatusPending || got["rejection_reason"] != "" || got["approver_id"] != nil {
		t.Errorf("rejected expense not resubmitted: %v", got)
	}

	bad := []struct {
		name string
		req  updateExpenseRequest
	}{
		{"empty", updateExpenseRequest{}},
		{"blank category", updateExpenseRequest{Category: ptr("   ")}},
		{"bad date", updateExpenseRequest{ExpenseDate: ptr("03/01/2024")}},
	}
	for _, tc := range bad {
		if _, err := expenseUpdates(tc.req, models.StatusPending); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

func TestUpdateExpenseValidatesBody(t *testing.T) {
	r := testRouter(t)
	tok := tokenFor(t, 1, models.RoleEmployee)
	for _, body := range []string{`{"amount": -5}`, `{"currencyCode": "EURO"}`, `{not json`} {
		resp := performRequest(r, http.MethodPut, "/api/expenses/1", strings.NewReader(body), tok, "application/json")
		if resp.Code != http.StatusBadRequest {
			t.Errorf("body %s: status=%d want 400", body, resp.Code)
		}
	}
}

func TestRejectRequiresWellFormedBody(t *testing.T) {
	r := testRouter(t)
	resp := performRequest(r, http.MethodPost, "/api/expenses/1/reject", strings.NewReader(`{"reason":`), tokenFor(t, 2, models.RoleManager), "application/json")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("malformed reject body status=%d want 400", resp.Code)
	}
}

func TestBindRejectionReason(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		name   string
		body   string
		want   string
		wantOK bool
	}{
		{"empty body", "", "", true},
		{"reason", `{"reason": "  duplicate claim "}`, "duplicate claim", true},
		{"no reason", `{}`, "", true},
		{"truncated", `{"reason":`, "", false},
		{"wrong type", `{"reason": 5}`, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			var err error
			if tc.body == "" {
				c.Request, err = http.NewRequest(http.MethodPost, "/", nil)
			} else {
				c.Request, err = http.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			}
			if err != nil {
				t.Fatal(err)
			}
			c.Request.Header.Set("Content-Type", "application/json")
			got, ok := bindRejectionReason(c)
			if got != tc.want || ok != tc.wantOK {
				t.Fatalf("got %q,%v want %q,%v", got, ok, tc.want, tc.wantOK)
			}
			if !ok && w.Code != http.StatusBadRequest {
				t.Fatalf("status=%d want 400", w.Code)
			}
		})
	}
}

// dryRunDB renders SQL without a server; the postgres dialector connects lazily.
func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(postgres.Open("host=localhost user=test dbname=test sslmode=disable"), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
	})
	if err != nil {
		t.Fatalf("open dry-run db: %v", err)
	}
	return gdb
}

func TestDeletableExpensesScope(t *testing.T) {
	gdb := dryRunDB(t)
	cases := []struct {
		role string
		want string
		arg  uint
	}{
		{models.RoleAdmin, "expenses.company_id = $1", 9},
		{models.RoleManager, "expenses.user_id = $1", 4},
		{models.RoleEmployee, "expenses.user_id = $1", 4},
	}
	for _, tc := range cases {
		claims := authClaims{UserID: 4, CompanyID: 9, Role: tc.role}
		stmt := deletableExpenses(gdb.Model(&models.Expense{}), claims).Find(&[]models.Expense{}).Statement
		if sql := stmt.SQL.String(); !strings.Contains(sql, tc.want) {
			t.Errorf("%s: sql %q missing %q", tc.role, sql, tc.want)
		}
		if len(stmt.Vars) != 1 || stmt.Vars[0] != tc.arg {
			t.Errorf("%s: vars %v want [%d]", tc.role, stmt.Vars, tc.arg)
		}
	}
}
