package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

// helper to perform requests with auth token
func performRequest(r http.Handler, method, path string, body io.Reader, token string, contentType string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func setupTestServer(t *testing.T) *gin.Engine {
	// integration tests are opt-in. Set DB_DSN_TEST=1 and DB_DSN to run them.
	if os.Getenv("DB_DSN_TEST") != "1" {
		t.Skip("integration tests are disabled; set DB_DSN_TEST=1 to enable")
	}
	gin.SetMode(gin.TestMode)
	useTestConfig(t)
	cfg.DBDSN = os.Getenv("DB_DSN")
	if err := initDB(cfg); err != nil {
		t.Fatalf("initDB: %v", err)
	}
	r := gin.New()
	setupRoutes(r)
	return r
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return m
}

func TestFullFlow(t *testing.T) {
	r := setupTestServer(t)
	useFakeScanner(t, walmartReceipt())
	email := fmt.Sprintf("owner-%d@example.com", time.Now().UnixNano())

	// 1. Signup company + admin
	body, _ := json.Marshal(map[string]string{"name": "Owner", "email": email, "password": "pass123", "companyName": "Acme", "currencyCode": "EUR"})
	resp := performRequest(r, http.MethodPost, "/api/auth/signup", bytes.NewBuffer(body), "", "application/json")
	if resp.Code != http.StatusCreated {
		t.Fatalf("signup failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	resp = performRequest(r, http.MethodPost, "/api/auth/signup", bytes.NewBuffer(body), "", "application/json")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("duplicate signup status=%d, want 400", resp.Code)
	}

	// 2. Login
	body, _ = json.Marshal(map[string]string{"email": email, "password": "pass123"})
	resp = performRequest(r, http.MethodPost, "/api/auth/login", bytes.NewBuffer(body), "", "application/json")
	if resp.Code != http.StatusOK {
		t.Fatalf("login failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	login := decodeBody(t, resp)
	token, _ := login["token"].(string)
	refresh, _ := login["refresh_token"].(string)
	if token == "" || refresh == "" {
		t.Fatalf("missing tokens in login response: %+v", login)
	}

	// 3. Create expense
	body, _ = json.Marshal(map[string]any{"amount": 45.67, "currencyCode": "usd", "category": "Meals", "expenseDate": "2024-01-15"})
	resp = performRequest(r, http.MethodPost, "/api/expenses", bytes.NewBuffer(body), token, "application/json")
	if resp.Code != http.StatusCreated {
		t.Fatalf("create expense failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	expense, _ := decodeBody(t, resp)["expense"].(map[string]any)
	expenseID := uint(expense["ID"].(float64))

	// 4. Upload receipt linked to the expense
	buf, ct := receiptForm(t, map[string]string{"expenseId": fmt.Sprint(expenseID)})
	resp = performRequest(r, http.MethodPost, "/api/ocr/upload-receipt", buf, token, ct)
	if resp.Code != http.StatusOK {
		t.Fatalf("upload receipt failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	receiptID := uint(decodeBody(t, resp)["receiptId"].(float64))

	// 5. List receipts
	resp = performRequest(r, http.MethodGet, fmt.Sprintf("/api/ocr/receipts/%d", expenseID), nil, token, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("list receipts failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	if rs, _ := decodeBody(t, resp)["receipts"].([]any); len(rs) != 1 {
		t.Fatalf("want 1 receipt, got %d", len(rs))
	}

	// 6. Delete receipt
	resp = performRequest(r, http.MethodDelete, fmt.Sprintf("/api/ocr/receipts/%d", receiptID), nil, token, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("delete receipt failed status=%d body=%s", resp.Code, resp.Body.String())
	}

	// 7. Admins cannot approve their own expense
	resp = performRequest(r, http.MethodPost, fmt.Sprintf("/api/expenses/%d/approve", expenseID), nil, token, "")
	if resp.Code != http.StatusForbidden {
		t.Fatalf("self approve status=%d, want 403", resp.Code)
	}

	// 8. Refresh rotates the token; the old one stops working
	body, _ = json.Marshal(map[string]string{"refresh_token": refresh})
	resp = performRequest(r, http.MethodPost, "/api/auth/refresh", bytes.NewBuffer(body), "", "application/json")
	if resp.Code != http.StatusOK {
		t.Fatalf("refresh failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	resp = performRequest(r, http.MethodPost, "/api/auth/refresh", bytes.NewBuffer(body), "", "application/json")
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("reused refresh token status=%d, want 401", resp.Code)
	}

	// 9. Delete expense; its remaining receipt file goes with it
	buf, ct = receiptForm(t, map[string]string{"expenseId": fmt.Sprint(expenseID)})
	resp = performRequest(r, http.MethodPost, "/api/ocr/upload-receipt", buf, token, ct)
	if resp.Code != http.StatusOK {
		t.Fatalf("second upload failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	fileURL := decodeBody(t, resp)["file"].(map[string]any)["url"].(string)
	stored := filepath.Join(cfg.UploadDir, filepath.Base(fileURL))
	if _, err := os.Stat(stored); err != nil {
		t.Fatalf("uploaded receipt missing on disk: %v", err)
	}
	resp = performRequest(r, http.MethodDelete, fmt.Sprintf("/api/expenses/%d", expenseID), nil, token, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("delete expense failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	if _, err := os.Stat(stored); !os.IsNotExist(err) {
		t.Fatalf("receipt file survived expense deletion: %v", err)
	}

	// 10. Unauthorized access to protected endpoint should be 401
	unauth := performRequest(r, http.MethodGet, "/api/expenses", nil, "", "")
	if unauth.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unauthorized list expenses got %d", unauth.Code)
	}
}

func jsonBody(v any) *bytes.Buffer {
	b, _ := json.Marshal(v)
	return bytes.NewBuffer(b)
}

func TestTeamFlow(t *testing.T) {
	r := setupTestServer(t)
	suffix := time.Now().UnixNano()
	adminEmail := fmt.Sprintf("admin-%d@example.com", suffix)
	staffEmail := fmt.Sprintf("staff-%d@example.com", suffix)

	resp := performRequest(r, http.MethodPost, "/api/auth/signup", jsonBody(map[string]string{"name": "Admin", "email": adminEmail, "password": "pass123", "companyName": "Team Co"}), "", "application/json")
	if resp.Code != http.StatusCreated {
		t.Fatalf("signup status=%d body=%s", resp.Code, resp.Body.String())
	}
	signup := decodeBody(t, resp)
	admin := signup["token"].(string)
	adminID := uint(signup["user"].(map[string]any)["id"].(float64))

	// admin creates an employee reporting to them
	resp = performRequest(r, http.MethodPost, "/api/users", jsonBody(map[string]any{"name": "Staff", "email": staffEmail, "password": "staff123", "role": "employee", "managerId": adminID}), admin, "application/json")
	if resp.Code != http.StatusCreated {
		t.Fatalf("create user status=%d body=%s", resp.Code, resp.Body.String())
	}
	staffID := uint(decodeBody(t, resp)["user"].(map[string]any)["id"].(float64))
	resp = performRequest(r, http.MethodPost, "/api/users", jsonBody(map[string]any{"name": "Dup", "email": staffEmail, "password": "staff123", "role": "employee"}), admin, "application/json")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("duplicate user status=%d, want 400", resp.Code)
	}
	resp = performRequest(r, http.MethodGet, "/api/users", nil, admin, "")
	if users, _ := decodeBody(t, resp)["users"].([]any); len(users) != 2 {
		t.Fatalf("want 2 users, got %d", len(users))
	}

	resp = performRequest(r, http.MethodPost, "/api/auth/login", jsonBody(map[string]string{"email": staffEmail, "password": "staff123"}), "", "application/json")
	if resp.Code != http.StatusOK {
		t.Fatalf("staff login status=%d body=%s", resp.Code, resp.Body.String())
	}
	login := decodeBody(t, resp)
	staff := login["token"].(string)
	staffRefresh := login["refresh_token"].(string)

	resp = performRequest(r, http.MethodPost, "/api/expenses", jsonBody(map[string]any{"amount": 80, "currencyCode": "USD", "category": "Travel", "expenseDate": "2024-02-01"}), staff, "application/json")
	if resp.Code != http.StatusCreated {
		t.Fatalf("create expense status=%d body=%s", resp.Code, resp.Body.String())
	}
	expenseID := uint(decodeBody(t, resp)["expense"].(map[string]any)["ID"].(float64))
	expensePath := fmt.Sprintf("/api/expenses/%d", expenseID)

	// only the owner edits
	resp = performRequest(r, http.MethodPut, expensePath, jsonBody(map[string]any{"amount": 90}), admin, "application/json")
	if resp.Code != http.StatusForbidden {
		t.Fatalf("admin edit status=%d, want 403", resp.Code)
	}

	// reject with no body, then the owner's edit resubmits it
	resp = performRequest(r, http.MethodPost, expensePath+"/reject", nil, admin, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("reject status=%d body=%s", resp.Code, resp.Body.String())
	}
	resp = performRequest(r, http.MethodPut, expensePath, jsonBody(map[string]any{"amount": 75.5, "description": "corrected"}), staff, "application/json")
	if resp.Code != http.StatusOK {
		t.Fatalf("update status=%d body=%s", resp.Code, resp.Body.String())
	}
	updated := decodeBody(t, resp)["expense"].(map[string]any)
	if updated["Status"] != "pending" || updated["AmountOriginal"] != "75.5" || updated["RejectionReason"] != "" {
		t.Fatalf("expense not resubmitted: %v", updated)
	}

	resp = performRequest(r, http.MethodGet, "/api/dashboard/manager", nil, admin, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("manager dashboard status=%d body=%s", resp.Code, resp.Body.String())
	}
	mgr := decodeBody(t, resp)
	if emps, _ := mgr["employees"].([]any); len(emps) != 1 {
		t.Fatalf("manager dashboard employees = %v", mgr["employees"])
	}
	if pending := mgr["summary"].(map[string]any)["pendingExpenses"]; pending != float64(1) {
		t.Fatalf("manager pending = %v", pending)
	}

	resp = performRequest(r, http.MethodPost, expensePath+"/approve", nil, admin, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("approve status=%d body=%s", resp.Code, resp.Body.String())
	}
	resp = performRequest(r, http.MethodPut, expensePath, jsonBody(map[string]any{"amount": 1}), staff, "application/json")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("edit approved status=%d, want 400", resp.Code)
	}

	resp = performRequest(r, http.MethodGet, "/api/dashboard/admin", nil, admin, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("admin dashboard status=%d body=%s", resp.Code, resp.Body.String())
	}
	summary := decodeBody(t, resp)["summary"].(map[string]any)
	if summary["approvedExpenses"] != float64(1) || summary["totalAmount"] != "75.5" || summary["totalUsers"] != float64(2) {
		t.Fatalf("admin summary = %v", summary)
	}
	resp = performRequest(r, http.MethodGet, "/api/dashboard/employee", nil, staff, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("employee dashboard status=%d body=%s", resp.Code, resp.Body.String())
	}
	if cats, _ := decodeBody(t, resp)["expensesByCategory"].([]any); len(cats) != 1 {
		t.Fatalf("employee categories = %v", cats)
	}

	// admins may delete any non-approved expense in the company
	resp = performRequest(r, http.MethodPost, "/api/expenses", jsonBody(map[string]any{"amount": 5, "currencyCode": "USD", "category": "Meals", "expenseDate": "2024-02-02"}), staff, "application/json")
	second := uint(decodeBody(t, resp)["expense"].(map[string]any)["ID"].(float64))
	resp = performRequest(r, http.MethodDelete, fmt.Sprintf("/api/expenses/%d", second), nil, admin, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("admin delete status=%d body=%s", resp.Code, resp.Body.String())
	}

	// reset signs the user out and swaps the password
	resp = performRequest(r, http.MethodPost, fmt.Sprintf("/api/users/%d/reset-password", staffID), jsonBody(map[string]string{"newPassword": "fresh123"}), admin, "application/json")
	if resp.Code != http.StatusOK {
		t.Fatalf("reset password status=%d body=%s", resp.Code, resp.Body.String())
	}
	resp = performRequest(r, http.MethodPost, "/api/auth/refresh", jsonBody(map[string]string{"refresh_token": staffRefresh}), "", "application/json")
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("refresh after reset status=%d, want 401", resp.Code)
	}
	resp = performRequest(r, http.MethodPost, "/api/auth/login", jsonBody(map[string]string{"email": staffEmail, "password": "fresh123"}), "", "application/json")
	if resp.Code != http.StatusOK {
		t.Fatalf("login with new password status=%d", resp.Code)
	}

	resp = performRequest(r, http.MethodPut, fmt.Sprintf("/api/users/%d", staffID), jsonBody(map[string]any{"role": "manager", "managerId": 0}), admin, "application/json")
	if resp.Code != http.StatusOK {
		t.Fatalf("update user status=%d body=%s", resp.Code, resp.Body.String())
	}
	if u := decodeBody(t, resp)["user"].(map[string]any); u["role"] != "manager" || u["managerId"] != nil {
		t.Fatalf("user not updated: %v", u)
	}

	resp = performRequest(r, http.MethodDelete, fmt.Sprintf("/api/users/%d", adminID), nil, admin, "")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("self delete status=%d, want 400", resp.Code)
	}
	resp = performRequest(r, http.MethodDelete, fmt.Sprintf("/api/users/%d", staffID), nil, admin, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("delete user status=%d body=%s", resp.Code, resp.Body.String())
	}
	resp = performRequest(r, http.MethodGet, fmt.Sprintf("/api/users/%d", staffID), nil, admin, "")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("deleted user status=%d, want 404", resp.Code)
	}
}

func TestMigrateCommand(t *testing.T) {
	if os.Getenv("DB_DSN_TEST") != "1" {
		t.Skip("integration tests are disabled; set DB_DSN_TEST=1 to enable")
	}
	useTestConfig(t)
	cfg.DBDSN = os.Getenv("DB_DSN")
	if err := initDB(cfg); err != nil {
		t.Fatalf("initDB: %v", err)
	}
}

// receiptForm builds a multipart body with a small PNG under "receipt".
func receiptForm(t *testing.T, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	w, _ := mw.CreateFormFile("receipt", "receipt.png")
	_, _ = w.Write(testPNG(t))
	_ = mw.Close()
	return buf, mw.FormDataContentType()
}
