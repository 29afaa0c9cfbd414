package main

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"expensemgr/models"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	dateLayout        = "2006-01-02"
	maxExpensesListed = 200
)

// visibleExpenses scopes an expense query to what the caller may see:
// employees their own, managers their own plus direct reports, admins the company.
func visibleExpenses(tx *gorm.DB, claims authClaims) *gorm.DB {
	switch claims.Role {
	case models.RoleAdmin:
		return tx.Where("expenses.company_id = ?", claims.CompanyID)
	case models.RoleManager:
		reports := db.Model(&models.User{}).Select("id").Where("manager_id = ?", claims.UserID)
		return tx.Where("expenses.company_id = ? AND (expenses.user_id = ? OR expenses.user_id IN (?))", claims.CompanyID, claims.UserID, reports)
	default:
		return tx.Where("expenses.user_id = ?", claims.UserID)
	}
}

func parseIDParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return uint(id), true
}

func listExpensesHandler(c *gin.Context) {
	claims := currentClaims(c)
	q := visibleExpenses(db.Model(&models.Expense{}), claims)
	if s := c.Query("status"); s != "" {
		q = q.Where("status = ?", s)
	}
	if cat := c.Query("category"); cat != "" {
		q = q.Where("category = ?", cat)
	}
	if v := c.Query("startDate"); v != "" {
		d, err := time.Parse(dateLayout, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "startDate must be YYYY-MM-DD"})
			return
		}
		q = q.Where("expense_date >= ?", d)
	}
	if v := c.Query("endDate"); v != "" {
		d, err := time.Parse(dateLayout, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "endDate must be YYYY-MM-DD"})
			return
		}
		q = q.Where("expense_date <= ?", d)
	}
	var expenses []models.Expense
	if err := q.Order("expense_date DESC, id DESC").Limit(maxExpensesListed).Find(&expenses).Error; err != nil {
		logger.Error("list expenses failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch expenses"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"expenses": expenses})
}

func getExpenseHandler(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var e models.Expense
	err := visibleExpenses(db.Preload("Receipts"), currentClaims(c)).First(&e, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "expense not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch expense"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"expense": e})
}

type createExpenseRequest struct {
	Amount       float64 `json:"amount" binding:"required,gt=0"`
	CurrencyCode string  `json:"currencyCode" binding:"required,len=3"`
	Category     string  `json:"category" binding:"required"`
	Description  string  `json:"description"`
	ExpenseDate  string  `json:"expenseDate" binding:"required"`
}

func createExpenseHandler(c *gin.Context) {
	var req createExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	date, err := time.Parse(dateLayout, req.ExpenseDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expenseDate must be YYYY-MM-DD"})
		return
	}
	claims := currentClaims(c)
	amount := decimal.NewFromFloat(req.Amount).Round(2)
	e := models.Expense{
		UserID:         claims.UserID,
		CompanyID:      claims.CompanyID,
		AmountOriginal: amount,
		CurrencyCode:   strings.ToUpper(req.CurrencyCode),
		// no exchange-rate source is configured; the converted amount mirrors the original
		AmountConverted: amount,
		Category:        strings.TrimSpace(req.Category),
		Description:     strings.TrimSpace(req.Description),
		ExpenseDate:     date,
		Status:          models.StatusPending,
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&e).Error; err != nil {
			return err
		}
		return writeAudit(tx, claims.UserID, models.ActionExpenseCreated, &e.ID)
	})
	if err != nil {
		logger.Error("create expense failed", "user_id", claims.UserID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create expense"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "expense created", "expense": e})
}

var errNoExpenseFields = errors.New("no fields to update")

type updateExpenseRequest struct {
	Amount       *float64 `json:"amount" binding:"omitempty,gt=0"`
	CurrencyCode *string  `json:"currencyCode" binding:"omitempty,len=3"`
	Category     *string  `json:"category"`
	Description  *string  `json:"description"`
	ExpenseDate  *string  `json:"expenseDate"`
}

// expenseUpdates turns a partial update into column values. Editing a
// rejected expense resubmits it: status returns to pending and the previous
// decision is cleared.
func expenseUpdates(req updateExpenseRequest, status string) (map[string]any, error) {
	updates := map[string]any{}
	if req.Amount != nil {
		amount := decimal.NewFromFloat(*req.Amount).Round(2)
		updates["amount_original"] = amount
		updates["amount_converted"] = amount
	}
	if req.CurrencyCode != nil {
		updates["currency_code"] = strings.ToUpper(*req.CurrencyCode)
	}
	if req.Category != nil {
		cat := strings.TrimSpace(*req.Category)
		if cat == "" {
			return nil, errors.New("category cannot be empty")
		}
		updates["category"] = cat
	}
	if req.Description != nil {
		updates["description"] = strings.TrimSpace(*req.Description)
	}
	if req.ExpenseDate != nil {
		d, err := time.Parse(dateLayout, *req.ExpenseDate)
		if err != nil {
			return nil, errors.New("expenseDate must be YYYY-MM-DD")
		}
		updates["expense_date"] = d
	}
	if len(updates) == 0 {
		return nil, errNoExpenseFields
	}
	if status == models.StatusRejected {
		updates["status"] = models.StatusPending
		updates["approver_id"] = nil
		updates["approved_at"] = nil
		updates["rejection_reason"] = ""
	}
	return updates, nil
}

// updateExpenseHandler lets the owner edit a pending or rejected expense.
func updateExpenseHandler(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req updateExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	claims := currentClaims(c)
	var e models.Expense
	if err := db.Where("id = ? AND company_id = ?", id, claims.CompanyID).First(&e).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "expense not found"})
		return
	}
	if e.UserID != claims.UserID {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the owner can edit an expense"})
		return
	}
	if e.Status == models.StatusApproved {
		c.JSON(http.StatusBadRequest, gin.H{"error": "approved expenses cannot be updated"})
		return
	}
	updates, err := expenseUpdates(req, e.Status)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Expense{}).
			Where("id = ? AND status = ?", e.ID, e.Status).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return writeAudit(tx, claims.UserID, models.ActionExpenseUpdated, &e.ID)
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusConflict, gin.H{"error": "expense was reviewed concurrently"})
		return
	}
	if err != nil {
		logger.Error("update expense failed", "expense_id", e.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update expense"})
		return
	}
	if err := db.First(&e, e.ID).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch expense"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "expense updated", "expense": e})
}

// deleteExpenseHandler removes a non-approved expense with its receipts.
// Owners may delete their own; admins any in their company.
func deleteExpenseHandler(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	claims := currentClaims(c)
	var e models.Expense
	if err := deletableExpenses(db, claims).First(&e, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "expense not found"})
		return
	}
	if e.Status == models.StatusApproved {
		c.JSON(http.StatusBadRequest, gin.H{"error": "approved expenses cannot be deleted"})
		return
	}
	var files []string
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.ExpenseReceipt{}).Where("expense_id = ?", e.ID).Pluck("file_url", &files).Error; err != nil {
			return err
		}
		if err := tx.Where("expense_id = ?", e.ID).Delete(&models.ExpenseReceipt{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&e).Error; err != nil {
			return err
		}
		return writeAudit(tx, claims.UserID, models.ActionExpenseDeleted, &e.ID)
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete expense"})
		return
	}
	removeUploads(cfg.UploadDir, files)
	c.JSON(http.StatusOK, gin.H{"message": "expense deleted"})
}

func deletableExpenses(tx *gorm.DB, claims authClaims) *gorm.DB {
	if claims.Role == models.RoleAdmin {
		return tx.Where("expenses.company_id = ?", claims.CompanyID)
	}
	return tx.Where("expenses.user_id = ?", claims.UserID)
}

func approveExpenseHandler(c *gin.Context) {
	decideExpense(c, models.StatusApproved, "")
}

func rejectExpenseHandler(c *gin.Context) {
	reason, ok := bindRejectionReason(c)
	if !ok {
		return
	}
	decideExpense(c, models.StatusRejected, reason)
}

// bindRejectionReason reads the optional {"reason": ...} body. An empty body
// means no reason; anything else that fails to bind is a 400.
func bindRejectionReason(c *gin.Context) (string, bool) {
	var req struct {
		Reason string `json:"reason"`
	}
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return "", true
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", false
	}
	return strings.TrimSpace(req.Reason), true
}

// decideExpense moves a pending expense to approved or rejected. Managers
// may only decide for their direct reports; admins for anyone in the company.
func decideExpense(c *gin.Context, status, reason string) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	claims := currentClaims(c)
	var e models.Expense
	if err := db.Preload("User").Where("id = ? AND company_id = ?", id, claims.CompanyID).First(&e).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "expense not found"})
		return
	}
	if !canDecide(claims, e) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not allowed to review this expense"})
		return
	}
	if e.Status != models.StatusPending {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expense is already " + e.Status})
		return
	}
	action := models.ActionExpenseApproved
	if status == models.StatusRejected {
		action = models.ActionExpenseRejected
	}
	now := time.Now()
	err := db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Expense{}).
			Where("id = ? AND status = ?", e.ID, models.StatusPending).
			Updates(map[string]any{"status": status, "approver_id": claims.UserID, "approved_at": now, "rejection_reason": reason})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return writeAudit(tx, claims.UserID, action, &e.ID)
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusConflict, gin.H{"error": "expense was reviewed concurrently"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update expense"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "expense " + status})
}

func canDecide(claims authClaims, e models.Expense) bool {
	if e.UserID == claims.UserID {
		return false
	}
	switch claims.Role {
	case models.RoleAdmin:
		return e.CompanyID == claims.CompanyID
	case models.RoleManager:
		return e.User != nil && e.User.ManagerID != nil && *e.User.ManagerID == claims.UserID
	}
	return false
}
