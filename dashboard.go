package main

import (
	"net/http"
	"time"

	"expensemgr/models"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	dashboardRecent      = 10
	dashboardTopSpenders = 5
	dashboardTrendMonths = 6
)

// statusTotal is one row of a GROUP BY status aggregate.
type statusTotal struct {
	Status string
	Count  int64
	Total  decimal.Decimal
}

type dashboardSummary struct {
	TotalExpenses    int64           `json:"totalExpenses"`
	PendingExpenses  int64           `json:"pendingExpenses"`
	ApprovedExpenses int64           `json:"approvedExpenses"`
	RejectedExpenses int64           `json:"rejectedExpenses"`
	TotalAmount      decimal.Decimal `json:"totalAmount"`
	TotalUsers       int64           `json:"totalUsers,omitempty"`
}

type categoryTotal struct {
	Category string          `json:"category"`
	Count    int64           `json:"count"`
	Total    decimal.Decimal `json:"total"`
}

type monthlyTotal struct {
	Month  string          `json:"month"`
	Status string          `json:"status"`
	Count  int64           `json:"count"`
	Total  decimal.Decimal `json:"total"`
}

type spender struct {
	UserID       uint            `json:"userId"`
	Name         string          `json:"name"`
	Email        string          `json:"email"`
	ExpenseCount int64           `json:"expenseCount"`
	TotalAmount  decimal.Decimal `json:"totalAmount"`
}

// summarize folds per-status rows into counts. TotalAmount is the approved sum.
func summarize(rows []statusTotal) dashboardSummary {
	s := dashboardSummary{TotalAmount: decimal.Zero}
	for _, r := range rows {
		s.TotalExpenses += r.Count
		switch r.Status {
		case models.StatusPending:
			s.PendingExpenses = r.Count
		case models.StatusApproved:
			s.ApprovedExpenses = r.Count
			s.TotalAmount = r.Total
		case models.StatusRejected:
			s.RejectedExpenses = r.Count
		}
	}
	return s
}

type expenseScope func(*gorm.DB) *gorm.DB

func companyScope(companyID uint) expenseScope {
	return func(tx *gorm.DB) *gorm.DB { return tx.Where("expenses.company_id = ?", companyID) }
}

func teamScope(claims authClaims) expenseScope {
	return func(tx *gorm.DB) *gorm.DB {
		reports := db.Model(&models.User{}).Select("id").Where("manager_id = ? AND company_id = ?", claims.UserID, claims.CompanyID)
		return tx.Where("expenses.user_id IN (?)", reports)
	}
}

func ownScope(userID uint) expenseScope {
	return func(tx *gorm.DB) *gorm.DB { return tx.Where("expenses.user_id = ?", userID) }
}

func expenseQuery(scope expenseScope) *gorm.DB {
	return db.Model(&models.Expense{}).Scopes(scope)
}

func statusSummary(scope expenseScope) (dashboardSummary, error) {
	var rows []statusTotal
	err := expenseQuery(scope).
		Select("status, COUNT(*) AS count, COALESCE(SUM(amount_converted), 0) AS total").
		Group("status").
		Scan(&rows).Error
	return summarize(rows), err
}

func recentExpenses(scope expenseScope, status string) ([]models.Expense, error) {
	q := expenseQuery(scope).Preload("User")
	if status != "" {
		q = q.Where("expenses.status = ?", status)
	}
	var out []models.Expense
	err := q.Order("expenses.created_at DESC").Limit(dashboardRecent).Find(&out).Error
	return out, err
}

func categoryTotals(scope expenseScope, approvedOnly bool) ([]categoryTotal, error) {
	q := expenseQuery(scope)
	if approvedOnly {
		q = q.Where("expenses.status = ?", models.StatusApproved)
	}
	var out []categoryTotal
	err := q.Select("category, COUNT(*) AS count, COALESCE(SUM(amount_converted), 0) AS total").
		Group("category").
		Order("total DESC").
		Scan(&out).Error
	return out, err
}

func dashboardError(c *gin.Context, which string, err error) {
	logger.Error("dashboard query failed", "dashboard", which, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch dashboard data"})
}

// adminDashboardHandler aggregates the whole company.
func adminDashboardHandler(c *gin.Context) {
	claims := currentClaims(c)
	scope := companyScope(claims.CompanyID)
	summary, err := statusSummary(scope)
	if err != nil {
		dashboardError(c, "admin", err)
		return
	}
	if err := db.Model(&models.User{}).Where("company_id = ?", claims.CompanyID).Count(&summary.TotalUsers).Error; err != nil {
		dashboardError(c, "admin", err)
		return
	}
	recent, err := recentExpenses(scope, "")
	if err != nil {
		dashboardError(c, "admin", err)
		return
	}
	byCategory, err := categoryTotals(scope, true)
	if err != nil {
		dashboardError(c, "admin", err)
		return
	}
	var trend []monthlyTotal
	since := time.Now().AddDate(0, -dashboardTrendMonths, 0)
	err = expenseQuery(scope).
		Select("to_char(expense_date, 'YYYY-MM') AS month, status, COUNT(*) AS count, COALESCE(SUM(amount_converted), 0) AS total").
		Where("expense_date >= ?", since).
		Group("month, status").
		Order("month DESC").
		Scan(&trend).Error
	if err != nil {
		dashboardError(c, "admin", err)
		return
	}
	var top []spender
	err = db.Model(&models.User{}).
		Select("users.id AS user_id, users.name, users.email, COUNT(expenses.id) AS expense_count, COALESCE(SUM(expenses.amount_converted), 0) AS total_amount").
		Joins("LEFT JOIN expenses ON expenses.user_id = users.id AND expenses.status = ?", models.StatusApproved).
		Where("users.company_id = ?", claims.CompanyID).
		Group("users.id").
		Order("total_amount DESC").
		Limit(dashboardTopSpenders).
		Scan(&top).Error
	if err != nil {
		dashboardError(c, "admin", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"summary":            summary,
		"recentExpenses":     recent,
		"expensesByCategory": byCategory,
		"expensesTrend":      trend,
		"topSpenders":        top,
	})
}

// managerDashboardHandler aggregates the caller's direct reports.
func managerDashboardHandler(c *gin.Context) {
	claims := currentClaims(c)
	var team []models.User
	if err := db.Where("manager_id = ? AND company_id = ?", claims.UserID, claims.CompanyID).Order("name").Find(&team).Error; err != nil {
		dashboardError(c, "manager", err)
		return
	}
	employees := make([]gin.H, 0, len(team))
	for _, u := range team {
		employees = append(employees, userView(u))
	}
	if len(team) == 0 {
		c.JSON(http.StatusOK, gin.H{
			"summary":         summarize(nil),
			"pendingExpenses": []models.Expense{},
			"recentExpenses":  []models.Expense{},
			"employees":       employees,
		})
		return
	}
	scope := teamScope(claims)
	summary, err := statusSummary(scope)
	if err != nil {
		dashboardError(c, "manager", err)
		return
	}
	pending, err := recentExpenses(scope, models.StatusPending)
	if err != nil {
		dashboardError(c, "manager", err)
		return
	}
	recent, err := recentExpenses(scope, "")
	if err != nil {
		dashboardError(c, "manager", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"summary":         summary,
		"pendingExpenses": pending,
		"recentExpenses":  recent,
		"employees":       employees,
	})
}

// employeeDashboardHandler aggregates the caller's own expenses.
func employeeDashboardHandler(c *gin.Context) {
	claims := currentClaims(c)
	scope := ownScope(claims.UserID)
	summary, err := statusSummary(scope)
	if err != nil {
		dashboardError(c, "employee", err)
		return
	}
	recent, err := recentExpenses(scope, "")
	if err != nil {
		dashboardError(c, "employee", err)
		return
	}
	byCategory, err := categoryTotals(scope, false)
	if err != nil {
		dashboardError(c, "employee", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"summary":            summary,
		"recentExpenses":     recent,
		"expensesByCategory": byCategory,
	})
}
