package main

import (
	"errors"
	"net/http"
	"strings"

	"expensemgr/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

var (
	errUnknownManager = errors.New("manager must be a manager or admin in your company")
	errSelfManager    = errors.New("a user cannot manage themselves")
	errNoUserFields   = errors.New("no fields to update")
)

// adminUserView is userView plus the fields admins manage.
func adminUserView(u models.User) gin.H {
	v := userView(u)
	v["managerId"] = u.ManagerID
	v["active"] = u.Active
	v["createdAt"] = u.CreatedAt
	return v
}

// companyUser loads a user of the caller's company or writes a 404.
func companyUser(c *gin.Context, claims authClaims) (models.User, bool) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return models.User{}, false
	}
	var u models.User
	if err := db.Where("id = ? AND company_id = ?", id, claims.CompanyID).First(&u).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return models.User{}, false
	}
	return u, true
}

// checkManager verifies managerID names a manager or admin in companyID.
func checkManager(tx *gorm.DB, companyID, managerID uint) error {
	var n int64
	err := tx.Model(&models.User{}).
		Where("id = ? AND company_id = ? AND role IN ?", managerID, companyID, []string{models.RoleManager, models.RoleAdmin}).
		Count(&n).Error
	if err != nil {
		return err
	}
	if n == 0 {
		return errUnknownManager
	}
	return nil
}

func listUsersHandler(c *gin.Context) {
	claims := currentClaims(c)
	var users []models.User
	if err := db.Where("company_id = ?", claims.CompanyID).Order("created_at DESC").Find(&users).Error; err != nil {
		logger.Error("list users failed", "company_id", claims.CompanyID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch users"})
		return
	}
	out := make([]gin.H, 0, len(users))
	for _, u := range users {
		out = append(out, adminUserView(u))
	}
	c.JSON(http.StatusOK, gin.H{"users": out})
}

func getUserHandler(c *gin.Context) {
	u, ok := companyUser(c, currentClaims(c))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": adminUserView(u)})
}

type createUserRequest struct {
	Name      string `json:"name" binding:"required"`
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=6"`
	Role      string `json:"role" binding:"required,oneof=employee manager admin"`
	ManagerID *uint  `json:"managerId"`
}

func createUserHandler(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	claims := currentClaims(c)
	hashed, err := models.HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	u := models.User{
		CompanyID:    claims.CompanyID,
		Name:         strings.TrimSpace(req.Name),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: hashed,
		Role:         req.Role,
		Active:       true,
	}
	if req.ManagerID != nil && *req.ManagerID != 0 {
		u.ManagerID = req.ManagerID
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		if u.ManagerID != nil {
			if err := checkManager(tx, claims.CompanyID, *u.ManagerID); err != nil {
				return err
			}
		}
		var n int64
		if err := tx.Model(&models.User{}).Where("email = ?", u.Email).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return errEmailTaken
		}
		if err := tx.Create(&u).Error; err != nil {
			if isUniqueConstraintError(err) {
				return errEmailTaken
			}
			return err
		}
		return writeAudit(tx, claims.UserID, models.ActionUserCreated, &u.ID)
	})
	if errors.Is(err, errEmailTaken) || errors.Is(err, errUnknownManager) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		logger.Error("create user failed", "company_id", claims.CompanyID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create user"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "user created", "user": adminUserView(u)})
}

type updateUserRequest struct {
	Name      *string `json:"name"`
	Role      *string `json:"role" binding:"omitempty,oneof=employee manager admin"`
	ManagerID *uint   `json:"managerId"`
	Active    *bool   `json:"active"`
}

// userUpdates turns a partial update into column values. A managerId of 0
// clears the manager.
func userUpdates(req updateUserRequest, target, caller uint) (map[string]any, error) {
	updates := map[string]any{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, errors.New("name cannot be empty")
		}
		updates["name"] = name
	}
	if req.Role != nil {
		if target == caller && *req.Role != models.RoleAdmin {
			return nil, errors.New("cannot change your own role")
		}
		updates["role"] = *req.Role
	}
	if req.ManagerID != nil {
		switch *req.ManagerID {
		case 0:
			updates["manager_id"] = nil
		case target:
			return nil, errSelfManager
		default:
			updates["manager_id"] = *req.ManagerID
		}
	}
	if req.Active != nil {
		if target == caller && !*req.Active {
			return nil, errors.New("cannot deactivate your own account")
		}
		updates["active"] = *req.Active
	}
	if len(updates) == 0 {
		return nil, errNoUserFields
	}
	return updates, nil
}

func updateUserHandler(c *gin.Context) {
	claims := currentClaims(c)
	u, ok := companyUser(c, claims)
	if !ok {
		return
	}
	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	updates, err := userUpdates(req, u.ID, claims.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		if m, ok := updates["manager_id"].(uint); ok {
			if err := checkManager(tx, claims.CompanyID, m); err != nil {
				return err
			}
		}
		if err := tx.Model(&u).Updates(updates).Error; err != nil {
			return err
		}
		return writeAudit(tx, claims.UserID, models.ActionUserUpdated, &u.ID)
	})
	if errors.Is(err, errUnknownManager) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		logger.Error("update user failed", "user_id", u.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update user"})
		return
	}
	if err := db.First(&u, u.ID).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch user"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "user updated", "user": adminUserView(u)})
}

// deleteUserHandler removes a user. Their expenses, receipts and refresh
// tokens go with them; direct reports lose their manager.
func deleteUserHandler(c *gin.Context) {
	claims := currentClaims(c)
	u, ok := companyUser(c, claims)
	if !ok {
		return
	}
	if u.ID == claims.UserID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot delete your own account"})
		return
	}
	var files []string
	err := db.Transaction(func(tx *gorm.DB) error {
		expenses := tx.Model(&models.Expense{}).Select("id").Where("user_id = ?", u.ID)
		if err := tx.Model(&models.ExpenseReceipt{}).Where("expense_id IN (?)", expenses).Pluck("file_url", &files).Error; err != nil {
			return err
		}
		if err := tx.Where("expense_id IN (?)", expenses).Delete(&models.ExpenseReceipt{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", u.ID).Delete(&models.Expense{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", u.ID).Delete(&models.RefreshToken{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.User{}).Where("manager_id = ?", u.ID).Update("manager_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Delete(&u).Error; err != nil {
			return err
		}
		return writeAudit(tx, claims.UserID, models.ActionUserDeleted, &u.ID)
	})
	if err != nil {
		logger.Error("delete user failed", "user_id", u.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete user"})
		return
	}
	removeUploads(cfg.UploadDir, files)
	c.JSON(http.StatusOK, gin.H{"message": "user deleted"})
}

// resetUserPasswordHandler sets a new password and signs the user out everywhere.
func resetUserPasswordHandler(c *gin.Context) {
	claims := currentClaims(c)
	var req struct {
		NewPassword string `json:"newPassword" binding:"required,min=6"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	u, ok := companyUser(c, claims)
	if !ok {
		return
	}
	var revoked int64
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		if revoked, err = models.ResetPassword(tx, u.ID, req.NewPassword, true); err != nil {
			return err
		}
		return writeAudit(tx, claims.UserID, models.ActionPasswordReset, &u.ID)
	})
	if errors.Is(err, models.ErrPasswordTooShort) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		logger.Error("reset password failed", "user_id", u.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to reset password"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "password reset", "revokedSessions": revoked})
}
