package main

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"expensemgr/models"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"
)

func setupRoutes(r *gin.Engine) {
	r.Static("/uploads", cfg.UploadDir)

	api := r.Group("/api")
	api.POST("/auth/signup", signupHandler)
	api.POST("/auth/login", loginHandler)
	api.POST("/auth/refresh", refreshHandler)
	api.POST("/auth/revoke", revokeRefreshHandler)

	authed := api.Group("")
	authed.Use(jwtAuthMiddleware())
	authed.GET("/auth/me", meHandler)

	authed.GET("/expenses", listExpensesHandler)
	authed.GET("/expenses/:id", getExpenseHandler)
	authed.POST("/expenses", createExpenseHandler)
	authed.PUT("/expenses/:id", updateExpenseHandler)
	authed.DELETE("/expenses/:id", deleteExpenseHandler)
	approvals := authed.Group("/expenses")
	approvals.Use(requireRole(models.RoleManager, models.RoleAdmin))
	approvals.POST("/:id/approve", approveExpenseHandler)
	approvals.POST("/:id/reject", rejectExpenseHandler)

	users := authed.Group("/users")
	users.Use(requireRole(models.RoleAdmin))
	users.GET("", listUsersHandler)
	users.GET("/:id", getUserHandler)
	users.POST("", createUserHandler)
	users.PUT("/:id", updateUserHandler)
	users.DELETE("/:id", deleteUserHandler)
	users.POST("/:id/reset-password", resetUserPasswordHandler)

	authed.GET("/dashboard/admin", requireRole(models.RoleAdmin), adminDashboardHandler)
	authed.GET("/dashboard/manager", requireRole(models.RoleManager, models.RoleAdmin), managerDashboardHandler)
	authed.GET("/dashboard/employee", employeeDashboardHandler)

	authed.POST("/ocr/scan", scanReceiptHandler)
	authed.POST("/ocr/upload-receipt", uploadReceiptHandler)
	authed.GET("/ocr/receipts/:expenseId", listReceiptsHandler)
	authed.DELETE("/ocr/receipts/:receiptId", deleteReceiptHandler)
}

// authClaims is the identity carried by an access token.
type authClaims struct {
	UserID    uint
	CompanyID uint
	Role      string
	Email     string
}

func jwtAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") || len(authHeader) < 8 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid Authorization header"})
			return
		}
		claims, err := parseAccessToken(authHeader[len("Bearer "):])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set("claims", claims)
		c.Next()
	}
}

func parseAccessToken(tokenString string) (authClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrInvalidKeyType
		}
		return jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return authClaims{}, errors.New("invalid token")
	}
	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return authClaims{}, errors.New("invalid claims")
	}
	uid, _ := mc["userId"].(float64)
	cid, _ := mc["companyId"].(float64)
	role, _ := mc["role"].(string)
	email, _ := mc["email"].(string)
	if uid <= 0 || !models.ValidRole(role) {
		return authClaims{}, errors.New("invalid claims")
	}
	return authClaims{UserID: uint(uid), CompanyID: uint(cid), Role: role, Email: email}, nil
}

// currentClaims returns the identity set by jwtAuthMiddleware.
func currentClaims(c *gin.Context) authClaims {
	v, _ := c.Get("claims")
	claims, _ := v.(authClaims)
	return claims
}

func requireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := currentClaims(c).Role
		for _, r := range roles {
			if r == role {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
	}
}

func signupHandler(c *gin.Context) {
	var req struct {
		Name         string `json:"name" binding:"required"`
		Email        string `json:"email" binding:"required,email"`
		Password     string `json:"password" binding:"required,min=6"`
		CompanyName  string `json:"companyName" binding:"required"`
		Country      string `json:"country"`
		CurrencyCode string `json:"currencyCode" binding:"omitempty,len=3"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := RegisterCompany(signupInput{
		CompanyName: req.CompanyName, Country: req.Country, CurrencyCode: req.CurrencyCode,
		Name: req.Name, Email: req.Email, Password: req.Password,
	})
	if errors.Is(err, errEmailTaken) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		logger.Error("signup failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server error during registration"})
		return
	}
	access, refresh, err := issueTokenPair(user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "company registered successfully", "token": access, "refresh_token": refresh, "user": userView(user)})
}

func loginHandler(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := Authenticate(req.Email, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	if err := writeAudit(db, user.ID, models.ActionUserLogin, nil); err != nil {
		logger.Warn("audit login failed", "user_id", user.ID, "error", err)
	}
	access, refresh, err := issueTokenPair(user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "login successful", "token": access, "refresh_token": refresh, "user": userView(user)})
}

func issueTokenPair(user models.User) (string, string, error) {
	access, err := issueAccessToken(user, accessTokenTTL)
	if err != nil {
		return "", "", err
	}
	refresh, err := createAndStoreRefreshToken(db, user.ID)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

func userView(u models.User) gin.H {
	return gin.H{"id": u.ID, "name": u.Name, "email": u.Email, "role": u.Role, "companyId": u.CompanyID}
}

func meHandler(c *gin.Context) {
	claims := currentClaims(c)
	var user models.User
	if err := db.Preload("Company").First(&user, claims.UserID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	view := userView(user)
	if user.Company != nil {
		view["companyName"] = user.Company.Name
		view["currencyCode"] = user.Company.CurrencyCode
	}
	c.JSON(http.StatusOK, gin.H{"user": view})
}

// refreshHandler exchanges a refresh token for a new access token and rotates the refresh token
func refreshHandler(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rt, err := findRefreshTokenByRaw(req.RefreshToken)
	if err != nil || !rt.Usable(time.Now()) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired refresh token"})
		return
	}
	var user models.User
	if err := db.First(&user, rt.UserID).Error; err != nil || !user.Active {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	tokenString, err := issueAccessToken(user, accessTokenTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}
	var newRT string
	err = db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.RefreshToken{}).Where("id = ? AND revoked_at IS NULL", rt.ID).Update("revoked_at", time.Now())
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 { // rotated concurrently
			return gorm.ErrRecordNotFound
		}
		var err error
		newRT, err = createAndStoreRefreshToken(tx, user.ID)
		return err
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired refresh token"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to rotate refresh token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": tokenString, "refresh_token": newRT})
}

// revokeRefreshHandler revokes a given refresh token (useful on logout)
func revokeRefreshHandler(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rt, err := findRefreshTokenByRaw(req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "refresh token not found"})
		return
	}
	if rt.RevokedAt == nil {
		now := time.Now()
		rt.RevokedAt = &now
		if err := db.Save(rt).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to revoke token"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "refresh token revoked"})
}
