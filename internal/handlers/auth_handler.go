package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"crou/internal/api/validator"
	"crou/internal/config"
	"crou/internal/events"
	"crou/internal/models"
	"crou/internal/utils"
	"crou/internal/utils/logger"
)

type AuthHandler struct {
	db  *gorm.DB
	cfg *config.Config
	log *logger.Logger
}

func NewAuthHandler(db *gorm.DB, cfg *config.Config) *AuthHandler {
	return &AuthHandler{db: db, cfg: cfg, log: logger.New("AuthHandler")}
}

// Login authenticates an administrative user and returns a token pair.
// Failed attempts count toward a temporary lockout.
// @Summary Login user
// @Description Authenticate user and return JWT token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body validator.LoginRequest true "Login credentials"
// @Success 200 {object} map[string]string "JWT token"
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 401 {object} map[string]string "Invalid credentials"
// @Failure 423 {object} map[string]string "Account locked"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /auth/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req validator.LoginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	var user models.User
	if err := h.db.Preload("Role.Permissions").Preload("Tenant").
		Where("email = ? AND is_deleted = ?", req.Email, false).First(&user).Error; err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid credentials"})
	}

	now := time.Now()
	if user.IsLocked(now) {
		return c.JSON(http.StatusLocked, map[string]string{
			"error": "Account temporarily locked, try again later",
		})
	}
	if !user.Active {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Account is deactivated"})
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		h.recordFailedAttempt(&user, now)
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid credentials"})
	}

	// Successful login resets the lockout counter
	if user.FailedLoginAttempts > 0 {
		h.db.Model(&user).Updates(map[string]interface{}{
			"failed_login_attempts": 0,
			"locked_until":          nil,
		})
	}

	token, err := utils.GenerateJWT(user, h.cfg.JWT.Secret, time.Duration(h.cfg.JWT.AccessTTLHours)*time.Hour)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to generate token"})
	}
	refreshToken, err := utils.GenerateRefreshToken(user, h.cfg.JWT.Secret, time.Duration(h.cfg.JWT.RefreshTTLHours)*time.Hour)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to generate token"})
	}

	authtransaction := &models.AuthTransaction{
		UserID:    user.ID,
		TenantID:  user.TenantID,
		Token:     token,
		Refresh:   refreshToken,
		IPAddress: utils.GetIPAddress(c.Request()),
		UserAgent: c.Request().UserAgent(),
		ExpiresAt: now.Add(time.Duration(h.cfg.JWT.RefreshTTLHours) * time.Hour),
	}

	if err := h.db.Create(authtransaction).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to create auth transaction"})
	}

	events.Emit("auth.login", &user)

	return c.JSON(http.StatusOK, map[string]string{"token": token, "refresh_token": refreshToken})
}

func (h *AuthHandler) recordFailedAttempt(user *models.User, now time.Time) {
	attempts := user.FailedLoginAttempts + 1
	updates := map[string]interface{}{"failed_login_attempts": attempts}
	if attempts >= h.cfg.RBAC.MaxLoginAttempts {
		until := now.Add(time.Duration(h.cfg.RBAC.LockoutMinutes) * time.Minute)
		updates["locked_until"] = until
		h.log.Warn("Account %s locked until %s after %d failed attempts", user.Email, until.Format(time.RFC3339), attempts)
	}
	h.db.Model(user).Updates(updates)
}

// RefreshToken exchanges a valid refresh token for a new access token.
// @Summary Refresh access token
// @Description Get a new access token using a valid refresh token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body validator.RefreshRequest true "Refresh token"
// @Success 200 {object} map[string]string "New access token"
// @Failure 400 {object} map[string]string "Invalid input"
// @Failure 401 {object} map[string]string "Invalid refresh token"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /auth/refresh [post]
func (h *AuthHandler) RefreshToken(c echo.Context) error {
	var req validator.RefreshRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid input"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	// validate refresh token
	_, err := utils.ParseRefreshToken(req.RefreshToken, h.cfg.JWT.Secret)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid refresh token"})
	}

	// check in db if refresh token belongs to a live session
	var authTransaction models.AuthTransaction
	if err := h.db.Where("refresh = ? AND expires_at > ?", req.RefreshToken, time.Now()).First(&authTransaction).Error; err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid refresh token"})
	}

	user, err := models.GetUserWithRole(authTransaction.UserID, h.db)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "User not found"})
	}
	if !user.Active {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Account is deactivated"})
	}

	// Re-issuing refreshes the permission snapshot from the current role.
	// The refresh token rotates with it: the consumed one stops working.
	accessToken, err := utils.GenerateJWT(*user, h.cfg.JWT.Secret, time.Duration(h.cfg.JWT.AccessTTLHours)*time.Hour)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to generate access token"})
	}
	refreshToken, err := utils.GenerateRefreshToken(*user, h.cfg.JWT.Secret, time.Duration(h.cfg.JWT.RefreshTTLHours)*time.Hour)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to generate refresh token"})
	}

	authTransaction.Token = accessToken
	authTransaction.Refresh = refreshToken
	if err := h.db.Save(&authTransaction).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to save session"})
	}

	return c.JSON(http.StatusOK, map[string]string{"token": accessToken, "refresh_token": refreshToken})
}

// Logout revokes the caller's current session.
// @Summary Logout user
// @Description Revoke the current session token
// @Tags auth
// @Success 200 {object} map[string]string "Logged out"
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c echo.Context) error {
	userID, _ := c.Get("userID").(string)
	if userID == "" {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Not authenticated"})
	}

	if err := h.db.Where("user_id = ?", userID).Delete(&models.AuthTransaction{}).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to revoke session"})
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "Logged out"})
}

// RequestPasswordReset generates a reset code for the given email. The
// response never reveals whether the account exists.
// @Summary Request password reset
// @Description Request a password reset code
// @Tags auth
// @Accept json
// @Produce json
// @Param request body validator.PasswordResetRequest true "Email for password reset"
// @Success 200 {object} map[string]string "Reset code sent if email exists"
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /auth/password-reset [post]
func (h *AuthHandler) RequestPasswordReset(c echo.Context) error {
	var req validator.PasswordResetRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	neutral := map[string]string{"message": "If the email exists, a reset code will be sent"}

	var user models.User
	if err := h.db.Where("email = ? AND is_deleted = ?", req.Email, false).First(&user).Error; err != nil {
		return c.JSON(http.StatusOK, neutral)
	}

	code, err := utils.GenerateRandomString(10)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to generate reset code"})
	}

	reset := models.PasswordReset{
		UserID:    user.ID,
		Code:      code,
		ExpiresAt: time.Now().Add(15 * time.Minute),
	}

	if err := h.db.Create(&reset).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to create reset code"})
	}

	reset.User = &user
	events.Emit("password.reset", &reset)

	return c.JSON(http.StatusOK, neutral)
}

// VerifyResetCode consumes a reset code and sets the new password.
// @Summary Verify reset code and set new password
// @Description Verify password reset code and update password
// @Tags auth
// @Accept json
// @Produce json
// @Param request body validator.PasswordResetConfirmRequest true "Reset code and new password"
// @Success 200 {object} map[string]string "Password reset successful"
// @Failure 400 {object} map[string]string "Invalid or expired reset code"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /auth/password-reset/verify [post]
func (h *AuthHandler) VerifyResetCode(c echo.Context) error {
	var req validator.PasswordResetConfirmRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	var reset models.PasswordReset
	if err := h.db.Where("code = ? AND used = ? AND expires_at > ?",
		req.Token, false, time.Now()).First(&reset).Error; err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid or expired reset code"})
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to hash password"})
	}

	var user models.User
	if err := h.db.Where("id = ?", reset.UserID).First(&user).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to get user"})
	}

	h.db.Model(&user).Updates(map[string]interface{}{
		"password":              string(hashedPassword),
		"failed_login_attempts": 0,
		"locked_until":          nil,
	})
	h.db.Model(&reset).Update("used", true)

	// A password reset revokes all outstanding sessions
	h.db.Where("user_id = ?", user.ID).Delete(&models.AuthTransaction{})

	return c.JSON(http.StatusOK, map[string]string{"message": "Password reset successfully"})
}

// GetMe returns the current user
// @Summary Get current user
// @Description Get details of the current authenticated user
// @Tags users
// @Accept json
// @Produce json
// @Success 200 {object} models.User
// @Router /auth/me [get]
func (h *AuthHandler) GetMe(c echo.Context) error {
	userID, _ := c.Get("userID").(string)

	user, err := models.GetUserWithRole(userID, h.db)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "User not found"})
	}
	return c.JSON(http.StatusOK, user)
}
