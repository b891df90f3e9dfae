package middleware

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"crou/internal/apperrors"
	"crou/internal/models"
	"crou/internal/utils"
	"crou/internal/utils/logger"
)

var log = logger.New("auth_middleware")

// AuthMiddleware verifies bearer tokens and attaches the identity claims to
// the request context. Tenant resolution and permission checks happen in
// later middleware; this layer only answers "who is calling".
type AuthMiddleware struct {
	jwtSecret string
	db        *gorm.DB
}

func NewAuthMiddleware(jwtSecret string, db *gorm.DB) *AuthMiddleware {
	return &AuthMiddleware{
		jwtSecret: jwtSecret,
		db:        db,
	}
}

func (m *AuthMiddleware) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return apperrors.New(apperrors.KindUnauthenticated, "missing authorization header")
			}

			tokenParts := strings.Split(authHeader, " ")
			if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
				return apperrors.New(apperrors.KindUnauthenticated, "invalid authorization header format")
			}

			return m.validateJWT(c, tokenParts[1], next)
		}
	}
}

func (m *AuthMiddleware) validateJWT(c echo.Context, tokenString string, next echo.HandlerFunc) error {
	claims := &utils.Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(m.jwtSecret), nil
	})

	if err != nil || !token.Valid {
		log.Warn("Rejected token: %v", err)
		return apperrors.New(apperrors.KindUnauthenticated, "invalid token")
	}

	if claims.ExpiresAt != nil && claims.ExpiresAt.Before(time.Now()) {
		return apperrors.New(apperrors.KindUnauthenticated, "token has expired")
	}

	// The token must correspond to a live session
	transaction := &models.AuthTransaction{}
	if err := m.db.Where("user_id = ? AND token = ?", claims.UserID, tokenString).
		First(transaction).Error; err != nil {
		return apperrors.New(apperrors.KindUnauthenticated, "session not found")
	}

	user := &models.User{}
	if err := m.db.Where("id = ? AND is_deleted = false", claims.UserID).First(user).Error; err != nil {
		return apperrors.New(apperrors.KindUnauthenticated, "user not found")
	}
	if !user.Active {
		return apperrors.New(apperrors.KindUnauthenticated, "account disabled")
	}

	c.Set("userID", claims.UserID)
	c.Set("tenantID", claims.TenantID)
	c.Set("roleID", claims.RoleID)
	c.Set("email", claims.Email)
	c.Set("role", claims.Role)
	c.Set("permissions", claims.Permissions)
	c.Set("authenticated", true)

	return next(c)
}

// GetUserID Helper functions to get values from context
func GetUserID(c echo.Context) string {
	if id, ok := c.Get("userID").(string); ok {
		return id
	}
	return ""
}

func GetTenantID(c echo.Context) string {
	if id, ok := c.Get("tenantID").(string); ok {
		return id
	}
	return ""
}

func GetRoleID(c echo.Context) string {
	if id, ok := c.Get("roleID").(string); ok {
		return id
	}
	return ""
}

func GetPermissions(c echo.Context) []string {
	if perms, ok := c.Get("permissions").([]string); ok {
		return perms
	}
	return nil
}

func IsAuthenticated(c echo.Context) bool {
	if v, ok := c.Get("authenticated").(bool); ok {
		return v
	}
	return false
}
