package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"crou/internal/api/validator"
	"crou/internal/config"
	"crou/internal/models"
	"crou/internal/utils"
)

func setupAuthTest(t *testing.T) (*AuthHandler, *gorm.DB, *config.Config) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&models.Tenant{},
		&models.Role{},
		&models.Resource{},
		&models.ResourcePermission{},
		&models.User{},
		&models.AuthTransaction{},
		&models.PasswordReset{},
	)
	require.NoError(t, err)

	cfg := config.LoadTestConfig()
	cfg.JWT = config.JWTConfig{
		Secret:          "test-secret",
		AccessTTLHours:  1,
		RefreshTTLHours: 168,
	}

	return NewAuthHandler(db, cfg), db, cfg
}

func createSessionUser(t *testing.T, db *gorm.DB) models.User {
	t.Helper()

	role := models.Role{Name: "AGENT"}
	require.NoError(t, db.Create(&role).Error)

	user := models.User{
		Email:    "agent@crou-nord.example",
		Password: "irrelevant-for-refresh",
		RoleID:   role.ID,
		TenantID: uuid.NewString(),
		Active:   true,
	}
	require.NoError(t, db.Create(&user).Error)
	user.Role = &role
	return user
}

func refreshRequest(t *testing.T, body string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()

	e := echo.New()
	e.Validator = validator.NewValidator()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

// Exchanging a refresh token must rotate it: the stored session carries the
// new pair and the consumed token stops matching.
func TestRefreshRotatesTokenPair(t *testing.T) {
	handler, db, cfg := setupAuthTest(t)
	user := createSessionUser(t, db)

	oldRefresh, err := utils.GenerateRefreshToken(user, cfg.JWT.Secret, time.Hour)
	require.NoError(t, err)

	session := models.AuthTransaction{
		UserID:    user.ID,
		TenantID:  user.TenantID,
		Token:     "old-access",
		Refresh:   oldRefresh,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, db.Create(&session).Error)

	c, rec := refreshRequest(t, `{"refreshToken":"`+oldRefresh+`"}`)
	require.NoError(t, handler.RefreshToken(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["token"])
	assert.NotEmpty(t, resp["refresh_token"])
	assert.NotEqual(t, oldRefresh, resp["refresh_token"])

	var stored models.AuthTransaction
	require.NoError(t, db.First(&stored, "id = ?", session.ID).Error)
	assert.Equal(t, resp["token"], stored.Token)
	assert.Equal(t, resp["refresh_token"], stored.Refresh)

	// The consumed token no longer matches any session
	c, rec = refreshRequest(t, `{"refreshToken":"`+oldRefresh+`"}`)
	require.NoError(t, handler.RefreshToken(c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRefreshRejectsUnknownToken(t *testing.T) {
	handler, db, cfg := setupAuthTest(t)
	user := createSessionUser(t, db)

	// Well-formed token that was never stored as a session
	stray, err := utils.GenerateRefreshToken(user, cfg.JWT.Secret, time.Hour)
	require.NoError(t, err)

	c, rec := refreshRequest(t, `{"refreshToken":"`+stray+`"}`)
	require.NoError(t, handler.RefreshToken(c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRefreshRejectsExpiredSession(t *testing.T) {
	handler, db, cfg := setupAuthTest(t)
	user := createSessionUser(t, db)

	refresh, err := utils.GenerateRefreshToken(user, cfg.JWT.Secret, time.Hour)
	require.NoError(t, err)

	session := models.AuthTransaction{
		UserID:    user.ID,
		TenantID:  user.TenantID,
		Token:     "old-access",
		Refresh:   refresh,
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	require.NoError(t, db.Create(&session).Error)

	c, rec := refreshRequest(t, `{"refreshToken":"`+refresh+`"}`)
	require.NoError(t, handler.RefreshToken(c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
