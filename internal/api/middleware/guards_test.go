package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crou/internal/apperrors"
	"crou/internal/audit"
	"crou/internal/events"
	"crou/internal/rbac"
)

const (
	rootTenant  = "tenant-root"
	crouTenant  = "tenant-crou-nord"
	otherTenant = "tenant-crou-sud"
)

func newGuards() *Guards {
	return NewGuards(rbac.NewEvaluator(1_000_000), rootTenant)
}

func newRequest(t *testing.T, method, body string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, "/", reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func authenticate(c echo.Context, tenantID string, perms ...string) {
	c.Set("authenticated", true)
	c.Set("userID", "user-1")
	c.Set("tenantID", tenantID)
	c.Set("roleID", "role-1")
	c.Set("permissions", perms)
}

func okHandler(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

func kindOf(t *testing.T, err error) apperrors.Kind {
	t.Helper()
	var appErr *apperrors.Error
	require.True(t, errors.As(err, &appErr), "expected *apperrors.Error, got %v", err)
	return appErr.Kind
}

func TestRequireRejectsUnauthenticated(t *testing.T) {
	c, _ := newRequest(t, http.MethodGet, "")

	err := newGuards().Require("housing", "read")(okHandler)(c)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindUnauthenticated, kindOf(t, err))
}

func TestRequireRejectsMissingTenantContext(t *testing.T) {
	c, _ := newRequest(t, http.MethodGet, "")
	authenticate(c, "", "housing:read")

	err := newGuards().Require("housing", "read")(okHandler)(c)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindTenantContextMissing, kindOf(t, err))
}

func TestRequireDeniesMissingPermission(t *testing.T) {
	c, _ := newRequest(t, http.MethodPost, "")
	authenticate(c, crouTenant, "housing:read")

	err := newGuards().Require("housing", "create")(okHandler)(c)
	require.Error(t, err)

	var appErr *apperrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.KindPermissionDenied, appErr.Kind)
	assert.Equal(t, "housing:create", appErr.RequiredPermission)
}

func TestRequireGrants(t *testing.T) {
	c, rec := newRequest(t, http.MethodGet, "")
	authenticate(c, crouTenant, "housing:read")

	err := newGuards().Require("housing", "read")(okHandler)(c)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// A non-root tenant targeting another tenant is rejected regardless of its
// permission set.
func TestCrossTenantBoundary(t *testing.T) {
	body := `{"tenantId":"` + otherTenant + `","name":"x"}`

	c, _ := newRequest(t, http.MethodPost, body)
	authenticate(c, crouTenant, "*:*")

	err := newGuards().Require("stocks", "create", TargetTenantFromBody)(okHandler)(c)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindCrossTenantForbidden, kindOf(t, err))

	// Root tenant with the permission may cross
	c, rec := newRequest(t, http.MethodPost, body)
	authenticate(c, rootTenant, "stocks:create")

	err = newGuards().Require("stocks", "create", TargetTenantFromBody)(okHandler)(c)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Root tenant without the permission is still denied, by the evaluator
	c, _ = newRequest(t, http.MethodPost, body)
	authenticate(c, rootTenant, "housing:read")

	err = newGuards().Require("stocks", "create", TargetTenantFromBody)(okHandler)(c)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindPermissionDenied, kindOf(t, err))
}

func TestFinancialGuardTieredAmount(t *testing.T) {
	over := `{"amount":1000001,"label":"subvention"}`

	c, _ := newRequest(t, http.MethodPost, over)
	authenticate(c, crouTenant, "financial:write")

	err := newGuards().RequireFinancial("write")(okHandler)(c)
	require.Error(t, err)

	var appErr *apperrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.KindAmountExceedsLimit, appErr.Kind)
	assert.Equal(t, "financial:validate", appErr.RequiredPermission)

	// With the validate scope the same request passes
	c, rec := newRequest(t, http.MethodPost, over)
	authenticate(c, crouTenant, "financial:write", "financial:validate")

	err = newGuards().RequireFinancial("write")(okHandler)(c)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Under the ceiling, write alone suffices
	c, rec = newRequest(t, http.MethodPost, `{"amount":500}`)
	authenticate(c, crouTenant, "financial:write")

	err = newGuards().RequireFinancial("write")(okHandler)(c)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminGuardBlocksSelfModification(t *testing.T) {
	c, _ := newRequest(t, http.MethodPut, `{"roleId":"role-2"}`)
	authenticate(c, rootTenant, "admin:manage", "users:update")
	c.SetParamNames("id")
	c.SetParamValues("user-1") // same as the acting subject

	err := newGuards().RequireAdmin("users", "update")(okHandler)(c)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindSelfModificationBlocked, kindOf(t, err))

	// Targeting another subject passes the self check
	c, rec := newRequest(t, http.MethodPut, `{"roleId":"role-2"}`)
	authenticate(c, rootTenant, "users:update")
	c.SetParamNames("id")
	c.SetParamValues("user-2")

	err = newGuards().RequireAdmin("users", "update")(okHandler)(c)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireModule(t *testing.T) {
	c, rec := newRequest(t, http.MethodGet, "")
	authenticate(c, crouTenant, "housing:read")

	err := newGuards().RequireModule("housing")(okHandler)(c)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)

	c, _ = newRequest(t, http.MethodGet, "")
	authenticate(c, crouTenant, "housing:read")

	err = newGuards().RequireModule("financial")(okHandler)(c)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindPermissionDenied, kindOf(t, err))
}

// Module-gate denials reach the audit sink like every other denial.
func TestRequireModuleDenialIsAudited(t *testing.T) {
	records := make(chan audit.Record, 16)
	events.On(audit.EventDenial, func(data interface{}) {
		if record, ok := data.(audit.Record); ok {
			records <- record
		}
	})

	c, _ := newRequest(t, http.MethodGet, "")
	authenticate(c, crouTenant, "housing:read")

	err := newGuards().RequireModule("financial")(okHandler)(c)
	require.Error(t, err)

	select {
	case record := <-records:
		assert.Equal(t, "user-1", record.Actor)
		assert.Equal(t, crouTenant, record.TenantID)
		assert.Equal(t, "financial", record.Resource)
		assert.Equal(t, "access", record.Action)
		assert.Equal(t, audit.DecisionDenied, record.Decision)
	case <-time.After(time.Second):
		t.Fatal("no audit record emitted for module denial")
	}
}

// The body peeked by an extractor must remain readable by the handler.
func TestExtractorRestoresBody(t *testing.T) {
	payload := `{"amount":100,"label":"ticket"}`
	c, rec := newRequest(t, http.MethodPost, payload)
	authenticate(c, crouTenant, "financial:write")

	echoBody := func(c echo.Context) error {
		var body map[string]interface{}
		if err := c.Bind(&body); err != nil {
			return err
		}
		return c.JSON(http.StatusOK, body)
	}

	err := newGuards().RequireFinancial("write")(echoBody)(c)
	require.NoError(t, err)
	assert.Contains(t, rec.Body.String(), "ticket")
}
