package middleware

import (
	"github.com/labstack/echo/v4"

	"crou/internal/apperrors"
	"crou/internal/rbac"
	"crou/internal/utils"
)

const rbacContextKey = "rbacContext"

// ResolveTenantContext builds the request-scoped RBAC context from the
// verified identity. Returning nil means "authenticated but tenant
// resolution failed", which callers must treat as a 403, not a 401.
func ResolveTenantContext(c echo.Context) *rbac.Context {
	if !IsAuthenticated(c) {
		return nil
	}
	tenantID := GetTenantID(c)
	if tenantID == "" {
		return nil
	}
	return &rbac.Context{
		UserID:      GetUserID(c),
		TenantID:    tenantID,
		RoleID:      GetRoleID(c),
		IPAddress:   utils.GetIPAddress(c.Request()),
		Permissions: GetPermissions(c),
	}
}

// TenantContext resolves and caches the RBAC context for downstream guards
// and handlers. Requests whose identity carries no tenant are rejected here.
func TenantContext() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !IsAuthenticated(c) {
				return apperrors.New(apperrors.KindUnauthenticated, "no identity attached to request")
			}
			ctx := ResolveTenantContext(c)
			if ctx == nil {
				return apperrors.New(apperrors.KindTenantContextMissing, "identity carries no tenant context")
			}
			c.Set(rbacContextKey, *ctx)
			return next(c)
		}
	}
}

// RBACContext returns the cached context set by TenantContext.
func RBACContext(c echo.Context) (rbac.Context, bool) {
	ctx, ok := c.Get(rbacContextKey).(rbac.Context)
	return ctx, ok
}
