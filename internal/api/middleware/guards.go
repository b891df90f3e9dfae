package middleware

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/labstack/echo/v4"

	"crou/internal/apperrors"
	"crou/internal/audit"
	"crou/internal/rbac"
)

// CheckContextExtractor pulls domain-specific fields (amount, target tenant,
// ...) out of the request and into the permission check context. This is how
// specialized guards inject their rules without duplicating the core check.
type CheckContextExtractor func(c echo.Context) (map[string]interface{}, error)

// Guards builds request-blocking permission middleware around the evaluator.
// One instance is constructed at startup and shared across routes.
type Guards struct {
	evaluator    *rbac.Evaluator
	rootTenantID string
}

func NewGuards(evaluator *rbac.Evaluator, rootTenantID string) *Guards {
	return &Guards{
		evaluator:    evaluator,
		rootTenantID: rootTenantID,
	}
}

// Require wraps a handler with the guard chain: identity, tenant context,
// cross-tenant boundary, then the permission evaluation. Failures are
// structured rejections; the guard performs no business logic.
func (g *Guards) Require(resource, action string, extractors ...CheckContextExtractor) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !IsAuthenticated(c) {
				return apperrors.New(apperrors.KindUnauthenticated, "no identity attached to request")
			}

			ctx, ok := RBACContext(c)
			if !ok {
				resolved := ResolveTenantContext(c)
				if resolved == nil {
					return apperrors.New(apperrors.KindTenantContextMissing, "identity carries no tenant context")
				}
				ctx = *resolved
			}

			checkCtx := map[string]interface{}{}
			for _, extract := range extractors {
				fields, err := extract(c)
				if err != nil {
					return err
				}
				for k, v := range fields {
					checkCtx[k] = v
				}
			}

			// Cross-tenant boundary is a hard invariant checked before the
			// evaluator: only the ministry tenant may act on another tenant.
			if target, ok := checkCtx["targetTenantId"].(string); ok && target != "" && target != ctx.TenantID {
				if ctx.TenantID != g.rootTenantID {
					audit.Denied(ctx.UserID, ctx.TenantID, resource, action, "cross-tenant access from non-root tenant", ctx.IPAddress)
					return apperrors.New(apperrors.KindCrossTenantForbidden,
						"tenant %s may not act on resources of tenant %s", ctx.TenantID, target)
				}
			}

			decision := g.evaluator.Check(ctx, rbac.Check{
				Resource: resource,
				Action:   action,
				Context:  checkCtx,
			})
			if !decision.Granted {
				audit.Denied(ctx.UserID, ctx.TenantID, resource, action, decision.Reason, ctx.IPAddress)
				return apperrors.New(decision.Denial, "%s", decision.Reason).
					WithPermission(decision.RequiredPermission)
			}

			return next(c)
		}
	}
}

// RequireFinancial layers the tiered amount rule on a financial action: the
// evaluator demands financial:validate when the request's amount exceeds the
// configured ceiling.
func (g *Guards) RequireFinancial(action string) echo.MiddlewareFunc {
	return g.Require("financial", action, AmountFromBody, TargetTenantFromBody)
}

// RequireAdmin blocks self-targeting mutations before the permission check:
// a subject may not modify its own permission assignments.
func (g *Guards) RequireAdmin(resource, action string) echo.MiddlewareFunc {
	inner := g.Require(resource, action, TargetTenantFromBody)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		guarded := inner(next)
		return func(c echo.Context) error {
			if target := c.Param("id"); target != "" && target == GetUserID(c) {
				ctx := ResolveTenantContext(c)
				if ctx != nil {
					audit.Denied(ctx.UserID, ctx.TenantID, resource, action, "self-targeting mutation", ctx.IPAddress)
				}
				return apperrors.New(apperrors.KindSelfModificationBlocked,
					"subjects may not modify their own access")
			}
			return guarded(c)
		}
	}
}

// RequireModule gates an endpoint on coarse module access, the navigation
// level check as opposed to a per-operation permission.
func (g *Guards) RequireModule(module string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !IsAuthenticated(c) {
				return apperrors.New(apperrors.KindUnauthenticated, "no identity attached to request")
			}
			if !rbac.CanAccessModule(GetPermissions(c), module) {
				if ctx := ResolveTenantContext(c); ctx != nil {
					audit.Denied(ctx.UserID, ctx.TenantID, module, "access", "no access to module", ctx.IPAddress)
				}
				return apperrors.New(apperrors.KindPermissionDenied,
					"no access to module %s", module).WithPermission(module + ":read")
			}
			return next(c)
		}
	}
}

// AmountFromBody extracts a monetary "amount" field from a JSON body,
// restoring the body for the downstream handler.
func AmountFromBody(c echo.Context) (map[string]interface{}, error) {
	body, err := peekJSONBody(c)
	if err != nil || body == nil {
		return nil, err
	}
	if amount, ok := body["amount"]; ok {
		return map[string]interface{}{"amount": amount}, nil
	}
	return nil, nil
}

// TargetTenantFromBody extracts a "tenantId" field from a JSON body so the
// cross-tenant boundary can be enforced before the handler runs.
func TargetTenantFromBody(c echo.Context) (map[string]interface{}, error) {
	body, err := peekJSONBody(c)
	if err != nil || body == nil {
		return nil, err
	}
	if target, ok := body["tenantId"].(string); ok && target != "" {
		return map[string]interface{}{"targetTenantId": target}, nil
	}
	return nil, nil
}

// TargetTenantFromQuery reads the target tenant from a query parameter.
func TargetTenantFromQuery(c echo.Context) (map[string]interface{}, error) {
	if target := c.QueryParam("tenantId"); target != "" {
		return map[string]interface{}{"targetTenantId": target}, nil
	}
	return nil, nil
}

const peekedBodyKey = "peekedJSONBody"

// peekJSONBody decodes the request body once per request and re-buffers it so
// extractors and the handler can both read it.
func peekJSONBody(c echo.Context) (map[string]interface{}, error) {
	if cached, ok := c.Get(peekedBodyKey).(map[string]interface{}); ok {
		return cached, nil
	}

	req := c.Request()
	if req.Body == nil || req.Method == "GET" || req.Method == "DELETE" {
		return nil, nil
	}

	raw, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, apperrors.New(apperrors.KindMissingFields, "unreadable request body")
	}
	req.Body = io.NopCloser(bytes.NewBuffer(raw))

	if len(raw) == 0 {
		return nil, nil
	}

	var body map[string]interface{}
	if err := json.Unmarshal(raw, &body); err != nil {
		// Not a JSON object (e.g. multipart upload); nothing to extract.
		return nil, nil
	}

	c.Set(peekedBodyKey, body)
	return body, nil
}
