package rbac

import (
	"fmt"
	"strings"

	"crou/internal/apperrors"
)

// Context is the request-scoped identity snapshot built by the tenant
// resolver middleware. Permissions are the denormalized scope strings from
// the token payload; they can go stale until re-authentication after a role
// edit (refresh happens only at login/refresh).
type Context struct {
	UserID      string
	TenantID    string
	RoleID      string
	IPAddress   string
	Permissions []string
}

// HasScope reports whether the context holds the given "resource:action"
// scope, honouring the "*:*" and "resource:*" wildcards the seeder grants.
func (c Context) HasScope(scope string) bool {
	parts := strings.SplitN(scope, ":", 2)
	for _, p := range c.Permissions {
		if p == scope || p == "*:*" {
			return true
		}
		if len(parts) == 2 && p == parts[0]+":*" {
			return true
		}
	}
	return false
}

// Check describes one permission question: a (resource, action) pair plus
// optional contextual payload such as a monetary amount or a target tenant.
type Check struct {
	Resource string
	Action   string
	Context  map[string]interface{}
}

// Decision is the evaluator's answer. Denial is a value, not an error: the
// guard layer turns it into a structured rejection.
type Decision struct {
	Granted            bool
	Reason             string
	RequiredPermission string
	Denial             apperrors.Kind
}

// Evaluator answers permission checks. It is stateless, side-effect free and
// safe for concurrent use; construct one at startup and inject it.
type Evaluator struct {
	financialLimit int64
}

func NewEvaluator(financialLimit int64) *Evaluator {
	return &Evaluator{financialLimit: financialLimit}
}

// Scope formats a (resource, action) pair into its permission string.
func Scope(resource, action string) string {
	return fmt.Sprintf("%s:%s", resource, action)
}

// Check evaluates a single permission question against the context.
//
// Ordinary checks pass when the permission set holds "{resource}:{action}".
// When the check carries an "amount" above the configured ceiling and the
// action is not itself validate/approve, the higher-tier
// "{resource}:validate" scope is additionally required: write access alone
// is capped.
func (e *Evaluator) Check(ctx Context, check Check) Decision {
	scope := Scope(check.Resource, check.Action)

	if !ctx.HasScope(scope) {
		return Decision{
			Granted:            false,
			Reason:             fmt.Sprintf("missing permission %s", scope),
			RequiredPermission: scope,
			Denial:             apperrors.KindPermissionDenied,
		}
	}

	if amount, ok := amountFrom(check.Context); ok && e.requiresValidation(check.Action, amount) {
		validateScope := Scope(check.Resource, "validate")
		if !ctx.HasScope(validateScope) {
			return Decision{
				Granted:            false,
				Reason:             fmt.Sprintf("amount %d exceeds the validation ceiling of %d", amount, e.financialLimit),
				RequiredPermission: validateScope,
				Denial:             apperrors.KindAmountExceedsLimit,
			}
		}
	}

	return Decision{Granted: true}
}

func (e *Evaluator) requiresValidation(action string, amount int64) bool {
	if action == "validate" || action == "approve" {
		return false
	}
	return amount > e.financialLimit
}

// CanAccessModule reports whether any permission grants access to a module,
// used for coarse navigation gating as opposed to per-operation checks.
func CanAccessModule(permissions []string, module string) bool {
	for _, p := range permissions {
		if p == "*:*" || strings.HasPrefix(p, module+":") {
			return true
		}
	}
	return false
}

func amountFrom(ctx map[string]interface{}) (int64, bool) {
	if ctx == nil {
		return 0, false
	}
	switch v := ctx["amount"].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}
