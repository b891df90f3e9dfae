package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crou/internal/apperrors"
)

const testLimit = 1_000_000

func newCtx(perms ...string) Context {
	return Context{
		UserID:      "user-1",
		TenantID:    "tenant-1",
		RoleID:      "role-1",
		Permissions: perms,
	}
}

func TestCheckGrantsExactScope(t *testing.T) {
	e := NewEvaluator(testLimit)

	d := e.Check(newCtx("housing:read"), Check{Resource: "housing", Action: "read"})
	assert.True(t, d.Granted)
	assert.Empty(t, d.Reason)
}

func TestCheckDeniesMissingScope(t *testing.T) {
	e := NewEvaluator(testLimit)

	d := e.Check(newCtx("housing:read"), Check{Resource: "housing", Action: "create"})
	require.False(t, d.Granted)
	assert.Equal(t, "housing:create", d.RequiredPermission)
	assert.Equal(t, apperrors.KindPermissionDenied, d.Denial)
	assert.NotEmpty(t, d.Reason)
}

func TestCheckWildcards(t *testing.T) {
	e := NewEvaluator(testLimit)

	tests := []struct {
		name  string
		perms []string
		check Check
		want  bool
	}{
		{"global wildcard", []string{"*:*"}, Check{Resource: "stocks", Action: "delete"}, true},
		{"resource wildcard", []string{"financial:*"}, Check{Resource: "financial", Action: "validate"}, true},
		{"resource wildcard other resource", []string{"financial:*"}, Check{Resource: "stocks", Action: "read"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := e.Check(newCtx(tt.perms...), tt.check)
			assert.Equal(t, tt.want, d.Granted)
		})
	}
}

// Adding permissions to a granting context must never flip a grant into a
// denial.
func TestCheckMonotonicity(t *testing.T) {
	e := NewEvaluator(testLimit)
	check := Check{Resource: "transport", Action: "create"}

	base := newCtx("transport:create")
	require.True(t, e.Check(base, check).Granted)

	widened := newCtx("transport:create", "financial:validate", "housing:*", "*:*")
	assert.True(t, e.Check(widened, check).Granted)
}

func TestCheckTieredFinancialCeiling(t *testing.T) {
	e := NewEvaluator(testLimit)

	overLimit := Check{
		Resource: "financial",
		Action:   "write",
		Context:  map[string]interface{}{"amount": int64(testLimit + 1)},
	}

	// write alone is capped at the ceiling
	d := e.Check(newCtx("financial:write"), overLimit)
	require.False(t, d.Granted)
	assert.Equal(t, apperrors.KindAmountExceedsLimit, d.Denial)
	assert.Equal(t, "financial:validate", d.RequiredPermission)

	// holding validate lifts the cap
	d = e.Check(newCtx("financial:write", "financial:validate"), overLimit)
	assert.True(t, d.Granted)

	// at or under the limit, write alone suffices
	atLimit := Check{
		Resource: "financial",
		Action:   "write",
		Context:  map[string]interface{}{"amount": int64(testLimit)},
	}
	assert.True(t, e.Check(newCtx("financial:write"), atLimit).Granted)
}

func TestCheckValidateActionNotSelfCapped(t *testing.T) {
	e := NewEvaluator(testLimit)

	d := e.Check(newCtx("financial:validate"), Check{
		Resource: "financial",
		Action:   "validate",
		Context:  map[string]interface{}{"amount": int64(5_000_000)},
	})
	assert.True(t, d.Granted)
}

func TestCheckAmountTypeCoercion(t *testing.T) {
	e := NewEvaluator(testLimit)

	// JSON-decoded bodies carry numbers as float64
	d := e.Check(newCtx("financial:write"), Check{
		Resource: "financial",
		Action:   "write",
		Context:  map[string]interface{}{"amount": float64(testLimit + 1)},
	})
	assert.False(t, d.Granted)
}

func TestCanAccessModule(t *testing.T) {
	perms := []string{"housing:read", "housing:create", "stocks:read"}

	assert.True(t, CanAccessModule(perms, "housing"))
	assert.True(t, CanAccessModule(perms, "stocks"))
	assert.False(t, CanAccessModule(perms, "financial"))
	assert.True(t, CanAccessModule([]string{"*:*"}, "financial"))
	assert.False(t, CanAccessModule(nil, "housing"))
}
