package models

// Resource is a permissioned module/action pair, e.g. ("housing", "create").
type Resource struct {
	Base
	Name   string `gorm:"not null;uniqueIndex:idx_resource_action" json:"name"`
	Action string `gorm:"not null;uniqueIndex:idx_resource_action" json:"action"`
}

// ResourcePermission is the grantable scope string for a resource,
// e.g. "housing:create". Scopes are unique per (resource, action).
type ResourcePermission struct {
	Base
	ResourceID string    `gorm:"type:uuid;not null" json:"resourceId"`
	Resource   *Resource `json:"resource,omitempty"`
	Scope      string    `gorm:"uniqueIndex;not null" json:"scope"`
}

// Role owns a set of permissions; subjects carry exactly one role. The
// permission set is read as an immutable snapshot at token issue time.
type Role struct {
	Base
	Name        string               `gorm:"uniqueIndex;not null" json:"name" validate:"required,min=2"`
	Description string               `json:"description"`
	Permissions []ResourcePermission `gorm:"many2many:role_permissions" json:"permissions,omitempty"`
}

// Scopes flattens the role's permissions into their scope strings, the
// denormalized form embedded in token claims.
func (r *Role) Scopes() []string {
	scopes := make([]string, 0, len(r.Permissions))
	for _, p := range r.Permissions {
		scopes = append(scopes, p.Scope)
	}
	return scopes
}
