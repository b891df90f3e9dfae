package models

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"crou/internal/config"
	console "crou/internal/utils/logger"
)

var log = console.New("SEEDER")

var crudActions = []string{"create", "read", "update", "delete"}

// Modules that only carry plain CRUD actions.
var crudModules = []string{"tenants", "users", "roles", "reports", "stocks", "transport"}

// Modules with lifecycle or tiered actions on top of CRUD.
var extendedModules = map[string][]string{
	"financial": {"write", "validate", "approve"},
	"housing":   {"manage", "process", "assign"},
	"admin":     {"manage"},
}

// Default role names and their permission scopes.
var rolePermissions = map[string][]string{
	"SUPER_ADMIN": {"*:*"},
	"MINISTRY_ADMIN": {
		"tenants:*", "users:*", "roles:*", "reports:*",
		"financial:*", "stocks:*", "housing:*", "transport:*", "admin:manage",
	},
	"CROU_ADMIN": {
		"users:read", "reports:*",
		"financial:read", "financial:write",
		"stocks:*", "housing:*", "transport:*",
	},
	"AGENT": {
		"housing:read", "housing:create",
		"stocks:read", "transport:read", "reports:read",
	},
}

func defaultResources() []Resource {
	var resources []Resource
	for _, module := range crudModules {
		for _, action := range crudActions {
			resources = append(resources, Resource{Name: module, Action: action})
		}
	}
	for module, extra := range extendedModules {
		for _, action := range crudActions {
			resources = append(resources, Resource{Name: module, Action: action})
		}
		for _, action := range extra {
			resources = append(resources, Resource{Name: module, Action: action})
		}
	}
	return resources
}

// SeedPermissions creates the default resources, scopes and roles.
func SeedPermissions(db *gorm.DB) error {
	for _, resource := range defaultResources() {
		if err := db.FirstOrCreate(&resource, Resource{
			Name:   resource.Name,
			Action: resource.Action,
		}).Error; err != nil {
			return fmt.Errorf("failed to create resource %s:%s: %v", resource.Name, resource.Action, err)
		}

		scope := fmt.Sprintf("%s:%s", resource.Name, resource.Action)
		permission := ResourcePermission{ResourceID: resource.ID, Scope: scope}
		if err := db.FirstOrCreate(&permission, ResourcePermission{Scope: scope}).Error; err != nil {
			return fmt.Errorf("failed to create permission %s: %v", scope, err)
		}
	}

	for name, scopes := range rolePermissions {
		log.Info("Seeding role: %s", name)

		role := Role{Name: name}
		if err := db.FirstOrCreate(&role, Role{Name: name}).Error; err != nil {
			return fmt.Errorf("failed to create role %s: %v", name, err)
		}

		perms, err := resolveScopes(db, scopes)
		if err != nil {
			return err
		}
		if err := db.Model(&role).Association("Permissions").Replace(perms); err != nil {
			return fmt.Errorf("failed to attach permissions to role %s: %v", name, err)
		}
	}

	return nil
}

// resolveScopes expands wildcard scopes like "housing:*" against the seeded
// resources. The global "*:*" stays as a literal scope so SUPER_ADMIN tokens
// carry a single wildcard instead of the full list.
func resolveScopes(db *gorm.DB, scopes []string) ([]ResourcePermission, error) {
	var out []ResourcePermission
	for _, scope := range scopes {
		if scope == "*:*" {
			perm := ResourcePermission{Scope: scope}
			if err := db.FirstOrCreate(&perm, ResourcePermission{Scope: scope}).Error; err != nil {
				return nil, fmt.Errorf("failed to create wildcard permission: %v", err)
			}
			out = append(out, perm)
			continue
		}

		if strings.HasSuffix(scope, ":*") {
			resourceName := strings.TrimSuffix(scope, ":*")
			var perms []ResourcePermission
			if err := db.Joins("JOIN resources ON resources.id = resource_permissions.resource_id").
				Where("resources.name = ?", resourceName).Find(&perms).Error; err != nil {
				return nil, fmt.Errorf("failed to expand %s: %v", scope, err)
			}
			out = append(out, perms...)
			continue
		}

		var perm ResourcePermission
		if err := db.Where("scope = ?", scope).First(&perm).Error; err != nil {
			return nil, fmt.Errorf("failed to find permission %s: %v", scope, err)
		}
		out = append(out, perm)
	}
	return out, nil
}

// SeedRootTenant creates the ministry node when the hierarchy is empty.
func SeedRootTenant(db *gorm.DB, cfg *config.Config) (*Tenant, error) {
	var tenant Tenant
	err := db.Where("code = ? AND is_deleted = false", cfg.RBAC.RootTenantCode).First(&tenant).Error
	if err == nil {
		return &tenant, nil
	}

	tenant = Tenant{
		Name: "Ministère de l'Enseignement Supérieur",
		Code: cfg.RBAC.RootTenantCode,
		Type: TenantTypeMinistry,
	}
	if err := db.Create(&tenant).Error; err != nil {
		return nil, fmt.Errorf("failed to create root tenant: %v", err)
	}
	log.Success("Created root tenant %s", tenant.Code)
	return &tenant, nil
}

// CreateSuperAdminFromEnv provisions the initial SUPER_ADMIN account.
func CreateSuperAdminFromEnv(db *gorm.DB, cfg *config.Config) error {
	var role Role
	if err := db.Where("name = ?", "SUPER_ADMIN").First(&role).Error; err != nil {
		return fmt.Errorf("SUPER_ADMIN role not seeded: %v", err)
	}

	var count int64
	db.Model(&User{}).Where("role_id = ?", role.ID).Count(&count)
	if count > 0 {
		return nil
	}

	email, ok := os.LookupEnv("SUPERADMIN_EMAIL")
	if !ok {
		return fmt.Errorf("SUPERADMIN_EMAIL not set")
	}

	password, ok := os.LookupEnv("SUPERADMIN_PASSWORD")
	if !ok {
		return fmt.Errorf("SUPERADMIN_PASSWORD not set")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %v", err)
	}

	root, err := SeedRootTenant(db, cfg)
	if err != nil {
		return err
	}

	user := User{
		FirstName: getEnvOr("SUPERADMIN_NAME", "Administrateur"),
		Email:     email,
		Password:  string(hashedPassword),
		RoleID:    role.ID,
		TenantID:  root.ID,
	}

	if err := db.Create(&user).Error; err != nil {
		return fmt.Errorf("failed to create superadmin user: %v", err)
	}

	return nil
}

func getEnvOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}
