package models

import (
	"gorm.io/gorm"
)

// GetTenantByCode retrieves an active tenant by its unique code
func GetTenantByCode(code string, db *gorm.DB) (*Tenant, error) {
	tenant := &Tenant{}
	if err := db.Where("code = ? AND is_deleted = false", code).First(tenant).Error; err != nil {
		return nil, err
	}
	return tenant, nil
}

// GetUserWithRole loads a user together with the role's permission set
func GetUserWithRole(id string, db *gorm.DB) (*User, error) {
	user := &User{}
	if err := db.Preload("Role.Permissions").Preload("Tenant").
		Where("id = ? AND is_deleted = false", id).First(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// GetDocumentByID retrieves an application document
func GetDocumentByID(id string, db *gorm.DB) (*ApplicationDocument, error) {
	doc := &ApplicationDocument{}
	if err := db.Where("id = ? AND is_deleted = false", id).First(doc).Error; err != nil {
		return nil, err
	}
	return doc, nil
}
