package models

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"crou/internal/events"
)

// Tenant is an organizational node: the ministry at level 0, regional
// offices (CROU) at level 1, service units at level 2. Tenants are never
// hard-deleted, only deactivated.
type Tenant struct {
	Base
	Name     string     `gorm:"not null" json:"name" validate:"required,min=2"`
	Code     string     `gorm:"uniqueIndex;not null" json:"code" validate:"required,min=2"`
	Type     TenantType `gorm:"not null" json:"type" validate:"required,tenant_type"`
	Level    int        `json:"level"`
	ParentID string     `gorm:"type:uuid;default:NULL" json:"parentId,omitempty" validate:"omitempty,uuid"`
	Parent   *Tenant    `json:"parent,omitempty"`
	// Path is the materialized ancestor chain ("/MINISTERE/CROU-NORD"),
	// cached for prefix queries; the indexed ParentID is authoritative.
	Path     string   `gorm:"index;not null" json:"path"`
	Active   bool     `gorm:"default:true" json:"active"`
	Children []Tenant `gorm:"foreignKey:ParentID" json:"children,omitempty"`
}

// BeforeCreate derives Level and Path from the parent. A node's level is
// always its parent's level + 1; roots sit at level 0 with no parent.
func (t *Tenant) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}

	if t.ParentID == "" {
		t.Level = 0
		t.Path = "/" + t.Code
		return nil
	}

	var parent Tenant
	if err := tx.Where("id = ? AND is_deleted = false", t.ParentID).First(&parent).Error; err != nil {
		return fmt.Errorf("parent tenant %s not found: %w", t.ParentID, err)
	}
	t.Level = parent.Level + 1
	t.Path = parent.Path + "/" + t.Code
	return nil
}

func (t *Tenant) AfterCreate(tx *gorm.DB) error {
	events.Emit("tenant.created", t)
	return nil
}

// IsRoot reports whether this is the ministry (root) node.
func (t *Tenant) IsRoot() bool {
	return t.Level == 0 && t.ParentID == ""
}

// IsAncestorOf reports whether other sits below t in the hierarchy,
// using the cached path prefix.
func (t *Tenant) IsAncestorOf(other *Tenant) bool {
	return other != nil && other.ID != t.ID && strings.HasPrefix(other.Path, t.Path+"/")
}

// Deactivate soft-disables the tenant; provisioning never deletes nodes.
func (t *Tenant) Deactivate(tx *gorm.DB) error {
	return tx.Model(t).Update("active", false).Error
}
