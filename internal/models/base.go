package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base contains common columns for all tables
type Base struct {
	ID        string    `gorm:"type:uuid;primary_key" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	DeletedAt time.Time `gorm:"index;default:NULL" json:"-" validate:"omitempty"`
	IsDeleted bool      `json:"isDeleted" default:"false"`
}

// BeforeCreate will set a UUID rather than numeric ID
func (base *Base) BeforeCreate(tx *gorm.DB) error {
	if base.ID == "" {
		base.ID = uuid.New().String()
	}
	return nil
}

type TenantType string

const (
	TenantTypeMinistry       TenantType = "MINISTRY"
	TenantTypeRegionalOffice TenantType = "REGIONAL_OFFICE"
	TenantTypeServiceUnit    TenantType = "SERVICE_UNIT"
)

// BatchStatus is the persisted lifecycle state of an allocation campaign.
// PROCESSING, COMPLETED and ARCHIVED are explicit states, not inferred from
// side effects.
type BatchStatus string

const (
	BatchStatusDraft      BatchStatus = "DRAFT"
	BatchStatusOpen       BatchStatus = "OPEN"
	BatchStatusClosed     BatchStatus = "CLOSED"
	BatchStatusProcessing BatchStatus = "PROCESSING"
	BatchStatusCompleted  BatchStatus = "COMPLETED"
	BatchStatusArchived   BatchStatus = "ARCHIVED"
)

type RequestStatus string

const (
	RequestStatusPending    RequestStatus = "PENDING"
	RequestStatusAssigned   RequestStatus = "ASSIGNED"
	RequestStatusWaitlisted RequestStatus = "WAITLISTED"
	RequestStatusRejected   RequestStatus = "REJECTED"
)

func IsValidTenantType(t TenantType) bool {
	switch t {
	case TenantTypeMinistry, TenantTypeRegionalOffice, TenantTypeServiceUnit:
		return true
	default:
		return false
	}
}
