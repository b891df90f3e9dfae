package models

import (
	"gorm.io/gorm"

	"crou/internal/events"
)

// FinancialOperation is a recorded budget movement (subvention, engagement,
// paiement). Amounts are stored in minor units; operations above the
// validation ceiling only reach this table through a validator's permission.
type FinancialOperation struct {
	Base
	TenantID    string  `gorm:"type:uuid;not null;index" json:"tenantId" validate:"required,uuid"`
	Tenant      *Tenant `json:"tenant,omitempty"`
	Label       string  `gorm:"not null" json:"label" validate:"required"`
	Amount      int64   `gorm:"not null" json:"amount" validate:"required,min=1"`
	Category    string  `json:"category"`
	RecordedBy  string  `gorm:"type:uuid;not null" json:"recordedBy"`
	ValidatedBy string  `gorm:"type:uuid;default:NULL" json:"validatedBy,omitempty"`
}

func (o *FinancialOperation) AfterCreate(tx *gorm.DB) error {
	events.Emit("financial_operation.created", o)
	return nil
}
