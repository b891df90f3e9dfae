package models

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"crou/internal/events"
)

// BatchFlags are the submission-mode switches of a campaign, stored as a
// JSON column.
type BatchFlags struct {
	OnlineAllowed      bool `json:"onlineAllowed"`
	ManualAllowed      bool `json:"manualAllowed"`
	DocumentsRequired  bool `json:"documentsRequired"`
	AutoApproveEnabled bool `json:"autoApproveEnabled"`
}

// ApplicationBatch is a bounded housing allocation campaign. Only a DRAFT
// batch may be mutated or deleted; transitions go through the lifecycle
// service which uses conditional updates on Status.
type ApplicationBatch struct {
	Base
	TenantID     string         `gorm:"type:uuid;not null;index" json:"tenantId" validate:"required,uuid"`
	Tenant       *Tenant        `json:"tenant,omitempty"`
	Name         string         `gorm:"not null" json:"name" validate:"required,min=2"`
	Type         string         `gorm:"not null" json:"type" validate:"required"`
	AcademicYear string         `gorm:"not null" json:"academicYear" validate:"required,academic_year"`
	StartDate    time.Time      `gorm:"not null" json:"startDate" validate:"required"`
	EndDate      time.Time      `gorm:"not null" json:"endDate" validate:"required"`
	Status       BatchStatus    `gorm:"not null;default:'DRAFT';index" json:"status" validate:"omitempty,batch_status"`
	Flags        datatypes.JSON `gorm:"type:jsonb" json:"flags,omitempty"`
	// MaxApplicationsPerStudent caps how many requests one student may file
	// within this batch; 0 means a single application.
	MaxApplicationsPerStudent int              `gorm:"default:1" json:"maxApplicationsPerStudent"`
	UpdatedBy                 string           `gorm:"type:uuid;default:NULL" json:"updatedBy,omitempty"`
	Requests                  []HousingRequest `gorm:"foreignKey:BatchID" json:"requests,omitempty"`
}

func (b *ApplicationBatch) AfterCreate(tx *gorm.DB) error {
	events.Emit("batch.created", b)
	return nil
}

// RoomPreferences are a student's stated wishes, stored as JSON.
type RoomPreferences struct {
	ComplexIDs []string `json:"complexIds,omitempty"`
	RoomType   string   `json:"roomType,omitempty"`
}

// HousingRequest is one student's application inside a batch. Strictly
// scoped to the batch's tenant.
type HousingRequest struct {
	Base
	BatchID            string            `gorm:"type:uuid;not null;index" json:"batchId" validate:"required,uuid"`
	Batch              *ApplicationBatch `json:"batch,omitempty"`
	TenantID           string            `gorm:"type:uuid;not null;index" json:"tenantId" validate:"required,uuid"`
	StudentID          string            `gorm:"type:uuid;not null;index" json:"studentId" validate:"required,uuid"`
	Preferences        datatypes.JSON    `gorm:"type:jsonb" json:"preferences,omitempty"`
	EligibleAutoAssign bool              `gorm:"default:false" json:"eligibleAutoAssign"`
	Status             RequestStatus     `gorm:"not null;default:'PENDING';index" json:"status" validate:"omitempty,request_status"`
	// Reason explains a non-PENDING outcome (waitlist, rejection, failure).
	Reason      string    `json:"reason,omitempty"`
	SubmittedAt time.Time `gorm:"not null;index" json:"submittedAt"`
	DocumentID  string    `gorm:"type:uuid;default:NULL" json:"documentId,omitempty"`
}

func (r *HousingRequest) BeforeCreate(tx *gorm.DB) error {
	if err := r.Base.BeforeCreate(tx); err != nil {
		return err
	}
	if r.SubmittedAt.IsZero() {
		r.SubmittedAt = time.Now()
	}
	return nil
}

// Complex is a housing estate owned by a tenant.
type Complex struct {
	Base
	TenantID string  `gorm:"type:uuid;not null;index" json:"tenantId" validate:"required,uuid"`
	Tenant   *Tenant `json:"tenant,omitempty"`
	Name     string  `gorm:"not null" json:"name" validate:"required"`
	City     string  `json:"city"`
	Rooms    []Room  `gorm:"foreignKey:ComplexID" json:"rooms,omitempty"`
}

type Room struct {
	Base
	ComplexID string   `gorm:"type:uuid;not null;index" json:"complexId" validate:"required,uuid"`
	Complex   *Complex `json:"complex,omitempty"`
	Number    string   `gorm:"not null" json:"number" validate:"required"`
	Type      string   `json:"type"`
	Capacity  int      `gorm:"default:1" json:"capacity"`
	Beds      []Bed    `gorm:"foreignKey:RoomID" json:"beds,omitempty"`
}

// Bed is the allocation unit: at most one active assignment at a time.
// Binding flips Occupied with a conditional update so two concurrent
// assignment passes can never claim the same slot.
type Bed struct {
	Base
	RoomID   string `gorm:"type:uuid;not null;index" json:"roomId" validate:"required,uuid"`
	Room     *Room  `json:"room,omitempty"`
	Label    string `gorm:"not null" json:"label" validate:"required"`
	Occupied bool   `gorm:"default:false;index" json:"occupied"`
}

// RoomAssignment binds one request to one bed; RequestID is unique so a
// request can never be double-assigned.
type RoomAssignment struct {
	Base
	RequestID  string          `gorm:"type:uuid;uniqueIndex;not null" json:"requestId"`
	Request    *HousingRequest `json:"request,omitempty"`
	BedID      string          `gorm:"type:uuid;not null;index" json:"bedId"`
	Bed        *Bed            `json:"bed,omitempty"`
	BatchID    string          `gorm:"type:uuid;not null;index" json:"batchId"`
	TenantID   string          `gorm:"type:uuid;not null;index" json:"tenantId"`
	AssignedAt time.Time       `gorm:"not null" json:"assignedAt"`
}

// ApplicationDocument is a supporting file uploaded for a request when the
// batch requires documents. The stored Path is an object key; SignedURL is
// generated on read.
type ApplicationDocument struct {
	Base
	TenantID  string `gorm:"type:uuid;not null;index" json:"tenantId"`
	UserID    string `gorm:"type:uuid;default:NULL" json:"userId,omitempty"`
	Path      string `gorm:"not null" json:"path" validate:"required"`
	Name      string `gorm:"not null" json:"name" validate:"required"`
	Size      int64  `gorm:"not null" json:"size" validate:"required,min=1"`
	Type      string `gorm:"not null" json:"type" validate:"required"`
	SignedURL string `gorm:"-" json:"signedUrl,omitempty"` // Virtual field
}

func (d *ApplicationDocument) AfterFind(tx *gorm.DB) error {
	registryMu.RLock()
	generator := urlGenerator
	registryMu.RUnlock()

	if generator != nil {
		url, err := generator.GetSignedURL(tx.Statement.Context, d.Path, time.Hour)
		if err != nil {
			return fmt.Errorf("failed to generate signed URL: %w", err)
		}
		d.SignedURL = url
	}
	return nil
}
