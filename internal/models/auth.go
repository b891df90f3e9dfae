package models

import (
	"time"
)

// User is an administrative subject. Accounts are never hard-deleted;
// lockout state tracks failed logins.
type User struct {
	Base
	Email               string    `gorm:"uniqueIndex;not null" json:"email" validate:"required,email"`
	Password            string    `gorm:"not null" json:"-"`
	FirstName           string    `json:"firstName"`
	LastName            string    `json:"lastName"`
	RoleID              string    `gorm:"type:uuid;not null" json:"roleId" validate:"required,uuid"`
	Role                *Role     `json:"role,omitempty"`
	TenantID            string    `gorm:"type:uuid;not null" json:"tenantId" validate:"required,uuid"`
	Tenant              *Tenant   `json:"tenant,omitempty"`
	Active              bool      `gorm:"default:true" json:"active"`
	FailedLoginAttempts int       `gorm:"default:0" json:"-"`
	LockedUntil         time.Time `gorm:"default:NULL" json:"-"`
}

// IsLocked reports whether the account is currently locked out.
func (u *User) IsLocked(now time.Time) bool {
	return !u.LockedUntil.IsZero() && now.Before(u.LockedUntil)
}

type PasswordReset struct {
	Base
	User      *User     `json:"user,omitempty"`
	UserID    string    `gorm:"type:uuid;not null" json:"userId"`
	Code      string    `gorm:"not null" json:"code"`
	Used      bool      `gorm:"default:false" json:"used"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// AuthTransaction records an issued token pair so sessions can be verified
// and revoked server-side.
type AuthTransaction struct {
	Base
	UserID    string    `gorm:"type:uuid;not null" json:"userId"`
	User      *User     `json:"user,omitempty"`
	TenantID  string    `gorm:"type:uuid;not null" json:"tenantId"`
	Tenant    *Tenant   `json:"tenant,omitempty"`
	Token     string    `gorm:"not null" json:"token"`
	Refresh   string    `gorm:"not null" json:"refresh"`
	IPAddress string    `json:"ipAddress"`
	UserAgent string    `json:"userAgent"`
	ExpiresAt time.Time `json:"expiresAt"`
}
