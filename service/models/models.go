package models

import (
	"time"

	"github.com/pitabwire/util"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Role values form a closed, flat set. There is no hierarchy between roles;
// every protected operation names the roles it admits explicitly.
const (
	RoleAdmin        = "admin"
	RoleCompanyAdmin = "company_admin"
	RoleTechnician   = "technician"
	RoleTester       = "tester"
	RoleCustomer     = "customer"
)

// ValidRole reports whether role belongs to the closed role set.
func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleCompanyAdmin, RoleTechnician, RoleTester, RoleCustomer:
		return true
	}
	return false
}

// Login event status values recorded in the audit trail.
const (
	LoginEventSucceeded     = "succeeded"
	LoginEventBadCredential = "bad_credential"
	LoginEventLocked        = "locked"
	LoginEventDisabled      = "disabled"
)

type BaseModel struct {
	ID        string `gorm:"type:varchar(50);primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (m *BaseModel) BeforeCreate(_ *gorm.DB) error {
	if m.ID == "" {
		m.ID = util.IDString()
	}
	return nil
}

// Principal is an account that can authenticate. The password hash never
// leaves this layer; it is excluded from any serialized form.
type Principal struct {
	BaseModel
	Email               string `gorm:"type:varchar(255);uniqueIndex"`
	Role                string `gorm:"type:varchar(50)"`
	IsActive            bool
	PasswordHash        []byte `json:"-"`
	FailedLoginAttempts int
	LockedUntil         *time.Time
}

// LockedAt reports whether the principal is under an authentication lock at
// the supplied instant.
func (p *Principal) LockedAt(now time.Time) bool {
	return p.LockedUntil != nil && now.Before(*p.LockedUntil)
}

// Session binds an opaque bearer token to a principal for a bounded time.
// A principal may hold any number of concurrent sessions.
type Session struct {
	BaseModel
	Token          string `gorm:"type:varchar(128);uniqueIndex"`
	PrincipalID    string `gorm:"type:varchar(50);index"`
	ExpiresAt      time.Time
	LastActivityAt time.Time
}

// ExpiredAt reports whether the session's TTL has elapsed at the supplied instant.
func (s *Session) ExpiredAt(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// LoginEvent is an audit record of an authentication attempt.
type LoginEvent struct {
	BaseModel
	PrincipalID string `gorm:"type:varchar(50);index"`
	Email       string `gorm:"type:varchar(255)"`
	ClientIP    string `gorm:"type:varchar(64)"`
	Status      string `gorm:"type:varchar(32)"`
	Properties  datatypes.JSONMap
}
