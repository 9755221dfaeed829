package repository

import (
	"context"
	"errors"
	"time"

	"github.com/backflowhq/service-authgate/service/models"
)

// ErrNotFound is returned by lookups when no matching record exists. Callers
// distinguish it from infrastructure failures with errors.Is.
var ErrNotFound = errors.New("record not found")

// LockoutPolicy controls when repeated credential failures lock an account.
type LockoutPolicy struct {
	// Threshold is the number of verified-wrong-password failures after
	// which the account locks.
	Threshold int
	// Duration is how long the lock holds once set.
	Duration time.Duration
}

// CredentialStore handles persistence of principals and their lock state.
type CredentialStore interface {
	// FindByEmail retrieves a principal by its normalized email
	FindByEmail(ctx context.Context, email string) (*models.Principal, error)
	// GetByID retrieves a principal by ID
	GetByID(ctx context.Context, id string) (*models.Principal, error)
	// Create persists a new principal record
	Create(ctx context.Context, principal *models.Principal) error
	// RecordFailedAttempt increments the failure counter; crossing the
	// lockout threshold sets LockedUntil
	RecordFailedAttempt(ctx context.Context, principalID string) error
	// ClearFailedAttempts resets the failure counter and any lock,
	// called on successful authentication
	ClearFailedAttempts(ctx context.Context, principalID string) error
	// UpdatePassword replaces the stored password hash
	UpdatePassword(ctx context.Context, principalID string, passwordHash []byte) error
	// SetActive toggles whether the principal may authenticate
	SetActive(ctx context.Context, principalID string, active bool) error
}

// SessionStore handles persistence of opaque session tokens.
type SessionStore interface {
	// Create mints a session with a fresh token for the principal
	Create(ctx context.Context, principalID string, ttl time.Duration) (*models.Session, error)
	// FindByToken retrieves a session by its token
	FindByToken(ctx context.Context, token string) (*models.Session, error)
	// Touch updates the session's last activity timestamp
	Touch(ctx context.Context, token string, at time.Time) error
	// DeleteByToken removes a single session
	DeleteByToken(ctx context.Context, token string) error
	// DeleteAllForPrincipal removes every session owned by a principal
	DeleteAllForPrincipal(ctx context.Context, principalID string) error
	// DeleteAll removes every session in the store, used for incident response
	DeleteAll(ctx context.Context) error
	// DeleteExpired removes sessions whose TTL elapsed before now
	DeleteExpired(ctx context.Context, now time.Time) error
}

// LoginEventStore records the authentication audit trail.
type LoginEventStore interface {
	// Record persists a login event
	Record(ctx context.Context, event *models.LoginEvent) error
	// ListForPrincipal retrieves the most recent events for a principal
	ListForPrincipal(ctx context.Context, principalID string, limit int) ([]*models.LoginEvent, error)
}
