package repository

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/backflowhq/service-authgate/service/models"
	"github.com/backflowhq/service-authgate/utils"
)

type sessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository creates a SessionStore backed by the relational database.
func NewSessionRepository(db *gorm.DB) SessionStore {
	return &sessionRepository{
		db: db,
	}
}

// Create mints a session with a fresh token for the principal
func (r *sessionRepository) Create(ctx context.Context, principalID string, ttl time.Duration) (*models.Session, error) {
	token, err := utils.GenerateSessionToken()
	if err != nil {
		return nil, errors.Wrap(err, "could not generate session token")
	}

	now := time.Now()
	session := &models.Session{
		Token:          token,
		PrincipalID:    principalID,
		ExpiresAt:      now.Add(ttl),
		LastActivityAt: now,
	}

	if err = r.db.WithContext(ctx).Create(session).Error; err != nil {
		return nil, errors.Wrap(err, "could not persist session")
	}
	return session, nil
}

// FindByToken retrieves a session by its token
func (r *sessionRepository) FindByToken(ctx context.Context, token string) (*models.Session, error) {
	var session models.Session
	err := r.db.WithContext(ctx).First(&session, "token = ?", token).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "could not query session by token")
	}
	return &session, nil
}

// Touch updates the session's last activity timestamp
func (r *sessionRepository) Touch(ctx context.Context, token string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Session{}).
		Where("token = ?", token).
		Update("last_activity_at", at).Error
}

// DeleteByToken removes a single session
func (r *sessionRepository) DeleteByToken(ctx context.Context, token string) error {
	return r.db.WithContext(ctx).Delete(&models.Session{}, "token = ?", token).Error
}

// DeleteAllForPrincipal removes every session owned by a principal
func (r *sessionRepository) DeleteAllForPrincipal(ctx context.Context, principalID string) error {
	return r.db.WithContext(ctx).Delete(&models.Session{}, "principal_id = ?", principalID).Error
}

// DeleteAll removes every session in the store
func (r *sessionRepository) DeleteAll(ctx context.Context) error {
	return r.db.WithContext(ctx).Where("1 = 1").Delete(&models.Session{}).Error
}

// DeleteExpired removes sessions whose TTL elapsed before now
func (r *sessionRepository) DeleteExpired(ctx context.Context, now time.Time) error {
	return r.db.WithContext(ctx).Delete(&models.Session{}, "expires_at < ?", now).Error
}
