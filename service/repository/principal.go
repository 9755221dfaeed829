package repository

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/backflowhq/service-authgate/service/models"
)

func lockForUpdate() clause.Locking {
	return clause.Locking{Strength: "UPDATE"}
}

type principalRepository struct {
	db     *gorm.DB
	policy LockoutPolicy
}

// NewPrincipalRepository creates a CredentialStore backed by the relational database.
func NewPrincipalRepository(db *gorm.DB, policy LockoutPolicy) CredentialStore {
	return &principalRepository{
		db:     db,
		policy: policy,
	}
}

// FindByEmail retrieves a principal by its normalized email
func (r *principalRepository) FindByEmail(ctx context.Context, email string) (*models.Principal, error) {
	var principal models.Principal
	err := r.db.WithContext(ctx).First(&principal, "email = ?", strings.ToLower(strings.TrimSpace(email))).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "could not query principal by email")
	}
	return &principal, nil
}

// GetByID retrieves a principal by ID
func (r *principalRepository) GetByID(ctx context.Context, id string) (*models.Principal, error) {
	var principal models.Principal
	err := r.db.WithContext(ctx).First(&principal, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "could not query principal by id")
	}
	return &principal, nil
}

// Create persists a new principal record
func (r *principalRepository) Create(ctx context.Context, principal *models.Principal) error {
	principal.Email = strings.ToLower(strings.TrimSpace(principal.Email))
	return r.db.WithContext(ctx).Create(principal).Error
}

// RecordFailedAttempt increments the failure counter inside a transaction so
// concurrent failures cannot undercount, and applies the lockout policy once
// the threshold is crossed.
func (r *principalRepository) RecordFailedAttempt(ctx context.Context, principalID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var principal models.Principal
		err := tx.Clauses(lockForUpdate()).First(&principal, "id = ?", principalID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		updates := map[string]any{
			"failed_login_attempts": principal.FailedLoginAttempts + 1,
		}
		if principal.FailedLoginAttempts+1 >= r.policy.Threshold {
			updates["locked_until"] = time.Now().Add(r.policy.Duration)
		}

		return tx.Model(&models.Principal{}).Where("id = ?", principalID).Updates(updates).Error
	})
}

// ClearFailedAttempts resets the failure counter and releases any lock
func (r *principalRepository) ClearFailedAttempts(ctx context.Context, principalID string) error {
	return r.db.WithContext(ctx).Model(&models.Principal{}).
		Where("id = ?", principalID).
		Updates(map[string]any{
			"failed_login_attempts": 0,
			"locked_until":          nil,
		}).Error
}

// UpdatePassword replaces the stored password hash
func (r *principalRepository) UpdatePassword(ctx context.Context, principalID string, passwordHash []byte) error {
	result := r.db.WithContext(ctx).Model(&models.Principal{}).
		Where("id = ?", principalID).
		Update("password_hash", passwordHash)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetActive toggles whether the principal may authenticate
func (r *principalRepository) SetActive(ctx context.Context, principalID string, active bool) error {
	result := r.db.WithContext(ctx).Model(&models.Principal{}).
		Where("id = ?", principalID).
		Update("is_active", active)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
