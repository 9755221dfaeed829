package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/backflowhq/service-authgate/service/models"
)

type loginEventRepository struct {
	db *gorm.DB
}

// NewLoginEventRepository creates a LoginEventStore backed by the relational database.
func NewLoginEventRepository(db *gorm.DB) LoginEventStore {
	return &loginEventRepository{
		db: db,
	}
}

// Record persists a login event
func (r *loginEventRepository) Record(ctx context.Context, event *models.LoginEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	return r.db.WithContext(ctx).Create(event).Error
}

// ListForPrincipal retrieves the most recent events for a principal
func (r *loginEventRepository) ListForPrincipal(ctx context.Context, principalID string, limit int) ([]*models.LoginEvent, error) {
	var events []*models.LoginEvent
	err := r.db.WithContext(ctx).
		Where("principal_id = ?", principalID).
		Order("created_at DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}
