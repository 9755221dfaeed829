package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/backflowhq/service-authgate/service/models"
)

// Migrate brings the schema up to date with the model definitions.
func Migrate(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).AutoMigrate(
		&models.Principal{},
		&models.Session{},
		&models.LoginEvent{},
	)
}
