package database

import (
	"gorm.io/gorm"

	"github.com/noah-isme/classroom-portal/internal/models"
)

// Migrate creates or updates every table owned by the portal backend.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Account{},
		&models.AuthSession{},
		&models.Class{},
		&models.Module{},
		&models.Resource{},
		&models.Enrollment{},
		&models.Note{},
		&models.ModuleProgress{},
	)
}
