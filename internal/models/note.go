package models

import (
	"time"

	"gorm.io/gorm"
)

// Note holds one account's rich-text notes for one module.
type Note struct {
	ID        string `gorm:"primaryKey;size:36"`
	AccountID string `gorm:"size:36;not null;uniqueIndex:idx_notes_account_module"`
	ModuleID  string `gorm:"size:36;not null;uniqueIndex:idx_notes_account_module"`
	Content   string `gorm:"type:text;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BeforeCreate assigns the note identifier.
func (n *Note) BeforeCreate(tx *gorm.DB) error {
	ensureID(&n.ID)
	return nil
}

// ModuleProgress records whether an account completed a module.
type ModuleProgress struct {
	ID           string    `gorm:"primaryKey;size:36"`
	AccountID    string    `gorm:"size:36;not null;uniqueIndex:idx_progress_account_module"`
	ModuleID     string    `gorm:"size:36;not null;uniqueIndex:idx_progress_account_module"`
	Completed    bool      `gorm:"not null;default:false"`
	LastAccessed time.Time `gorm:"not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TableName keeps the singular table name used by the portal clients.
func (ModuleProgress) TableName() string {
	return "module_progress"
}

// BeforeCreate assigns the progress identifier.
func (p *ModuleProgress) BeforeCreate(tx *gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
