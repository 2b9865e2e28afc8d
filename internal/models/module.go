package models

import (
	"time"

	"gorm.io/gorm"
)

// Module is an ordered unit of content inside a class.
type Module struct {
	ID          string `gorm:"primaryKey;size:36"`
	ClassID     string `gorm:"size:36;not null;uniqueIndex:idx_modules_class_order"`
	Title       string `gorm:"size:255;not null"`
	Description string `gorm:"type:text"`
	SlideURL    string `gorm:"size:512"`
	Content     string `gorm:"type:text"`
	Order       int    `gorm:"column:sort_order;not null;uniqueIndex:idx_modules_class_order"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Resources   []Resource `gorm:"constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
}

// BeforeCreate assigns the module identifier.
func (m *Module) BeforeCreate(tx *gorm.DB) error {
	ensureID(&m.ID)
	return nil
}
