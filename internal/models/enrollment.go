package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	// EnrollmentStatusActive makes the class visible to the student.
	EnrollmentStatusActive = "active"
	// EnrollmentStatusInactive hides the class without deleting the row.
	EnrollmentStatusInactive = "inactive"
)

// Enrollment relates one account to one class.
type Enrollment struct {
	ID        string `gorm:"primaryKey;size:36"`
	AccountID string `gorm:"size:36;not null;uniqueIndex:idx_enrollments_account_class"`
	ClassID   string `gorm:"size:36;not null;uniqueIndex:idx_enrollments_account_class"`
	Status    string `gorm:"size:16;not null;default:'active'"`
	CreatedAt time.Time
	UpdatedAt time.Time
	Class     Class `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// BeforeCreate assigns the enrollment identifier.
func (e *Enrollment) BeforeCreate(tx *gorm.DB) error {
	ensureID(&e.ID)
	if e.Status == "" {
		e.Status = EnrollmentStatusActive
	}
	return nil
}
