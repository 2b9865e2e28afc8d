package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/classroom-portal/internal/models"
)

// EnrollmentRepository persists the account-to-class relation.
type EnrollmentRepository interface {
	ListActive(ctx context.Context, accountID string) ([]models.Enrollment, error)
	Get(ctx context.Context, accountID, classID string) (models.Enrollment, error)
	Upsert(ctx context.Context, enrollment *models.Enrollment) error
	IsEnrolledInClass(ctx context.Context, accountID, classID string) (bool, error)
	IsEnrolledInModule(ctx context.Context, accountID, moduleID string) (bool, error)
}

type enrollmentRepository struct {
	db *gorm.DB
}

// NewEnrollmentRepository instantiates a GORM-backed enrollment repository.
func NewEnrollmentRepository(db *gorm.DB) EnrollmentRepository {
	return &enrollmentRepository{db: db}
}

// ListActive returns active enrollments with classes, ordered modules and resources expanded.
func (r *enrollmentRepository) ListActive(ctx context.Context, accountID string) ([]models.Enrollment, error) {
	var enrollments []models.Enrollment
	query := r.db.WithContext(ctx).
		Where("account_id = ? AND status = ?", accountID, models.EnrollmentStatusActive).
		Preload("Class")
	query = preloadClassContent(query, "Class.")

	if err := query.Order("created_at ASC").Find(&enrollments).Error; err != nil {
		return nil, err
	}
	return enrollments, nil
}

func (r *enrollmentRepository) Get(ctx context.Context, accountID, classID string) (models.Enrollment, error) {
	var enrollment models.Enrollment
	query := r.db.WithContext(ctx).Preload("Class")
	query = preloadClassContent(query, "Class.")
	if err := query.First(&enrollment, "account_id = ? AND class_id = ?", accountID, classID).Error; err != nil {
		return models.Enrollment{}, err
	}
	return enrollment, nil
}

// Upsert inserts the enrollment or re-activates the existing (account, class) row.
func (r *enrollmentRepository) Upsert(ctx context.Context, enrollment *models.Enrollment) error {
	return r.db.WithContext(ctx).
		Omit("Class").
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}, {Name: "class_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "updated_at"}),
		}).
		Create(enrollment).Error
}

func (r *enrollmentRepository) IsEnrolledInClass(ctx context.Context, accountID, classID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Enrollment{}).
		Where("account_id = ? AND class_id = ? AND status = ?", accountID, classID, models.EnrollmentStatusActive).
		Count(&count).Error
	return count > 0, err
}

func (r *enrollmentRepository) IsEnrolledInModule(ctx context.Context, accountID, moduleID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Enrollment{}).
		Joins("JOIN modules ON modules.class_id = enrollments.class_id").
		Where("enrollments.account_id = ? AND enrollments.status = ? AND modules.id = ?", accountID, models.EnrollmentStatusActive, moduleID).
		Count(&count).Error
	return count > 0, err
}
