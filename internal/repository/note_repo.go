package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/classroom-portal/internal/models"
)

// NoteRepository persists per-account module notes.
type NoteRepository interface {
	Get(ctx context.Context, accountID, moduleID string) (models.Note, error)
	ListByAccount(ctx context.Context, accountID string) ([]models.Note, error)
	Upsert(ctx context.Context, note *models.Note) error
}

// ProgressRepository persists per-account module completion.
type ProgressRepository interface {
	ListByAccount(ctx context.Context, accountID string) ([]models.ModuleProgress, error)
	Upsert(ctx context.Context, progress *models.ModuleProgress) error
}

type noteRepository struct {
	db *gorm.DB
}

type progressRepository struct {
	db *gorm.DB
}

// NewNoteRepository constructs a GORM-backed note repository.
func NewNoteRepository(db *gorm.DB) NoteRepository {
	return &noteRepository{db: db}
}

// NewProgressRepository constructs a GORM-backed progress repository.
func NewProgressRepository(db *gorm.DB) ProgressRepository {
	return &progressRepository{db: db}
}

func (r *noteRepository) Get(ctx context.Context, accountID, moduleID string) (models.Note, error) {
	var note models.Note
	if err := r.db.WithContext(ctx).First(&note, "account_id = ? AND module_id = ?", accountID, moduleID).Error; err != nil {
		return models.Note{}, err
	}
	return note, nil
}

func (r *noteRepository) ListByAccount(ctx context.Context, accountID string) ([]models.Note, error) {
	var notes []models.Note
	if err := r.db.WithContext(ctx).Where("account_id = ?", accountID).Order("updated_at DESC").Find(&notes).Error; err != nil {
		return nil, err
	}
	return notes, nil
}

// Upsert writes the note keyed by (account, module) and reloads the stored row into note.
func (r *noteRepository) Upsert(ctx context.Context, note *models.Note) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}, {Name: "module_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"content", "updated_at"}),
		}).
		Create(note).Error
	if err != nil {
		return err
	}

	stored, err := r.Get(ctx, note.AccountID, note.ModuleID)
	if err != nil {
		return err
	}
	*note = stored
	return nil
}

func (r *progressRepository) ListByAccount(ctx context.Context, accountID string) ([]models.ModuleProgress, error) {
	var records []models.ModuleProgress
	if err := r.db.WithContext(ctx).Where("account_id = ?", accountID).Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// Upsert writes the progress keyed by (account, module) and reloads the stored row.
func (r *progressRepository) Upsert(ctx context.Context, progress *models.ModuleProgress) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}, {Name: "module_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"completed", "last_accessed", "updated_at"}),
		}).
		Create(progress).Error
	if err != nil {
		return err
	}

	var stored models.ModuleProgress
	if err := r.db.WithContext(ctx).First(&stored, "account_id = ? AND module_id = ?", progress.AccountID, progress.ModuleID).Error; err != nil {
		return err
	}
	*progress = stored
	return nil
}
