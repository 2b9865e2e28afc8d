package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/noah-isme/classroom-portal/internal/models"
)

// ClassFilter narrows class listings.
type ClassFilter struct {
	Search      string
	WithModules bool
}

// ClassRepository defines persistence operations for classes.
type ClassRepository interface {
	List(ctx context.Context, filter ClassFilter) ([]models.Class, error)
	GetByID(ctx context.Context, id string) (models.Class, error)
	Create(ctx context.Context, class *models.Class) error
	Update(ctx context.Context, class *models.Class) error
	Delete(ctx context.Context, id string) error
	Duplicate(ctx context.Context, id string, target models.Class) (models.Class, error)
}

type classRepository struct {
	db *gorm.DB
}

// NewClassRepository instantiates a GORM-backed class repository.
func NewClassRepository(db *gorm.DB) ClassRepository {
	return &classRepository{db: db}
}

func (r *classRepository) List(ctx context.Context, filter ClassFilter) ([]models.Class, error) {
	query := r.db.WithContext(ctx).Model(&models.Class{})

	if search := strings.ToLower(strings.TrimSpace(filter.Search)); search != "" {
		pattern := "%" + search + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ? OR LOWER(instructor_name) LIKE ?", pattern, pattern, pattern)
	}

	if filter.WithModules {
		query = preloadClassContent(query, "")
	}

	var classes []models.Class
	if err := query.Order("created_at DESC").Find(&classes).Error; err != nil {
		return nil, err
	}
	return classes, nil
}

func (r *classRepository) GetByID(ctx context.Context, id string) (models.Class, error) {
	var class models.Class
	if err := preloadClassContent(r.db.WithContext(ctx), "").First(&class, "id = ?", id).Error; err != nil {
		return models.Class{}, err
	}
	return class, nil
}

func (r *classRepository) Create(ctx context.Context, class *models.Class) error {
	return r.db.WithContext(ctx).Omit("Modules").Create(class).Error
}

func (r *classRepository) Update(ctx context.Context, class *models.Class) error {
	return r.db.WithContext(ctx).Omit("Modules").Save(class).Error
}

// Delete removes the class, its modules and enrollments, and detaches resources.
func (r *classRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var moduleIDs []string
		if err := tx.Model(&models.Module{}).Where("class_id = ?", id).Pluck("id", &moduleIDs).Error; err != nil {
			return err
		}

		if len(moduleIDs) > 0 {
			if err := tx.Model(&models.Resource{}).Where("module_id IN ?", moduleIDs).Update("module_id", nil).Error; err != nil {
				return err
			}
			if err := tx.Where("module_id IN ?", moduleIDs).Delete(&models.Note{}).Error; err != nil {
				return err
			}
			if err := tx.Where("module_id IN ?", moduleIDs).Delete(&models.ModuleProgress{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("class_id = ?", id).Delete(&models.Module{}).Error; err != nil {
			return err
		}
		if err := tx.Where("class_id = ?", id).Delete(&models.Enrollment{}).Error; err != nil {
			return err
		}

		result := tx.Delete(&models.Class{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// Duplicate inserts target and clones every module of the source class into it,
// keeping module order. Resources stay with the source modules.
func (r *classRepository) Duplicate(ctx context.Context, id string, target models.Class) (models.Class, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var modules []models.Module
		if err := tx.Where("class_id = ?", id).Order("sort_order ASC").Find(&modules).Error; err != nil {
			return err
		}

		target.ID = ""
		target.Modules = nil
		if err := tx.Omit("Modules").Create(&target).Error; err != nil {
			return err
		}

		for _, module := range modules {
			clone := models.Module{
				ClassID:     target.ID,
				Title:       module.Title,
				Description: module.Description,
				SlideURL:    module.SlideURL,
				Content:     module.Content,
				Order:       module.Order,
			}
			if err := tx.Omit("Resources").Create(&clone).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return models.Class{}, err
	}

	return r.GetByID(ctx, target.ID)
}

// preloadClassContent loads modules in display order with their resources.
// prefix addresses a nested class association, e.g. "Class.".
func preloadClassContent(query *gorm.DB, prefix string) *gorm.DB {
	return query.
		Preload(prefix+"Modules", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order ASC")
		}).
		Preload(prefix+"Modules.Resources", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		})
}
