package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/noah-isme/classroom-portal/internal/models"
)

// ErrModuleSetMismatch indicates a reorder request did not list exactly the class's modules.
var ErrModuleSetMismatch = errors.New("module ids do not match the class modules")

// ModuleRepository defines persistence operations for modules and their attachments.
type ModuleRepository interface {
	ListByClass(ctx context.Context, classID string) ([]models.Module, error)
	GetByID(ctx context.Context, id string) (models.Module, error)
	Create(ctx context.Context, module *models.Module) error
	Update(ctx context.Context, module *models.Module) error
	Delete(ctx context.Context, id string) error
	Swap(ctx context.Context, firstID, secondID string) error
	Reorder(ctx context.Context, classID string, orderedIDs []string) error
	AssignResources(ctx context.Context, moduleID string, resourceIDs []string) error
}

type moduleRepository struct {
	db *gorm.DB
}

// NewModuleRepository instantiates a GORM-backed module repository.
func NewModuleRepository(db *gorm.DB) ModuleRepository {
	return &moduleRepository{db: db}
}

func (r *moduleRepository) ListByClass(ctx context.Context, classID string) ([]models.Module, error) {
	var modules []models.Module
	err := r.db.WithContext(ctx).
		Preload("Resources", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Where("class_id = ?", classID).
		Order("sort_order ASC").
		Find(&modules).Error
	if err != nil {
		return nil, err
	}
	return modules, nil
}

func (r *moduleRepository) GetByID(ctx context.Context, id string) (models.Module, error) {
	var module models.Module
	err := r.db.WithContext(ctx).
		Preload("Resources", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		First(&module, "id = ?", id).Error
	if err != nil {
		return models.Module{}, err
	}
	return module, nil
}

// Create appends the module at the end of its class sequence.
func (r *moduleRepository) Create(ctx context.Context, module *models.Module) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxOrder int
		if err := tx.Model(&models.Module{}).
			Where("class_id = ?", module.ClassID).
			Select("COALESCE(MAX(sort_order), 0)").
			Scan(&maxOrder).Error; err != nil {
			return err
		}

		module.Order = maxOrder + 1
		return tx.Omit("Resources").Create(module).Error
	})
}

func (r *moduleRepository) Update(ctx context.Context, module *models.Module) error {
	return r.db.WithContext(ctx).Model(module).Select("title", "description", "slide_url", "content").Updates(map[string]interface{}{
		"title":       module.Title,
		"description": module.Description,
		"slide_url":   module.SlideURL,
		"content":     module.Content,
	}).Error
}

// Delete removes the module, detaching its resources and dropping per-user records.
func (r *moduleRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Resource{}).Where("module_id = ?", id).Update("module_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Where("module_id = ?", id).Delete(&models.Note{}).Error; err != nil {
			return err
		}
		if err := tx.Where("module_id = ?", id).Delete(&models.ModuleProgress{}).Error; err != nil {
			return err
		}

		result := tx.Delete(&models.Module{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// Swap exchanges the order values of two modules of the same class. A temporary
// negative slot keeps the (class_id, sort_order) index satisfied throughout.
func (r *moduleRepository) Swap(ctx context.Context, firstID, secondID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var first, second models.Module
		if err := tx.First(&first, "id = ?", firstID).Error; err != nil {
			return err
		}
		if err := tx.First(&second, "id = ?", secondID).Error; err != nil {
			return err
		}
		if first.ClassID != second.ClassID {
			return ErrModuleSetMismatch
		}

		steps := []struct {
			id    string
			order int
		}{
			{first.ID, -first.Order - 1},
			{second.ID, first.Order},
			{first.ID, second.Order},
		}
		for _, step := range steps {
			if err := setModuleOrder(tx, step.id, step.order); err != nil {
				return err
			}
		}
		return nil
	})
}

// Reorder renumbers the class modules 1..n following orderedIDs.
func (r *moduleRepository) Reorder(ctx context.Context, classID string, orderedIDs []string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []string
		if err := tx.Model(&models.Module{}).Where("class_id = ?", classID).Pluck("id", &existing).Error; err != nil {
			return err
		}
		if !sameIDSet(existing, orderedIDs) {
			return ErrModuleSetMismatch
		}

		for idx, id := range orderedIDs {
			if err := setModuleOrder(tx, id, -(idx + 1)); err != nil {
				return err
			}
		}
		for idx, id := range orderedIDs {
			if err := setModuleOrder(tx, id, idx+1); err != nil {
				return err
			}
		}
		return nil
	})
}

// AssignResources makes resourceIDs the exact attachment set of the module.
// Resources previously attached elsewhere move to this module.
func (r *moduleRepository) AssignResources(ctx context.Context, moduleID string, resourceIDs []string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var module models.Module
		if err := tx.Select("id").First(&module, "id = ?", moduleID).Error; err != nil {
			return err
		}

		if err := tx.Model(&models.Resource{}).Where("module_id = ?", moduleID).Update("module_id", nil).Error; err != nil {
			return err
		}
		if len(resourceIDs) == 0 {
			return nil
		}

		result := tx.Model(&models.Resource{}).Where("id IN ?", resourceIDs).Update("module_id", moduleID)
		if result.Error != nil {
			return result.Error
		}
		if int(result.RowsAffected) != len(uniqueIDs(resourceIDs)) {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func setModuleOrder(tx *gorm.DB, id string, order int) error {
	return tx.Model(&models.Module{}).Where("id = ?", id).Update("sort_order", order).Error
}

func sameIDSet(existing, requested []string) bool {
	if len(existing) != len(requested) {
		return false
	}
	seen := make(map[string]struct{}, len(existing))
	for _, id := range existing {
		seen[id] = struct{}{}
	}
	for _, id := range requested {
		if _, ok := seen[id]; !ok {
			return false
		}
		delete(seen, id)
	}
	return len(seen) == 0
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	result := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result
}
