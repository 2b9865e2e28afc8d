package service

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/classroom-portal/internal/dto"
	"github.com/noah-isme/classroom-portal/internal/models"
	"github.com/noah-isme/classroom-portal/internal/repository"
)

var (
	// ErrModuleNotFound indicates the module does not exist.
	ErrModuleNotFound = errors.New("module not found")
	// ErrModuleAtBoundary indicates a move past the first or last position.
	ErrModuleAtBoundary = errors.New("module cannot move further in that direction")
	// ErrModuleOrderMismatch indicates a reorder did not list every module of the class exactly once.
	ErrModuleOrderMismatch = errors.New("module ids must list every module of the class exactly once")
	// ErrResourceNotFound indicates a resource does not exist.
	ErrResourceNotFound = errors.New("resource not found")
)

// ModuleService manages the ordered modules of a class.
type ModuleService interface {
	ListByClass(ctx context.Context, classID string) ([]dto.ModuleResponse, error)
	Get(ctx context.Context, id string) (dto.ModuleResponse, error)
	Create(ctx context.Context, classID string, req dto.ModuleCreateRequest) (dto.ModuleResponse, error)
	Update(ctx context.Context, id string, req dto.ModuleUpdateRequest) (dto.ModuleResponse, error)
	Delete(ctx context.Context, id string) error
	Move(ctx context.Context, id string, req dto.ModuleMoveRequest) ([]dto.ModuleResponse, error)
	Reorder(ctx context.Context, classID string, req dto.ModuleReorderRequest) ([]dto.ModuleResponse, error)
	AssignResources(ctx context.Context, id string, req dto.ModuleResourcesRequest) (dto.ModuleResponse, error)
}

type moduleService struct {
	modules     repository.ModuleRepository
	classes     repository.ClassRepository
	invalidator ContentInvalidator
	validator   *validator.Validate
	logger      zerolog.Logger
}

// NewModuleService constructs the module service; invalidator may be nil.
func NewModuleService(modules repository.ModuleRepository, classes repository.ClassRepository, invalidator ContentInvalidator, validate *validator.Validate, logger zerolog.Logger) ModuleService {
	return &moduleService{
		modules:     modules,
		classes:     classes,
		invalidator: invalidator,
		validator:   validate,
		logger:      logger.With().Str("component", "module_service").Logger(),
	}
}

func (s *moduleService) ListByClass(ctx context.Context, classID string) ([]dto.ModuleResponse, error) {
	if err := s.ensureClass(ctx, classID); err != nil {
		return nil, err
	}
	modules, err := s.modules.ListByClass(ctx, classID)
	if err != nil {
		return nil, err
	}
	return dto.NewModuleResponseSlice(modules), nil
}

func (s *moduleService) Get(ctx context.Context, id string) (dto.ModuleResponse, error) {
	module, err := s.load(ctx, id)
	if err != nil {
		return dto.ModuleResponse{}, err
	}
	return dto.NewModuleResponse(module), nil
}

func (s *moduleService) Create(ctx context.Context, classID string, req dto.ModuleCreateRequest) (dto.ModuleResponse, error) {
	req.Title = strings.TrimSpace(req.Title)
	if err := s.validator.Struct(req); err != nil {
		return dto.ModuleResponse{}, err
	}
	if err := s.ensureClass(ctx, classID); err != nil {
		return dto.ModuleResponse{}, err
	}

	module := models.Module{
		ClassID:     classID,
		Title:       req.Title,
		Description: strings.TrimSpace(req.Description),
		SlideURL:    strings.TrimSpace(req.SlideURL),
		Content:     req.Content,
	}
	if err := s.modules.Create(ctx, &module); err != nil {
		return dto.ModuleResponse{}, err
	}

	s.invalidate(ctx)
	return dto.NewModuleResponse(module), nil
}

func (s *moduleService) Update(ctx context.Context, id string, req dto.ModuleUpdateRequest) (dto.ModuleResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.ModuleResponse{}, err
	}

	module, err := s.load(ctx, id)
	if err != nil {
		return dto.ModuleResponse{}, err
	}
	if req.Title != nil {
		module.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		module.Description = strings.TrimSpace(*req.Description)
	}
	if req.SlideURL != nil {
		module.SlideURL = strings.TrimSpace(*req.SlideURL)
	}
	if req.Content != nil {
		module.Content = *req.Content
	}

	if err := s.modules.Update(ctx, &module); err != nil {
		return dto.ModuleResponse{}, err
	}

	s.invalidate(ctx)
	return dto.NewModuleResponse(module), nil
}

func (s *moduleService) Delete(ctx context.Context, id string) error {
	if err := s.modules.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrModuleNotFound
		}
		return err
	}
	s.invalidate(ctx)
	return nil
}

// Move swaps the module with its neighbour and returns the class modules in their new order.
func (s *moduleService) Move(ctx context.Context, id string, req dto.ModuleMoveRequest) ([]dto.ModuleResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}

	module, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	siblings, err := s.modules.ListByClass(ctx, module.ClassID)
	if err != nil {
		return nil, err
	}

	position := -1
	for idx, sibling := range siblings {
		if sibling.ID == module.ID {
			position = idx
			break
		}
	}

	neighbour := position - 1
	if req.Direction == "down" {
		neighbour = position + 1
	}
	if position < 0 || neighbour < 0 || neighbour >= len(siblings) {
		return nil, ErrModuleAtBoundary
	}

	if err := s.modules.Swap(ctx, module.ID, siblings[neighbour].ID); err != nil {
		return nil, err
	}

	s.invalidate(ctx)
	return s.ListByClass(ctx, module.ClassID)
}

func (s *moduleService) Reorder(ctx context.Context, classID string, req dto.ModuleReorderRequest) ([]dto.ModuleResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	if err := s.ensureClass(ctx, classID); err != nil {
		return nil, err
	}

	if err := s.modules.Reorder(ctx, classID, req.ModuleIDs); err != nil {
		if errors.Is(err, repository.ErrModuleSetMismatch) {
			return nil, ErrModuleOrderMismatch
		}
		return nil, err
	}

	s.invalidate(ctx)
	return s.ListByClass(ctx, classID)
}

// AssignResources makes the listed resources the module's exact attachment set.
func (s *moduleService) AssignResources(ctx context.Context, id string, req dto.ModuleResourcesRequest) (dto.ModuleResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.ModuleResponse{}, err
	}
	if _, err := s.load(ctx, id); err != nil {
		return dto.ModuleResponse{}, err
	}

	if err := s.modules.AssignResources(ctx, id, req.ResourceIDs); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ModuleResponse{}, ErrResourceNotFound
		}
		return dto.ModuleResponse{}, err
	}

	s.invalidate(ctx)
	return s.Get(ctx, id)
}

func (s *moduleService) load(ctx context.Context, id string) (models.Module, error) {
	module, err := s.modules.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Module{}, ErrModuleNotFound
		}
		return models.Module{}, err
	}
	return module, nil
}

func (s *moduleService) ensureClass(ctx context.Context, classID string) error {
	if _, err := s.classes.GetByID(ctx, classID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrClassNotFound
		}
		return err
	}
	return nil
}

func (s *moduleService) invalidate(ctx context.Context) {
	if s.invalidator != nil {
		s.invalidator.InvalidateAll(ctx)
	}
}
