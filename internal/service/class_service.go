package service

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/classroom-portal/internal/dto"
	"github.com/noah-isme/classroom-portal/internal/models"
	"github.com/noah-isme/classroom-portal/internal/repository"
)

// ErrClassNotFound indicates the class does not exist or is not visible to the caller.
var ErrClassNotFound = errors.New("class not found")

const duplicateTitleSuffix = " (Copy)"

// ClassService manages classes for administrators and exposes the public catalog.
type ClassService interface {
	Catalog(ctx context.Context, search string) ([]dto.ClassResponse, error)
	List(ctx context.Context, search string) ([]dto.ClassResponse, error)
	Get(ctx context.Context, id string) (dto.ClassResponse, error)
	Create(ctx context.Context, req dto.ClassCreateRequest) (dto.ClassResponse, error)
	Update(ctx context.Context, id string, req dto.ClassUpdateRequest) (dto.ClassResponse, error)
	Delete(ctx context.Context, id string) error
	Duplicate(ctx context.Context, id string) (dto.ClassResponse, error)
}

type classService struct {
	repo        repository.ClassRepository
	invalidator ContentInvalidator
	validator   *validator.Validate
	logger      zerolog.Logger
}

// NewClassService constructs the class service; invalidator may be nil.
func NewClassService(repo repository.ClassRepository, invalidator ContentInvalidator, validate *validator.Validate, logger zerolog.Logger) ClassService {
	return &classService{
		repo:        repo,
		invalidator: invalidator,
		validator:   validate,
		logger:      logger.With().Str("component", "class_service").Logger(),
	}
}

func (s *classService) Catalog(ctx context.Context, search string) ([]dto.ClassResponse, error) {
	classes, err := s.repo.List(ctx, repository.ClassFilter{Search: search})
	if err != nil {
		return nil, err
	}
	responses := dto.NewClassResponseSlice(classes)
	for idx := range responses {
		responses[idx].Modules = []dto.ModuleResponse{}
	}
	return responses, nil
}

func (s *classService) List(ctx context.Context, search string) ([]dto.ClassResponse, error) {
	classes, err := s.repo.List(ctx, repository.ClassFilter{Search: search, WithModules: true})
	if err != nil {
		return nil, err
	}
	return dto.NewClassResponseSlice(classes), nil
}

func (s *classService) Get(ctx context.Context, id string) (dto.ClassResponse, error) {
	class, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ClassResponse{}, ErrClassNotFound
		}
		return dto.ClassResponse{}, err
	}
	return dto.NewClassResponse(class), nil
}

func (s *classService) Create(ctx context.Context, req dto.ClassCreateRequest) (dto.ClassResponse, error) {
	req.Title = strings.TrimSpace(req.Title)
	if err := s.validator.Struct(req); err != nil {
		return dto.ClassResponse{}, err
	}

	class := models.Class{
		Title:           req.Title,
		Description:     strings.TrimSpace(req.Description),
		InstructorName:  strings.TrimSpace(req.InstructorName),
		InstructorImage: strings.TrimSpace(req.InstructorImage),
		InstructorBio:   strings.TrimSpace(req.InstructorBio),
		ThumbnailURL:    strings.TrimSpace(req.ThumbnailURL),
		ScheduleData:    datatypes.NewJSONType(req.Schedule.ToSchedule()),
	}
	if err := s.repo.Create(ctx, &class); err != nil {
		return dto.ClassResponse{}, err
	}

	s.logger.Info().Str("class_id", class.ID).Msg("class created")
	return dto.NewClassResponse(class), nil
}

func (s *classService) Update(ctx context.Context, id string, req dto.ClassUpdateRequest) (dto.ClassResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.ClassResponse{}, err
	}

	class, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ClassResponse{}, ErrClassNotFound
		}
		return dto.ClassResponse{}, err
	}

	if req.Title != nil {
		class.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		class.Description = strings.TrimSpace(*req.Description)
	}
	if req.InstructorName != nil {
		class.InstructorName = strings.TrimSpace(*req.InstructorName)
	}
	if req.InstructorImage != nil {
		class.InstructorImage = strings.TrimSpace(*req.InstructorImage)
	}
	if req.InstructorBio != nil {
		class.InstructorBio = strings.TrimSpace(*req.InstructorBio)
	}
	if req.ThumbnailURL != nil {
		class.ThumbnailURL = strings.TrimSpace(*req.ThumbnailURL)
	}
	if req.Schedule != nil {
		class.ScheduleData = datatypes.NewJSONType(req.Schedule.ToSchedule())
	}

	if err := s.repo.Update(ctx, &class); err != nil {
		return dto.ClassResponse{}, err
	}
	s.invalidate(ctx)
	return dto.NewClassResponse(class), nil
}

func (s *classService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrClassNotFound
		}
		return err
	}

	s.invalidate(ctx)
	s.logger.Info().Str("class_id", id).Msg("class deleted")
	return nil
}

// Duplicate copies the class and its modules. The copy gets a suffixed title and no schedule.
func (s *classService) Duplicate(ctx context.Context, id string) (dto.ClassResponse, error) {
	source, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ClassResponse{}, ErrClassNotFound
		}
		return dto.ClassResponse{}, err
	}

	target := models.Class{
		Title:           source.Title + duplicateTitleSuffix,
		Description:     source.Description,
		InstructorName:  source.InstructorName,
		InstructorImage: source.InstructorImage,
		InstructorBio:   source.InstructorBio,
		ThumbnailURL:    source.ThumbnailURL,
		ScheduleData:    datatypes.NewJSONType(models.Schedule{}),
	}

	duplicate, err := s.repo.Duplicate(ctx, source.ID, target)
	if err != nil {
		return dto.ClassResponse{}, err
	}

	s.logger.Info().Str("class_id", source.ID).Str("duplicate_id", duplicate.ID).Msg("class duplicated")
	return dto.NewClassResponse(duplicate), nil
}

func (s *classService) invalidate(ctx context.Context) {
	if s.invalidator != nil {
		s.invalidator.InvalidateAll(ctx)
	}
}
