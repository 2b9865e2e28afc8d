package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/classroom-portal/internal/dto"
	"github.com/noah-isme/classroom-portal/internal/models"
	"github.com/noah-isme/classroom-portal/internal/repository"
)

var (
	// ErrUploadTooLarge indicates the payload exceeded the configured limit.
	ErrUploadTooLarge = errors.New("file exceeds maximum allowed size")
	// ErrUploadTypeNotAllowed indicates the detected file type maps to no resource kind.
	ErrUploadTypeNotAllowed = errors.New("file type not allowed")
	// ErrUploadUnavailable indicates no file storage is configured.
	ErrUploadUnavailable = errors.New("file uploads are not configured")
	// ErrResourceURLRequired indicates a link resource was created without a URL.
	ErrResourceURLRequired = errors.New("url is required for link resources")
)

// FileStorage abstracts upload destinations.
type FileStorage interface {
	Upload(ctx context.Context, name string, reader io.Reader) (string, error)
}

// ResourceService manages module resources.
type ResourceService interface {
	List(ctx context.Context, filter repository.ResourceFilter) ([]dto.ResourceResponse, error)
	Create(ctx context.Context, req dto.ResourceCreateRequest) (dto.ResourceResponse, error)
	Upload(ctx context.Context, file *multipart.FileHeader, req dto.ResourceCreateRequest) (dto.ResourceResponse, error)
	Update(ctx context.Context, id string, req dto.ResourceUpdateRequest) (dto.ResourceResponse, error)
	Delete(ctx context.Context, id string) error
}

type resourceService struct {
	repo        repository.ResourceRepository
	modules     repository.ModuleRepository
	storage     FileStorage
	invalidator ContentInvalidator
	validator   *validator.Validate
	logger      zerolog.Logger
	maxSize     int64
	tracer      trace.Tracer
}

// NewResourceService constructs the resource service; storage and invalidator may be nil.
func NewResourceService(repo repository.ResourceRepository, modules repository.ModuleRepository, storage FileStorage, invalidator ContentInvalidator, maxSize int64, validate *validator.Validate, logger zerolog.Logger) ResourceService {
	if maxSize <= 0 {
		maxSize = 25 * 1024 * 1024
	}
	return &resourceService{
		repo:        repo,
		modules:     modules,
		storage:     storage,
		invalidator: invalidator,
		validator:   validate,
		logger:      logger.With().Str("component", "resource_service").Logger(),
		maxSize:     maxSize,
		tracer:      otel.Tracer("github.com/noah-isme/classroom-portal/internal/service/resource"),
	}
}

func (s *resourceService) List(ctx context.Context, filter repository.ResourceFilter) ([]dto.ResourceResponse, error) {
	resources, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return dto.NewResourceResponseSlice(resources), nil
}

func (s *resourceService) Create(ctx context.Context, req dto.ResourceCreateRequest) (dto.ResourceResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.ResourceResponse{}, err
	}
	if strings.TrimSpace(req.URL) == "" {
		return dto.ResourceResponse{}, ErrResourceURLRequired
	}
	return s.persist(ctx, req, models.NormalizeResourceKind(req.Kind), strings.TrimSpace(req.URL))
}

// Upload stores the file and records a resource whose kind is derived from the sniffed content type.
func (s *resourceService) Upload(ctx context.Context, file *multipart.FileHeader, req dto.ResourceCreateRequest) (dto.ResourceResponse, error) {
	ctx, span := s.tracer.Start(ctx, "resources.upload")
	defer span.End()

	if s.storage == nil {
		return dto.ResourceResponse{}, ErrUploadUnavailable
	}
	if file == nil {
		return dto.ResourceResponse{}, errors.New("file is required")
	}
	if strings.TrimSpace(req.Title) == "" {
		req.Title = strings.TrimSuffix(file.Filename, filepath.Ext(file.Filename))
	}
	if err := s.validator.Struct(req); err != nil {
		return dto.ResourceResponse{}, err
	}
	span.SetAttributes(
		attribute.String("upload.original_name", strings.TrimSpace(file.Filename)),
		attribute.Int64("upload.request_size", file.Size),
	)

	if file.Size > s.maxSize {
		span.SetStatus(codes.Error, "payload too large")
		return dto.ResourceResponse{}, ErrUploadTooLarge
	}

	handle, err := file.Open()
	if err != nil {
		span.RecordError(err)
		return dto.ResourceResponse{}, err
	}
	defer handle.Close()

	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, io.LimitReader(handle, s.maxSize+1)); err != nil {
		span.RecordError(err)
		return dto.ResourceResponse{}, err
	}
	if int64(buf.Len()) > s.maxSize {
		span.SetStatus(codes.Error, "payload too large")
		return dto.ResourceResponse{}, ErrUploadTooLarge
	}

	detected := mimetype.Detect(buf.Bytes())
	kind, ok := kindForMIME(detected)
	span.SetAttributes(attribute.String("upload.detected_mime", detected.String()))
	if !ok {
		span.SetStatus(codes.Error, "type not allowed")
		return dto.ResourceResponse{}, ErrUploadTypeNotAllowed
	}

	url, err := s.storage.Upload(ctx, uploadName(file.Filename, detected.Extension()), bytes.NewReader(buf.Bytes()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "storage failed")
		return dto.ResourceResponse{}, err
	}

	span.SetStatus(codes.Ok, "stored")
	return s.persist(ctx, req, kind, url)
}

func (s *resourceService) Update(ctx context.Context, id string, req dto.ResourceUpdateRequest) (dto.ResourceResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.ResourceResponse{}, err
	}

	resource, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ResourceResponse{}, ErrResourceNotFound
		}
		return dto.ResourceResponse{}, err
	}

	if req.Title != nil {
		resource.Title = strings.TrimSpace(*req.Title)
	}
	if req.Kind != nil {
		resource.Kind = models.NormalizeResourceKind(*req.Kind)
	}
	if req.URL != nil {
		resource.URL = strings.TrimSpace(*req.URL)
	}
	if req.Description != nil {
		resource.Description = strings.TrimSpace(*req.Description)
	}

	if err := s.repo.Update(ctx, &resource); err != nil {
		return dto.ResourceResponse{}, err
	}
	s.invalidate(ctx)
	return dto.NewResourceResponse(resource), nil
}

func (s *resourceService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrResourceNotFound
		}
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *resourceService) persist(ctx context.Context, req dto.ResourceCreateRequest, kind, url string) (dto.ResourceResponse, error) {
	resource := models.Resource{
		Title:       strings.TrimSpace(req.Title),
		Kind:        kind,
		URL:         url,
		Description: strings.TrimSpace(req.Description),
	}

	if req.ModuleID != nil && strings.TrimSpace(*req.ModuleID) != "" {
		moduleID := strings.TrimSpace(*req.ModuleID)
		if _, err := s.modules.GetByID(ctx, moduleID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return dto.ResourceResponse{}, ErrModuleNotFound
			}
			return dto.ResourceResponse{}, err
		}
		resource.ModuleID = &moduleID
	}

	if err := s.repo.Create(ctx, &resource); err != nil {
		return dto.ResourceResponse{}, err
	}
	if resource.ModuleID != nil {
		s.invalidate(ctx)
	}

	s.logger.Info().Str("resource_id", resource.ID).Str("kind", resource.Kind).Msg("resource created")
	return dto.NewResourceResponse(resource), nil
}

func (s *resourceService) invalidate(ctx context.Context) {
	if s.invalidator != nil {
		s.invalidator.InvalidateAll(ctx)
	}
}

func kindForMIME(detected *mimetype.MIME) (string, bool) {
	for mime := detected; mime != nil; mime = mime.Parent() {
		value := mime.String()
		switch {
		case mime.Is("application/pdf"):
			return models.ResourceKindPDF, true
		case mime.Is("application/msword"),
			mime.Is("application/vnd.openxmlformats-officedocument.wordprocessingml.document"),
			mime.Is("application/vnd.oasis.opendocument.text"):
			return models.ResourceKindWord, true
		case mime.Is("application/vnd.ms-excel"),
			mime.Is("application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"),
			mime.Is("application/vnd.oasis.opendocument.spreadsheet"),
			mime.Is("text/csv"):
			return models.ResourceKindExcel, true
		case strings.HasPrefix(value, "video/"):
			return models.ResourceKindVideo, true
		}
	}
	return "", false
}

func uploadName(original, extension string) string {
	base := strings.TrimSuffix(filepath.Base(original), filepath.Ext(original))
	base = strings.ToLower(strings.TrimSpace(base))
	if base == "" || base == "." {
		base = fmt.Sprintf("resource-%d", time.Now().Unix())
	}
	return base + extension
}
