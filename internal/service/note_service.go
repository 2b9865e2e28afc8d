package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/classroom-portal/internal/dto"
	"github.com/noah-isme/classroom-portal/internal/models"
	"github.com/noah-isme/classroom-portal/internal/observability"
	"github.com/noah-isme/classroom-portal/internal/repository"
)

var (
	// ErrNoteNotFound indicates the caller has no note for the module.
	ErrNoteNotFound = errors.New("note not found")
	// ErrNoteTooLarge indicates the note content exceeds the configured limit.
	ErrNoteTooLarge = errors.New("note exceeds maximum allowed size")
)

// NoteService stores per-account notes. Content is kept verbatim; only its size is checked.
type NoteService interface {
	List(ctx context.Context, accountID string) ([]dto.NoteResponse, error)
	Get(ctx context.Context, accountID, moduleID string) (dto.NoteResponse, error)
	Save(ctx context.Context, accountID, moduleID string, req dto.NoteUpsertRequest) (dto.NoteResponse, error)
}

// ProgressService records per-account module completion.
type ProgressService interface {
	List(ctx context.Context, accountID string) ([]dto.ProgressResponse, error)
	Set(ctx context.Context, accountID, moduleID string, req dto.ProgressUpsertRequest) (dto.ProgressResponse, error)
}

type noteService struct {
	notes       repository.NoteRepository
	enrollments repository.EnrollmentRepository
	maxBytes    int
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

type progressService struct {
	progress    repository.ProgressRepository
	enrollments repository.EnrollmentRepository
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewNoteService constructs the note service.
func NewNoteService(notes repository.NoteRepository, enrollments repository.EnrollmentRepository, maxBytes int, logger zerolog.Logger) NoteService {
	if maxBytes <= 0 {
		maxBytes = 256 * 1024
	}
	return &noteService{
		notes:       notes,
		enrollments: enrollments,
		maxBytes:    maxBytes,
		logger:      logger.With().Str("component", "note_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/classroom-portal/internal/service/note"),
		now:         time.Now,
	}
}

// NewProgressService constructs the progress service.
func NewProgressService(progress repository.ProgressRepository, enrollments repository.EnrollmentRepository, logger zerolog.Logger) ProgressService {
	return &progressService{
		progress:    progress,
		enrollments: enrollments,
		logger:      logger.With().Str("component", "progress_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/classroom-portal/internal/service/progress"),
		now:         time.Now,
	}
}

func (s *noteService) List(ctx context.Context, accountID string) ([]dto.NoteResponse, error) {
	notes, err := s.notes.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return dto.NewNoteResponseSlice(notes), nil
}

func (s *noteService) Get(ctx context.Context, accountID, moduleID string) (dto.NoteResponse, error) {
	note, err := s.notes.Get(ctx, accountID, moduleID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.NoteResponse{}, ErrNoteNotFound
		}
		return dto.NoteResponse{}, err
	}
	return dto.NewNoteResponse(note), nil
}

// Save upserts the note for (account, module). Only modules of enrolled classes accept notes.
func (s *noteService) Save(ctx context.Context, accountID, moduleID string, req dto.NoteUpsertRequest) (dto.NoteResponse, error) {
	ctx, span := s.tracer.Start(ctx, "notes.save", trace.WithAttributes(
		attribute.String("notes.account_id", accountID),
		attribute.String("notes.module_id", moduleID),
		attribute.Int("notes.size_bytes", len(req.Content)),
	))
	defer span.End()

	if len(req.Content) > s.maxBytes {
		return dto.NoteResponse{}, ErrNoteTooLarge
	}
	if err := ensureModuleAccess(ctx, s.enrollments, accountID, moduleID); err != nil {
		return dto.NoteResponse{}, err
	}

	note := models.Note{
		AccountID: accountID,
		ModuleID:  moduleID,
		Content:   req.Content,
		UpdatedAt: s.now().UTC(),
	}
	if err := s.notes.Upsert(ctx, &note); err != nil {
		span.RecordError(err)
		return dto.NoteResponse{}, err
	}

	observability.NotesSaved().Inc()
	return dto.NewNoteResponse(note), nil
}

func (s *progressService) List(ctx context.Context, accountID string) ([]dto.ProgressResponse, error) {
	records, err := s.progress.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return dto.NewProgressResponseSlice(records), nil
}

func (s *progressService) Set(ctx context.Context, accountID, moduleID string, req dto.ProgressUpsertRequest) (dto.ProgressResponse, error) {
	ctx, span := s.tracer.Start(ctx, "progress.set", trace.WithAttributes(
		attribute.String("progress.account_id", accountID),
		attribute.String("progress.module_id", moduleID),
		attribute.Bool("progress.completed", req.Completed),
	))
	defer span.End()

	if err := ensureModuleAccess(ctx, s.enrollments, accountID, moduleID); err != nil {
		return dto.ProgressResponse{}, err
	}

	now := s.now().UTC()
	record := models.ModuleProgress{
		AccountID:    accountID,
		ModuleID:     moduleID,
		Completed:    req.Completed,
		LastAccessed: now,
		UpdatedAt:    now,
	}
	if err := s.progress.Upsert(ctx, &record); err != nil {
		span.RecordError(err)
		return dto.ProgressResponse{}, err
	}

	observability.ProgressUpdates().WithLabelValues(strconv.FormatBool(req.Completed)).Inc()
	return dto.NewProgressResponse(record), nil
}

func ensureModuleAccess(ctx context.Context, enrollments repository.EnrollmentRepository, accountID, moduleID string) error {
	enrolled, err := enrollments.IsEnrolledInModule(ctx, accountID, moduleID)
	if err != nil {
		return err
	}
	if !enrolled {
		return ErrModuleNotFound
	}
	return nil
}
