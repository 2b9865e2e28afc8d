package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
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

const enrollmentVersionKey = "enrollments:version"

var errStaleListing = errors.New("enrollment listing changed while loading")

// ContentInvalidator drops cached class content after administrative changes.
type ContentInvalidator interface {
	InvalidateAll(ctx context.Context)
}

// EnrollmentService serves the caller's enrolled classes.
type EnrollmentService interface {
	ListActive(ctx context.Context, accountID string) ([]dto.EnrollmentResponse, error)
	Enroll(ctx context.Context, accountID string, req dto.EnrollRequest) (dto.EnrollmentResponse, error)
	GetClass(ctx context.Context, accountID, classID string) (dto.ClassResponse, error)
	ContentInvalidator
}

type enrollmentService struct {
	enrollments repository.EnrollmentRepository
	classes     repository.ClassRepository
	cache       *redis.Client
	cacheTTL    time.Duration
	validator   *validator.Validate
	logger      zerolog.Logger
	tracer      trace.Tracer
}

// cacheVersion pairs the global content version with the account's own.
// A listing is cached under the versions read before it was loaded.
type cacheVersion struct {
	Global  int64 `json:"global"`
	Account int64 `json:"account"`
}

type cachedEnrollments struct {
	Version cacheVersion             `json:"version"`
	Items   []dto.EnrollmentResponse `json:"items"`
}

type versionReader interface {
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
}

// NewEnrollmentService constructs the enrollment service; cache may be nil.
func NewEnrollmentService(enrollments repository.EnrollmentRepository, classes repository.ClassRepository, cache *redis.Client, ttl time.Duration, validate *validator.Validate, logger zerolog.Logger) EnrollmentService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &enrollmentService{
		enrollments: enrollments,
		classes:     classes,
		cache:       cache,
		cacheTTL:    ttl,
		validator:   validate,
		logger:      logger.With().Str("component", "enrollment_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/classroom-portal/internal/service/enrollment"),
	}
}

func (s *enrollmentService) ListActive(ctx context.Context, accountID string) ([]dto.EnrollmentResponse, error) {
	ctx, span := s.tracer.Start(ctx, "enrollments.list", trace.WithAttributes(attribute.String("enrollments.account_id", accountID)))
	defer span.End()

	cacheKey := enrollmentCacheKey(accountID)
	version, versionErr := s.readVersions(ctx, s.cache, accountID)
	if versionErr != nil {
		s.logger.Warn().Err(versionErr).Msg("failed to read enrollment cache version")
	}

	if s.cache != nil && versionErr == nil {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			var payload cachedEnrollments
			if unmarshalErr := json.Unmarshal([]byte(cached), &payload); unmarshalErr == nil && payload.Version == version {
				observability.EnrollmentCache().WithLabelValues("hit").Inc()
				return payload.Items, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("failed to read enrollment cache")
		}
		observability.EnrollmentCache().WithLabelValues("miss").Inc()
	}

	enrollments, err := s.enrollments.ListActive(ctx, accountID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	items := dto.NewEnrollmentResponseSlice(enrollments)

	if s.cache != nil && versionErr == nil {
		s.store(ctx, accountID, version, items)
	}
	return items, nil
}

// store caches items unless an enrollment or content change bumped a version
// after they were read.
func (s *enrollmentService) store(ctx context.Context, accountID string, seen cacheVersion, items []dto.EnrollmentResponse) {
	payload, err := json.Marshal(cachedEnrollments{Version: seen, Items: items})
	if err != nil {
		return
	}

	err = s.cache.Watch(ctx, func(tx *redis.Tx) error {
		current, err := s.readVersions(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if current != seen {
			return errStaleListing
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, enrollmentCacheKey(accountID), payload, s.cacheTTL)
			return nil
		})
		return err
	}, enrollmentVersionKey, enrollmentAccountVersionKey(accountID))

	switch {
	case errors.Is(err, errStaleListing), errors.Is(err, redis.TxFailedErr):
		s.logger.Debug().Str("account_id", accountID).Msg("skipped caching a stale enrollment listing")
	case err != nil:
		s.logger.Warn().Err(err).Msg("failed to store enrollment cache")
	}
}

// Enroll is idempotent: enrolling twice re-activates and returns the same enrollment.
func (s *enrollmentService) Enroll(ctx context.Context, accountID string, req dto.EnrollRequest) (dto.EnrollmentResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.EnrollmentResponse{}, err
	}

	ctx, span := s.tracer.Start(ctx, "enrollments.enroll", trace.WithAttributes(
		attribute.String("enrollments.account_id", accountID),
		attribute.String("enrollments.class_id", req.ClassID),
	))
	defer span.End()

	if _, err := s.classes.GetByID(ctx, req.ClassID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.EnrollmentResponse{}, ErrClassNotFound
		}
		return dto.EnrollmentResponse{}, err
	}

	enrollment := models.Enrollment{
		AccountID: accountID,
		ClassID:   req.ClassID,
		Status:    models.EnrollmentStatusActive,
	}
	if err := s.enrollments.Upsert(ctx, &enrollment); err != nil {
		span.RecordError(err)
		return dto.EnrollmentResponse{}, err
	}

	stored, err := s.enrollments.Get(ctx, accountID, req.ClassID)
	if err != nil {
		return dto.EnrollmentResponse{}, err
	}

	s.invalidateAccount(ctx, accountID)
	observability.Enrollments().Inc()
	return dto.NewEnrollmentResponse(stored), nil
}

// GetClass returns the class only when the caller is actively enrolled; otherwise it reports not found.
func (s *enrollmentService) GetClass(ctx context.Context, accountID, classID string) (dto.ClassResponse, error) {
	enrolled, err := s.enrollments.IsEnrolledInClass(ctx, accountID, classID)
	if err != nil {
		return dto.ClassResponse{}, err
	}
	if !enrolled {
		return dto.ClassResponse{}, ErrClassNotFound
	}

	class, err := s.classes.GetByID(ctx, classID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ClassResponse{}, ErrClassNotFound
		}
		return dto.ClassResponse{}, err
	}
	return dto.NewClassResponse(class), nil
}

// InvalidateAll bumps the content version so every cached enrollment listing is stale.
func (s *enrollmentService) InvalidateAll(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Incr(ctx, enrollmentVersionKey).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to bump enrollment cache version")
	}
}

func (s *enrollmentService) invalidateAccount(ctx context.Context, accountID string) {
	if s.cache == nil {
		return
	}
	_, err := s.cache.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, enrollmentAccountVersionKey(accountID))
		pipe.Del(ctx, enrollmentCacheKey(accountID))
		return nil
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to drop enrollment cache")
	}
}

func (s *enrollmentService) readVersions(ctx context.Context, reader versionReader, accountID string) (cacheVersion, error) {
	if s.cache == nil {
		return cacheVersion{}, nil
	}
	values, err := reader.MGet(ctx, enrollmentVersionKey, enrollmentAccountVersionKey(accountID)).Result()
	if err != nil {
		return cacheVersion{}, err
	}
	return cacheVersion{Global: parseVersion(values[0]), Account: parseVersion(values[1])}, nil
}

func parseVersion(value interface{}) int64 {
	raw, ok := value.(string)
	if !ok {
		return 0
	}
	version, _ := strconv.ParseInt(raw, 10, 64)
	return version
}

func enrollmentCacheKey(accountID string) string {
	return fmt.Sprintf("enrollments:account:%s", accountID)
}

func enrollmentAccountVersionKey(accountID string) string {
	return fmt.Sprintf("enrollments:account:%s:version", accountID)
}
