package handler

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/classroom-portal/internal/middleware"
	"github.com/noah-isme/classroom-portal/internal/service"
	"github.com/noah-isme/classroom-portal/internal/utils"
)

// errorStatuses maps service sentinels onto HTTP statuses.
var errorStatuses = []struct {
	err    error
	status int
}{
	{service.ErrInvalidCredentials, fiber.StatusUnauthorized},
	{service.ErrInvalidToken, fiber.StatusUnauthorized},
	{service.ErrEmailTaken, fiber.StatusConflict},
	{service.ErrAccountNotFound, fiber.StatusNotFound},
	{service.ErrCannotDeleteSelf, fiber.StatusBadRequest},
	{service.ErrClassNotFound, fiber.StatusNotFound},
	{service.ErrModuleNotFound, fiber.StatusNotFound},
	{service.ErrResourceNotFound, fiber.StatusNotFound},
	{service.ErrNoteNotFound, fiber.StatusNotFound},
	{service.ErrModuleAtBoundary, fiber.StatusConflict},
	{service.ErrModuleOrderMismatch, fiber.StatusBadRequest},
	{service.ErrNoteTooLarge, fiber.StatusRequestEntityTooLarge},
	{service.ErrUploadTooLarge, fiber.StatusRequestEntityTooLarge},
	{service.ErrUploadTypeNotAllowed, fiber.StatusUnsupportedMediaType},
	{service.ErrUploadUnavailable, fiber.StatusServiceUnavailable},
	{service.ErrResourceURLRequired, fiber.StatusBadRequest},
}

func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

func isValidationError(err error) bool {
	var validationErrors validator.ValidationErrors
	return errors.As(err, &validationErrors)
}

func validationDetails(err error) map[string]string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return nil
	}
	details := make(map[string]string, len(validationErrors))
	for _, fieldErr := range validationErrors {
		details[strings.ToLower(fieldErr.Field())] = fieldErr.Tag()
	}
	return details
}

// statusFor resolves the HTTP status of a service error; ok is false for unexpected errors.
func statusFor(err error) (int, bool) {
	if isValidationError(err) {
		return fiber.StatusBadRequest, true
	}
	for _, candidate := range errorStatuses {
		if errors.Is(err, candidate.err) {
			return candidate.status, true
		}
	}
	return fiber.StatusInternalServerError, false
}

// handleError writes the API envelope for err, logging unexpected failures with action.
func handleError(c *fiber.Ctx, logger zerolog.Logger, err error, action string) error {
	status, known := statusFor(err)
	if !known {
		requestLogger(logger, c).Error().Err(err).Msg("failed to " + action)
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to "+action)
	}
	if details := validationDetails(err); details != nil {
		return utils.Fail(c, status, "validation failed", details)
	}
	return utils.SendError(c, status, err.Error())
}
