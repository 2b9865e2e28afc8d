package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/classroom-portal/internal/dto"
	"github.com/noah-isme/classroom-portal/internal/middleware"
	"github.com/noah-isme/classroom-portal/internal/service"
	"github.com/noah-isme/classroom-portal/internal/utils"
)

// StudentHandler serves the catalog, enrollments, and per-module learner state.
type StudentHandler struct {
	classes     service.ClassService
	enrollments service.EnrollmentService
	notes       service.NoteService
	progress    service.ProgressService
	logger      zerolog.Logger
}

// NewStudentHandler constructs a student handler.
func NewStudentHandler(classes service.ClassService, enrollments service.EnrollmentService, notes service.NoteService, progress service.ProgressService, logger zerolog.Logger) *StudentHandler {
	return &StudentHandler{
		classes:     classes,
		enrollments: enrollments,
		notes:       notes,
		progress:    progress,
		logger:      logger.With().Str("component", "student_handler").Logger(),
	}
}

// Register wires the student routes. The group is expected to be authenticated.
func (h *StudentHandler) Register(router fiber.Router) {
	router.Get("/catalog", h.catalog)
	router.Get("/enrollments", h.listEnrollments)
	router.Post("/enrollments", h.enroll)
	router.Get("/classes/:id", h.classDetail)

	router.Get("/notes", h.listNotes)
	router.Get("/notes/:moduleId", h.getNote)
	router.Put("/notes/:moduleId", h.saveNote)

	router.Get("/progress", h.listProgress)
	router.Put("/progress/:moduleId", h.setProgress)
}

func (h *StudentHandler) catalog(c *fiber.Ctx) error {
	classes, err := h.classes.Catalog(requestContext(c), c.Query("search"))
	if err != nil {
		return handleError(c, h.logger, err, "load catalog")
	}
	return utils.SendSuccess(c, "catalog retrieved", classes)
}

func (h *StudentHandler) listEnrollments(c *fiber.Ctx) error {
	enrollments, err := h.enrollments.ListActive(requestContext(c), middleware.UserID(c))
	if err != nil {
		return handleError(c, h.logger, err, "load enrollments")
	}
	return utils.SendSuccess(c, "enrollments retrieved", enrollments)
}

func (h *StudentHandler) enroll(c *fiber.Ctx) error {
	var payload dto.EnrollRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	enrollment, err := h.enrollments.Enroll(requestContext(c), middleware.UserID(c), payload)
	if err != nil {
		return handleError(c, h.logger, err, "enroll")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "enrolled", enrollment)
}

func (h *StudentHandler) classDetail(c *fiber.Ctx) error {
	class, err := h.enrollments.GetClass(requestContext(c), middleware.UserID(c), c.Params("id"))
	if err != nil {
		return handleError(c, h.logger, err, "load class")
	}
	return utils.SendSuccess(c, "class retrieved", class)
}

func (h *StudentHandler) listNotes(c *fiber.Ctx) error {
	notes, err := h.notes.List(requestContext(c), middleware.UserID(c))
	if err != nil {
		return handleError(c, h.logger, err, "load notes")
	}
	return utils.SendSuccess(c, "notes retrieved", notes)
}

func (h *StudentHandler) getNote(c *fiber.Ctx) error {
	note, err := h.notes.Get(requestContext(c), middleware.UserID(c), c.Params("moduleId"))
	if err != nil {
		return handleError(c, h.logger, err, "load note")
	}
	return utils.SendSuccess(c, "note retrieved", note)
}

func (h *StudentHandler) saveNote(c *fiber.Ctx) error {
	var payload dto.NoteUpsertRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	note, err := h.notes.Save(requestContext(c), middleware.UserID(c), c.Params("moduleId"), payload)
	if err != nil {
		return handleError(c, h.logger, err, "save note")
	}
	return utils.SendSuccess(c, "note saved", note)
}

func (h *StudentHandler) listProgress(c *fiber.Ctx) error {
	records, err := h.progress.List(requestContext(c), middleware.UserID(c))
	if err != nil {
		return handleError(c, h.logger, err, "load progress")
	}
	return utils.SendSuccess(c, "progress retrieved", records)
}

func (h *StudentHandler) setProgress(c *fiber.Ctx) error {
	var payload dto.ProgressUpsertRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	record, err := h.progress.Set(requestContext(c), middleware.UserID(c), c.Params("moduleId"), payload)
	if err != nil {
		return handleError(c, h.logger, err, "update progress")
	}
	return utils.SendSuccess(c, "progress updated", record)
}
