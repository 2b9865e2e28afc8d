package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/classroom-portal/internal/dto"
	"github.com/noah-isme/classroom-portal/internal/repository"
	"github.com/noah-isme/classroom-portal/internal/service"
	"github.com/noah-isme/classroom-portal/internal/utils"
)

// AdminContentHandler manages classes, their modules, and the resource library.
type AdminContentHandler struct {
	classes   service.ClassService
	modules   service.ModuleService
	resources service.ResourceService
	logger    zerolog.Logger
}

// NewAdminContentHandler constructs the content management handler.
func NewAdminContentHandler(classes service.ClassService, modules service.ModuleService, resources service.ResourceService, logger zerolog.Logger) *AdminContentHandler {
	return &AdminContentHandler{
		classes:   classes,
		modules:   modules,
		resources: resources,
		logger:    logger.With().Str("component", "admin_content_handler").Logger(),
	}
}

// Register wires admin content routes. The group must already enforce the admin role.
func (h *AdminContentHandler) Register(router fiber.Router) {
	classes := router.Group("/classes")
	classes.Get("/", h.listClasses)
	classes.Post("/", h.createClass)
	classes.Get("/:id", h.getClass)
	classes.Patch("/:id", h.updateClass)
	classes.Delete("/:id", h.deleteClass)
	classes.Post("/:id/duplicate", h.duplicateClass)
	classes.Get("/:id/modules", h.listModules)
	classes.Post("/:id/modules", h.createModule)
	classes.Put("/:id/modules/order", h.reorderModules)

	modules := router.Group("/modules")
	modules.Get("/:id", h.getModule)
	modules.Patch("/:id", h.updateModule)
	modules.Delete("/:id", h.deleteModule)
	modules.Post("/:id/move", h.moveModule)
	modules.Put("/:id/resources", h.assignResources)

	resources := router.Group("/resources")
	resources.Get("/", h.listResources)
	resources.Post("/", h.createResource)
	resources.Patch("/:id", h.updateResource)
	resources.Delete("/:id", h.deleteResource)
}

func (h *AdminContentHandler) listClasses(c *fiber.Ctx) error {
	classes, err := h.classes.List(requestContext(c), c.Query("search"))
	if err != nil {
		return handleError(c, h.logger, err, "list classes")
	}
	return utils.SendSuccess(c, "classes retrieved", classes)
}

func (h *AdminContentHandler) createClass(c *fiber.Ctx) error {
	var payload dto.ClassCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	class, err := h.classes.Create(requestContext(c), payload)
	if err != nil {
		return handleError(c, h.logger, err, "create class")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "class created", class)
}

func (h *AdminContentHandler) getClass(c *fiber.Ctx) error {
	class, err := h.classes.Get(requestContext(c), c.Params("id"))
	if err != nil {
		return handleError(c, h.logger, err, "load class")
	}
	return utils.SendSuccess(c, "class retrieved", class)
}

func (h *AdminContentHandler) updateClass(c *fiber.Ctx) error {
	var payload dto.ClassUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	class, err := h.classes.Update(requestContext(c), c.Params("id"), payload)
	if err != nil {
		return handleError(c, h.logger, err, "update class")
	}
	return utils.SendSuccess(c, "class updated", class)
}

func (h *AdminContentHandler) deleteClass(c *fiber.Ctx) error {
	if err := h.classes.Delete(requestContext(c), c.Params("id")); err != nil {
		return handleError(c, h.logger, err, "delete class")
	}
	return utils.SendSuccess(c, "class deleted", nil)
}

func (h *AdminContentHandler) duplicateClass(c *fiber.Ctx) error {
	class, err := h.classes.Duplicate(requestContext(c), c.Params("id"))
	if err != nil {
		return handleError(c, h.logger, err, "duplicate class")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "class duplicated", class)
}

func (h *AdminContentHandler) listModules(c *fiber.Ctx) error {
	modules, err := h.modules.ListByClass(requestContext(c), c.Params("id"))
	if err != nil {
		return handleError(c, h.logger, err, "list modules")
	}
	return utils.SendSuccess(c, "modules retrieved", modules)
}

func (h *AdminContentHandler) createModule(c *fiber.Ctx) error {
	var payload dto.ModuleCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	module, err := h.modules.Create(requestContext(c), c.Params("id"), payload)
	if err != nil {
		return handleError(c, h.logger, err, "create module")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "module created", module)
}

func (h *AdminContentHandler) reorderModules(c *fiber.Ctx) error {
	var payload dto.ModuleReorderRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	modules, err := h.modules.Reorder(requestContext(c), c.Params("id"), payload)
	if err != nil {
		return handleError(c, h.logger, err, "reorder modules")
	}
	return utils.SendSuccess(c, "modules reordered", modules)
}

func (h *AdminContentHandler) getModule(c *fiber.Ctx) error {
	module, err := h.modules.Get(requestContext(c), c.Params("id"))
	if err != nil {
		return handleError(c, h.logger, err, "load module")
	}
	return utils.SendSuccess(c, "module retrieved", module)
}

func (h *AdminContentHandler) updateModule(c *fiber.Ctx) error {
	var payload dto.ModuleUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	module, err := h.modules.Update(requestContext(c), c.Params("id"), payload)
	if err != nil {
		return handleError(c, h.logger, err, "update module")
	}
	return utils.SendSuccess(c, "module updated", module)
}

func (h *AdminContentHandler) deleteModule(c *fiber.Ctx) error {
	if err := h.modules.Delete(requestContext(c), c.Params("id")); err != nil {
		return handleError(c, h.logger, err, "delete module")
	}
	return utils.SendSuccess(c, "module deleted", nil)
}

func (h *AdminContentHandler) moveModule(c *fiber.Ctx) error {
	var payload dto.ModuleMoveRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	modules, err := h.modules.Move(requestContext(c), c.Params("id"), payload)
	if err != nil {
		return handleError(c, h.logger, err, "move module")
	}
	return utils.SendSuccess(c, "module moved", modules)
}

func (h *AdminContentHandler) assignResources(c *fiber.Ctx) error {
	var payload dto.ModuleResourcesRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	module, err := h.modules.AssignResources(requestContext(c), c.Params("id"), payload)
	if err != nil {
		return handleError(c, h.logger, err, "assign resources")
	}
	return utils.SendSuccess(c, "resources assigned", module)
}

func (h *AdminContentHandler) listResources(c *fiber.Ctx) error {
	filter := repository.ResourceFilter{
		Search:     c.Query("search"),
		ModuleID:   c.Query("module_id"),
		Unattached: c.QueryBool("unattached", false),
	}

	resources, err := h.resources.List(requestContext(c), filter)
	if err != nil {
		return handleError(c, h.logger, err, "list resources")
	}
	return utils.SendSuccess(c, "resources retrieved", resources)
}

// createResource accepts either a JSON link resource or a multipart upload with a "file" part.
func (h *AdminContentHandler) createResource(c *fiber.Ctx) error {
	var payload dto.ResourceCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	if payload.ModuleID != nil && strings.TrimSpace(*payload.ModuleID) == "" {
		payload.ModuleID = nil
	}

	var (
		resource dto.ResourceResponse
		err      error
	)
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		file, formErr := c.FormFile("file")
		if formErr != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "file is required")
		}
		resource, err = h.resources.Upload(requestContext(c), file, payload)
	} else {
		resource, err = h.resources.Create(requestContext(c), payload)
	}
	if err != nil {
		return handleError(c, h.logger, err, "create resource")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "resource created", resource)
}

func (h *AdminContentHandler) updateResource(c *fiber.Ctx) error {
	var payload dto.ResourceUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	resource, err := h.resources.Update(requestContext(c), c.Params("id"), payload)
	if err != nil {
		return handleError(c, h.logger, err, "update resource")
	}
	return utils.SendSuccess(c, "resource updated", resource)
}

func (h *AdminContentHandler) deleteResource(c *fiber.Ctx) error {
	if err := h.resources.Delete(requestContext(c), c.Params("id")); err != nil {
		return handleError(c, h.logger, err, "delete resource")
	}
	return utils.SendSuccess(c, "resource deleted", nil)
}
