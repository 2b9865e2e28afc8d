package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/classroom-portal/internal/dto"
	"github.com/noah-isme/classroom-portal/internal/middleware"
	"github.com/noah-isme/classroom-portal/internal/service"
)

// ManageUsersHandler implements the privileged manage-users function. It speaks
// bare JSON bodies ({users}, {user}, {message}, {error}) instead of the API envelope.
type ManageUsersHandler struct {
	accounts service.AccountService
	protect  fiber.Handler
	logger   zerolog.Logger
}

// NewManageUsersHandler constructs the handler; tokens are verified with accessSecret.
func NewManageUsersHandler(accounts service.AccountService, accessSecret string, logger zerolog.Logger) *ManageUsersHandler {
	return &ManageUsersHandler{
		accounts: accounts,
		protect:  middleware.JWTProtectedWith(accessSecret, writeFunctionError),
		logger:   logger.With().Str("component", "manage_users_handler").Logger(),
	}
}

// Register mounts the function at /manage-users on the given router.
func (h *ManageUsersHandler) Register(router fiber.Router) {
	router.All("/manage-users", h.protect, middleware.WithAuth(h.dispatch, middleware.AuthOptions{
		Role:    middleware.AuthRoleAdmin,
		Respond: writeFunctionError,
	}))
}

func (h *ManageUsersHandler) dispatch(c *fiber.Ctx) error {
	switch c.Method() {
	case fiber.MethodGet:
		return h.list(c)
	case fiber.MethodPost:
		return h.create(c)
	case fiber.MethodDelete:
		return h.delete(c)
	default:
		return writeFunctionError(c, fiber.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *ManageUsersHandler) list(c *fiber.Ctx) error {
	users, err := h.accounts.List(requestContext(c))
	if err != nil {
		return h.fail(c, err, "list users")
	}
	if users == nil {
		users = []dto.AccountResponse{}
	}
	return c.JSON(dto.ManageUsersListResponse{Users: users})
}

func (h *ManageUsersHandler) create(c *fiber.Ctx) error {
	var payload dto.ManageUserCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return writeFunctionError(c, fiber.StatusBadRequest, "invalid payload")
	}

	user, err := h.accounts.Create(requestContext(c), payload)
	if err != nil {
		return h.fail(c, err, "create user")
	}
	return c.JSON(dto.ManageUserResponse{User: user})
}

func (h *ManageUsersHandler) delete(c *fiber.Ctx) error {
	var payload dto.ManageUserDeleteRequest
	if err := c.BodyParser(&payload); err != nil {
		return writeFunctionError(c, fiber.StatusBadRequest, "invalid payload")
	}

	if err := h.accounts.Delete(requestContext(c), middleware.UserID(c), payload); err != nil {
		return h.fail(c, err, "delete user")
	}
	return c.JSON(dto.ManageUsersMessage{Message: "user deleted"})
}

// fail reports every service failure as 400 {error}; unexpected errors are logged
// and their detail withheld.
func (h *ManageUsersHandler) fail(c *fiber.Ctx, err error, action string) error {
	if _, known := statusFor(err); !known {
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to " + action)
		return writeFunctionError(c, fiber.StatusBadRequest, "failed to "+action)
	}
	return writeFunctionError(c, fiber.StatusBadRequest, err.Error())
}

func writeFunctionError(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(dto.ManageUsersError{Error: message})
}
