package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/classroom-portal/internal/dto"
	"github.com/noah-isme/classroom-portal/internal/middleware"
	"github.com/noah-isme/classroom-portal/internal/service"
	"github.com/noah-isme/classroom-portal/internal/utils"
)

// AuthHandler exposes account authentication endpoints and the auth event stream.
type AuthHandler struct {
	service      service.AuthService
	protect      fiber.Handler
	loginLimiter fiber.Handler
	logger       zerolog.Logger
}

// NewAuthHandler creates an auth handler. protect guards session-bound routes; loginLimiter may be nil.
func NewAuthHandler(service service.AuthService, protect, loginLimiter fiber.Handler, logger zerolog.Logger) *AuthHandler {
	if loginLimiter == nil {
		loginLimiter = func(c *fiber.Ctx) error { return c.Next() }
	}
	return &AuthHandler{
		service:      service,
		protect:      protect,
		loginLimiter: loginLimiter,
		logger:       logger.With().Str("component", "auth_handler").Logger(),
	}
}

// Register binds auth routes under the provided router group.
func (h *AuthHandler) Register(router fiber.Router) {
	router.Post("/signup", h.signup)
	router.Post("/login", h.loginLimiter, h.login)
	router.Post("/refresh", h.refresh)
	router.Post("/recover", h.recover)
	router.Post("/reset", h.reset)

	router.Get("/session", h.protect, h.session)
	router.Post("/logout", h.protect, h.logout)
	router.Put("/password", h.protect, h.updatePassword)

	router.Get("/events", h.protect, func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}, websocket.New(h.streamEvents))
}

func (h *AuthHandler) signup(c *fiber.Ctx) error {
	var payload dto.SignupRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	account, err := h.service.Signup(requestContext(c), payload)
	if err != nil {
		return handleError(c, h.logger, err, "register account")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "account created, sign in to continue", account)
}

func (h *AuthHandler) login(c *fiber.Ctx) error {
	var payload dto.LoginRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	session, err := h.service.Login(requestContext(c), payload)
	if err != nil {
		return handleError(c, h.logger, err, "sign in")
	}
	return utils.SendSuccess(c, "signed in", session)
}

func (h *AuthHandler) refresh(c *fiber.Ctx) error {
	var payload dto.RefreshRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	session, err := h.service.Refresh(requestContext(c), payload)
	if err != nil {
		return handleError(c, h.logger, err, "refresh session")
	}
	return utils.SendSuccess(c, "session refreshed", session)
}

func (h *AuthHandler) session(c *fiber.Ctx) error {
	account, err := h.service.Session(requestContext(c), middleware.UserID(c))
	if err != nil {
		if status, _ := statusFor(err); status == fiber.StatusNotFound {
			return utils.SendError(c, fiber.StatusUnauthorized, "session no longer valid")
		}
		return handleError(c, h.logger, err, "load session")
	}
	return utils.SendSuccess(c, "session active", account)
}

func (h *AuthHandler) logout(c *fiber.Ctx) error {
	if err := h.service.Logout(requestContext(c), middleware.UserID(c)); err != nil {
		return handleError(c, h.logger, err, "sign out")
	}
	return utils.SendSuccess(c, "signed out", nil)
}

func (h *AuthHandler) updatePassword(c *fiber.Ctx) error {
	var payload dto.PasswordUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	account, err := h.service.UpdatePassword(requestContext(c), middleware.UserID(c), payload)
	if err != nil {
		return handleError(c, h.logger, err, "update password")
	}
	return utils.SendSuccess(c, "password updated", account)
}

func (h *AuthHandler) recover(c *fiber.Ctx) error {
	var payload dto.RecoverRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	if err := h.service.Recover(requestContext(c), payload); err != nil {
		if isValidationError(err) {
			return handleError(c, h.logger, err, "send reset link")
		}
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to send reset link")
	}
	return utils.SendSuccess(c, "if the account exists, a reset link has been sent", nil)
}

func (h *AuthHandler) reset(c *fiber.Ctx) error {
	var payload dto.ResetRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	if err := h.service.Reset(requestContext(c), payload); err != nil {
		return handleError(c, h.logger, err, "reset password")
	}
	return utils.SendSuccess(c, "password reset, sign in with the new password", nil)
}

func (h *AuthHandler) streamEvents(conn *websocket.Conn) {
	accountID, _ := conn.Locals(middleware.LocalUserID).(string)
	if accountID == "" {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication required"))
		_ = conn.Close()
		return
	}

	events, cancel := h.service.Events(accountID)
	defer cancel()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	h.logger.Debug().Str("account_id", accountID).Msg("auth event stream connected")
	for {
		select {
		case <-closed:
			h.logger.Debug().Str("account_id", accountID).Msg("auth event stream disconnected")
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				h.logger.Debug().Err(err).Str("account_id", accountID).Msg("auth event write failed")
				return
			}
		}
	}
}
