package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/classroom-portal/internal/utils"
)

// Auth role constants used by WithAuth helper.
const (
	AuthRoleAny     = "any"
	AuthRoleAdmin   = "admin"
	AuthRoleStudent = "student"
)

// AuthOptions configures the WithAuth helper.
type AuthOptions struct {
	Role        string
	RequireUser bool
	// Respond writes denials; defaults to the API error envelope.
	Respond Responder
}

// WithAuth wraps a handler with authentication/authorization guards.
func WithAuth(handler fiber.Handler, opts AuthOptions) fiber.Handler {
	role := strings.ToLower(strings.TrimSpace(opts.Role))
	if role == "" {
		role = AuthRoleAny
	}

	requireUser := opts.RequireUser || role != AuthRoleAny
	respond := opts.Respond
	if respond == nil {
		respond = utils.SendError
	}

	return func(c *fiber.Ctx) error {
		if requireUser && UserID(c) == "" {
			return respond(c, fiber.StatusUnauthorized, "authentication required")
		}
		if role != AuthRoleAny && UserRole(c) != role {
			return respond(c, fiber.StatusForbidden, "insufficient permissions")
		}
		return handler(c)
	}
}
