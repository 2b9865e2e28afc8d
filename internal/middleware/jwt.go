package middleware

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/classroom-portal/internal/utils"
)

// Locals keys populated by JWTProtected.
const (
	LocalUserID    = "user_id"
	LocalUserEmail = "user_email"
	LocalUserRole  = "user_role"
)

// Responder writes an authentication or authorization failure in the caller's response format.
type Responder func(c *fiber.Ctx, status int, message string) error

// JWTProtected returns a middleware that validates access tokens and answers failures with the API envelope.
func JWTProtected(secret string) fiber.Handler {
	return JWTProtectedWith(secret, utils.SendError)
}

// JWTProtectedWith validates access tokens using respond for failures. The token is read from the
// Authorization bearer header, or from the access_token query parameter for websocket upgrades.
func JWTProtectedWith(secret string, respond Responder) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString, message := bearerToken(c)
		if tokenString == "" {
			return respond(c, fiber.StatusUnauthorized, message)
		}

		token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method")
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			return respond(c, fiber.StatusUnauthorized, "invalid token")
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return respond(c, fiber.StatusUnauthorized, "invalid token claims")
		}
		// Refresh and reset tokens carry a purpose and never authorize API calls.
		if _, hasPurpose := claims["purpose"]; hasPurpose {
			return respond(c, fiber.StatusUnauthorized, "invalid token")
		}

		subject, _ := claims.GetSubject()
		subject = strings.TrimSpace(subject)
		if subject == "" {
			return respond(c, fiber.StatusUnauthorized, "invalid token subject")
		}

		c.Locals(LocalUserID, subject)
		if email, ok := claims["email"].(string); ok {
			c.Locals(LocalUserEmail, strings.TrimSpace(email))
		}
		if role := normalizeRoleValue(claims["role"]); role != "" {
			c.Locals(LocalUserRole, role)
		}

		return c.Next()
	}
}

func bearerToken(c *fiber.Ctx) (string, string) {
	authorization := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if authorization == "" {
		if query := strings.TrimSpace(c.Query("access_token")); query != "" {
			return query, ""
		}
		return "", "authorization header missing"
	}

	const bearer = "bearer "
	if len(authorization) < len(bearer) || !strings.EqualFold(authorization[:len(bearer)], bearer) {
		return "", "invalid authorization header"
	}

	token := strings.TrimSpace(authorization[len(bearer):])
	if token == "" {
		return "", "invalid token"
	}
	return token, ""
}

// UserID returns the authenticated account id, or an empty string.
func UserID(c *fiber.Ctx) string {
	if value, ok := c.Locals(LocalUserID).(string); ok {
		return value
	}
	return ""
}

// UserRole returns the authenticated account role, or an empty string.
func UserRole(c *fiber.Ctx) string {
	return normalizeRoleValue(c.Locals(LocalUserRole))
}
