package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rxtech-lab/safebet-mcp/internal/utils"
)

// AuthConfig holds configuration for the auth middleware
type AuthConfig struct {
	JWTAuthenticator *utils.JwtAuthenticator
	// RequiredRole, when set, must be among the token's roles
	RequiredRole string
}

// AuthMiddleware returns a Fiber middleware for Bearer token authentication.
// The authenticated user is stored in Locals("user") and on the user context.
func AuthMiddleware(cfg AuthConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		var token string
		if strings.HasPrefix(authHeader, "Bearer ") {
			token = strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		}

		if token == "" {
			c.Set("WWW-Authenticate", `Bearer realm="safebet"`)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing or invalid Bearer token",
			})
		}
		if cfg.JWTAuthenticator == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authentication is not configured",
			})
		}

		user, err := cfg.JWTAuthenticator.ValidateToken(token)
		if err != nil {
			c.Set("WWW-Authenticate", `Bearer realm="safebet", error="invalid_token"`)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   "Invalid token",
				"details": err.Error(),
			})
		}
		if cfg.RequiredRole != "" && !user.HasRole(cfg.RequiredRole) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Insufficient role",
			})
		}

		c.Locals("user", user)
		c.SetUserContext(utils.WithAuthenticatedUser(c.UserContext(), user))
		return c.Next()
	}
}

// GetAuthenticatedUser retrieves the authenticated user from Fiber context
func GetAuthenticatedUser(c *fiber.Ctx) *utils.AuthenticatedUser {
	user, ok := c.Locals("user").(*utils.AuthenticatedUser)
	if !ok {
		return nil
	}
	return user
}
