package middleware

import (
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/saeid-a/SessionLedgerBack/internal/logging"
	"github.com/saeid-a/SessionLedgerBack/internal/models"
	"github.com/saeid-a/SessionLedgerBack/pkg/utils"
)

func AuthRequired(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing authorization header",
			})
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid authorization header format",
			})
		}

		tokenString := parts[1]
		claims, err := utils.ValidateToken(tokenString, secret)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		c.Locals("user_id", claims.UserID)
		c.Locals("role", string(models.ParseRole(claims.Role)))

		return c.Next()
	}
}

// RequireRole must run after AuthRequired.
func RequireRole(roles ...models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role, _ := c.Locals("role").(string)
		for _, allowed := range roles {
			if role == string(allowed) {
				return c.Next()
			}
		}
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Forbidden",
		})
	}
}

// RequestLogger attaches a request scoped logger to the user context so that
// services log with the request id and caller attached.
func RequestLogger(base *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		attrs := []any{"method", c.Method(), "path", c.Path()}
		if requestID := c.Get(fiber.HeaderXRequestID); requestID != "" {
			attrs = append(attrs, "request_id", requestID)
		}
		if userID, ok := c.Locals("user_id").(string); ok && userID != "" {
			attrs = append(attrs, "user_id", userID)
		}

		ctx := logging.ContextWithLogger(c.UserContext(), base.With(attrs...))
		c.SetUserContext(ctx)
		return c.Next()
	}
}
