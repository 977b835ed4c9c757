package middleware

import (
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
)

// AdminAuthMiddleware gates the /admin surface behind a separate token
// sent in the X-Admin-Token header, on top of the gateway auth.
func AdminAuthMiddleware() fiber.Handler {
	expectedToken := os.Getenv("ADMIN_TOKEN")
	if expectedToken == "" {
		log.Fatal("❌ ADMIN_TOKEN is not set — admin surface cannot be secured")
	}

	return func(c *fiber.Ctx) error {
		if c.Get("X-Admin-Token") != expectedToken {
			log.Printf("🚫 [ADMIN_AUTH] Rejected admin request for %s", c.Path())
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "admin token missing or invalid",
			})
		}
		return c.Next()
	}
}
