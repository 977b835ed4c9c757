package handlers

import (
	"link-verify-system/services"

	"github.com/gofiber/fiber/v2"
)

// SetupHealthRoutes registers the liveness endpoint. It must be wired
// before the gateway auth middleware: platform probers don't carry a
// service token.
func SetupHealthRoutes(app *fiber.App, ledger *services.LedgerService) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		used, err := ledger.TodayUsage()
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"status": "degraded"})
		}
		return c.JSON(fiber.Map{
			"status":             "ok",
			"today_used":         used,
			"global_daily_limit": ledger.GlobalDailyLimit,
		})
	})
}
