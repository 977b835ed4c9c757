package handlers

import (
	"link-verify-system/middleware"
	"link-verify-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupAdminRoutes(app *fiber.App, adminService *services.AdminService) {
	admin := app.Group("/admin", middleware.AdminAuthMiddleware())

	admin.Post("/codes", adminService.CreateCode)
	admin.Get("/codes", adminService.ListCodes)
	admin.Delete("/codes/:code", adminService.DeleteCode)

	admin.Post("/broadcast", adminService.EnqueueBroadcast)

	admin.Get("/stats", adminService.Stats)
	admin.Get("/proxies", adminService.ProxySnapshot)
}
