package handlers

import (
	"link-verify-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupVerifyRoutes(app *fiber.App, verifyService *services.VerifyService) {
	app.Post("/verifications", verifyService.Submit)
	app.Get("/queue", verifyService.QueueStatus)

	app.Get("/users/:id/credits", verifyService.UserCredits)
	app.Post("/users/:id/redeem", verifyService.Redeem)
	app.Post("/users/:id/referral", verifyService.ApplyReferral)
}
