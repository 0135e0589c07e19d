package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/MarcReynaud/MissionPay/app/controllers"
	"github.com/MarcReynaud/MissionPay/internal/pkg/middleware"
)

func (h HttpRouter) registerAdminRoutes(app *fiber.App) {
	// Admin surface is JSON only, so failures answer with API status codes.
	admin := app.Group("/admin", middleware.RequireAPISessionAuth, middleware.RequireAPIAdmin)

	admin.Post("/missions/:id/release", controllers.HandleAdminReleaseFunds)
	admin.Post("/payments/:id/disputes", controllers.HandleOpenDispute)
	admin.Post("/disputes/:id/resolve", controllers.HandleResolveDispute)
	admin.Get("/payments/metrics", controllers.HandleAdminPaymentMetrics)
}
