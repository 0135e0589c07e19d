package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/MarcReynaud/MissionPay/app/controllers"
	"github.com/MarcReynaud/MissionPay/internal/pkg/constants"
	"github.com/MarcReynaud/MissionPay/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := app.Group(constants.APIPrefix, limiter.New(), middleware.RequireAPISessionAuth)

	v1.Post("/missions/:id/checkout", controllers.HandleMissionCheckout)
	v1.Get("/missions/:id/payment", controllers.HandleMissionPaymentStatus)
	v1.Post("/payments/:id/transfers/retry", controllers.HandleTransferRetry)
	v1.Post("/billing/checkout", controllers.HandleBillingCheckout)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
