package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/MarcReynaud/MissionPay/app/controllers"
	"github.com/MarcReynaud/MissionPay/internal/pkg/constants"
	"github.com/MarcReynaud/MissionPay/internal/pkg/middleware"
	"github.com/MarcReynaud/MissionPay/internal/pkg/session"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// init session
	session.NewSessionStore()

	// Apply UserContext middleware globally as first middleware
	app.Use(middleware.UserContextMiddleware)

	// Processor notifications. No session, no CSRF; authenticated by the
	// signature header alone.
	app.Post(constants.StripeWebhookRoute, controllers.HandleStripeWebhook)

	// Payout onboarding browser flow.
	app.Get(constants.PayoutOnboardingRoute, middleware.RequireAuth, controllers.HandlePayoutOnboarding)
	app.Post(constants.PayoutOnboardingRoute, middleware.RequireAuth, controllers.HandlePayoutOnboarding)

	h.registerAdminRoutes(app)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
