package main

import (
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/MarcReynaud/MissionPay/internal/pkg/cache"
	"github.com/MarcReynaud/MissionPay/internal/pkg/database"
	"github.com/MarcReynaud/MissionPay/internal/pkg/env"
	"github.com/MarcReynaud/MissionPay/internal/pkg/payments"
	"github.com/MarcReynaud/MissionPay/internal/pkg/router"
	"github.com/MarcReynaud/MissionPay/internal/pkg/stripe"
	"github.com/MarcReynaud/MissionPay/internal/pkg/sweeper"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	app := fiber.New(fiber.Config{
		AppName: "missionpay",
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			"admin": env.GetEnv("METRICS_PASSWORD", "test"),
		},
	}), monitor.New())

	// ROUTER
	router.InstallRouter(app)

	// opt-in background retry of skipped/failed transfers
	if sweeper.Enabled() {
		svc := payments.NewServiceFromDB(database.GetDB(), stripe.NewClientFromEnv())
		sw := sweeper.New(svc)
		if err := sw.Start(); err != nil {
			log.Fatalf("failed to start transfer sweeper: %v", err)
		}
	}

	return app
}
