package main

import (
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/alienkawsar/verilnk-sub004/app/controllers"
	"github.com/alienkawsar/verilnk-sub004/internal/pkg/billing"
	"github.com/alienkawsar/verilnk-sub004/internal/pkg/database"
	"github.com/alienkawsar/verilnk-sub004/internal/pkg/env"
	"github.com/alienkawsar/verilnk-sub004/internal/pkg/gateway"
	"github.com/alienkawsar/verilnk-sub004/internal/pkg/router"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()

	// Payment configuration is validated once here; a misconfigured provider
	// fails the boot instead of the first checkout.
	cfg, err := gateway.ConfigFromEnv()
	if err != nil {
		log.Fatalf("payment configuration invalid: %v", err)
	}

	svc := billing.NewServiceFromDB(database.GetDB(), cfg)
	controllers.SetBillingService(svc)

	app := fiber.New(fiber.Config{
		AppName: "verilnk-billing",
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("METRICS_USER", "admin"): env.GetEnv("METRICS_PASSWORD", "test"),
		},
	}), monitor.New())

	// ROUTER
	router.InstallRouter(app)

	return app
}
