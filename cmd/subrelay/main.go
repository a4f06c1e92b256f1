package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/nimbusbilling/subrelay/app/controllers"
	"github.com/nimbusbilling/subrelay/app/repository"
	"github.com/nimbusbilling/subrelay/internal/pkg/accountstore"
	"github.com/nimbusbilling/subrelay/internal/pkg/config"
	"github.com/nimbusbilling/subrelay/internal/pkg/database"
	"github.com/nimbusbilling/subrelay/internal/pkg/env"
	"github.com/nimbusbilling/subrelay/internal/pkg/metrics/counter"
	"github.com/nimbusbilling/subrelay/internal/pkg/payments"
	"github.com/nimbusbilling/subrelay/internal/pkg/relay"
	"github.com/nimbusbilling/subrelay/internal/pkg/relay/routes"
	"github.com/nimbusbilling/subrelay/internal/pkg/router"
	"github.com/nimbusbilling/subrelay/internal/pkg/subscriptions"
)

const statsFlushInterval = 60 * time.Second

func main() {
	app, err := NewApplication()
	if err != nil {
		log.Fatal(err)
	}

	cfg := config.Load()
	log.Fatal(app.Listen(fmt.Sprintf("%s:%s", cfg.AppHost, cfg.AppPort)))
}

func NewApplication() (*fiber.App, error) {
	env.SetupEnvFile()
	cfg := config.Load()

	db, err := database.SetupDatabase(cfg)
	if err != nil {
		return nil, fmt.Errorf("database setup failed: %w", err)
	}
	factory := repository.NewFactory(db)

	store := accountstore.New(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		return nil, fmt.Errorf("redis unavailable: %w", err)
	}

	counters := counter.New(store.Client())
	provider := payments.NewStripeClient(cfg.StripeAPIKey)

	registry := routes.NewRegistry(counters)
	registry.Register(routes.Salesforce, routes.NewSalesforceSender(cfg.SalesforceBasketURI, cfg.BasketAPIKey))
	registry.Register(routes.Firefox, routes.NewFirefoxSender(cfg.FirefoxNotifyURI))

	dispatcher := relay.NewDispatcher(provider, registry)
	managementSvc := subscriptions.NewService(store, provider)

	webhookCtl := controllers.NewWebhookController(cfg.StripeWebhookSecret, factory.GetWebhookEventRepository(), dispatcher, counters)
	subscriptionCtl := controllers.NewSubscriptionController(managementSvc)
	statsCtl := controllers.NewStatsController(counters, factory.GetDeliveryStatRepository(), factory.GetWebhookEventRepository())

	app := fiber.New(fiber.Config{
		BodyLimit:   1 * 1024 * 1024,
		ReadTimeout: 30 * time.Second,
	})
	app.Use(recover.New(), logger.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		if err := store.Ping(c.Context()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "degraded"})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			cfg.MetricsUser: cfg.MetricsPassword,
		},
	}), monitor.New())

	// SWAGGER / OPENAPI
	if basePath := findBasePath(); basePath != "" {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/docs/api/",
			FilePath: basePath + "public/docs/v1/openapi.yml",
			Path:     "v1",
		}))
	} else {
		fiberlog.Warn("[App] OpenAPI document not found, skipping swagger UI")
	}

	router.InstallRouter(app,
		router.NewWebhookRouter(webhookCtl),
		router.NewApiRouter(cfg.APIAuthKey, subscriptionCtl, statsCtl),
	)

	go flushStatsLoop(counters, factory.GetDeliveryStatRepository())

	return app, nil
}

// findBasePath locates the project root relative to the working directory,
// which differs between `go run ./cmd/subrelay` and a container image.
func findBasePath() string {
	for _, path := range []string{"./", "../../", "../../../"} {
		if _, err := os.Stat(path + "public/docs/v1/openapi.yml"); err == nil {
			return path
		}
	}
	return ""
}

// flushStatsLoop periodically drains the Redis delivery counters into the
// database so tallies survive restarts.
func flushStatsLoop(counters *counter.Counters, repo repository.DeliveryStatRepository) {
	ticker := time.NewTicker(statsFlushInterval)
	defer ticker.Stop()
	for range ticker.C {
		if err := counters.FlushDeliveries(repo); err != nil {
			fiberlog.Errorf("[Stats] Failed to flush delivery counters: %v", err)
		}
	}
}
