package main

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"

	"github.com/geniechat/geniechat-backend/internal/api"
	"github.com/geniechat/geniechat-backend/internal/auth"
	"github.com/geniechat/geniechat-backend/internal/config"
	"github.com/geniechat/geniechat-backend/internal/database"
	"github.com/geniechat/geniechat-backend/internal/genie"
	"github.com/geniechat/geniechat-backend/internal/repository/postgres"
	"github.com/geniechat/geniechat-backend/internal/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	// One minter per process, injected into the pool and the remote client
	minter := auth.NewTokenMinter(
		cfg.Databricks.ClientID,
		cfg.Databricks.ClientSecret,
		cfg.Databricks.Host,
	)

	db, err := database.NewConnection(cfg.Database, minter)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	if err := database.RunMigrations(db); err != nil {
		logrus.WithError(err).Fatal("Failed to run migrations")
	}

	store := postgres.NewConversationRepository(db.DB)
	client := genie.NewClient(cfg.Databricks.Host, cfg.Databricks.SpaceID, minter)
	resolver := genie.NewResolver(client, store)
	svc := services.NewServices(client, resolver, store)

	app := fiber.New(fiber.Config{
		AppName:      "GenieChat Backend",
		ErrorHandler: customErrorHandler,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	api.SetupRoutes(app, svc)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logrus.WithField("addr", addr).Info("Starting server")
	if err := app.Listen(addr); err != nil {
		logrus.WithError(err).Fatal("Server stopped")
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}
