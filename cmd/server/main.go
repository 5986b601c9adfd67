package main

import (
	"log"

	"github.com/formadex/crm-backend/internal/router"
	"github.com/formadex/crm-backend/pkg/config"
	"github.com/formadex/crm-backend/validators"
	"github.com/labstack/echo/v4"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize database connections
	db, err := config.InitDB()
	if err != nil {
		log.Fatalf("Failed to initialize databases: %v", err)
	}
	defer db.CloseDB() // Ensure database connections are closed when main exits

	// Create Echo instance
	e := echo.New()

	// Setup global middleware
	router.SetupMiddleware(e)

	// Validator
	e.Validator = validators.NewValidator()

	// Setup routes and dependencies; the broadcast hub lives for the whole
	// process and is stopped on the way out.
	hub := router.SetupRoutes(e, db.Postgres, db.Mongo, cfg)
	defer hub.Stop()

	// Start server
	e.Logger.Fatal(e.Start(":" + cfg.Port))
}
