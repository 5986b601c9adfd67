package router

import (
	"log"

	"github.com/formadex/crm-backend/internal/handlers"
	"github.com/formadex/crm-backend/internal/middleware"
	"github.com/formadex/crm-backend/internal/models"
	"github.com/formadex/crm-backend/internal/realtime"
	"github.com/formadex/crm-backend/internal/repositories"
	"github.com/formadex/crm-backend/internal/workflow"
	"github.com/formadex/crm-backend/pkg/config"
	"github.com/labstack/echo/v4"
	eMiddleware "github.com/labstack/echo/v4/middleware"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

// SetupMiddleware configures global Echo middleware
func SetupMiddleware(e *echo.Echo) {
	e.Use(eMiddleware.Recover())
	e.Use(eMiddleware.CORS())
	log.Println("Global middleware configured.")
}

// SetupRoutes configures all application routes and injects dependencies.
// It returns the broadcast hub so main can stop it on shutdown.
func SetupRoutes(e *echo.Echo, pgdb *gorm.DB, mgClient *mongo.Client, cfg *config.Config) *realtime.Hub {
	// AutoMigrate PostgreSQL models
	err := pgdb.AutoMigrate(
		&models.User{},
		&models.NotificationEvent{},
		&models.ActionLock{},
	)
	if err != nil {
		log.Fatalf("Failed to auto migrate models: %v", err)
	}
	log.Println("PostgreSQL auto-migrations completed for all models.")

	// Health check - always accessible
	e.GET("/health", handlers.HealthCheck)

	// --- Initialize Repositories ---
	userRepo := repositories.NewPostgresUserRepository(pgdb)
	eventRepo := repositories.NewPostgresEventRepository(pgdb)
	lockRepo := repositories.NewPostgresActionLockRepository(pgdb)
	journalRepo := repositories.NewMongoJournalRepository(mgClient.Database("crm"))

	// --- Broadcast hub (one per process; not horizontally scalable) ---
	hub := realtime.NewHub(eventRepo)
	hub.Start()
	log.Println("Broadcast hub started.")

	// --- Workflow engine dispatcher ---
	engine := workflow.NewWebhookClient(cfg.WorkflowWebhookURL, cfg.WorkflowAuthToken, 0)
	dispatcher := workflow.NewDispatcher(engine, lockRepo, journalRepo, workflow.DefaultRetryPolicy())

	// --- Unprotected routes for authentication ---
	authGroup := e.Group("/api/v1/auth")
	authHandler := handlers.NewAuthHandler(userRepo, cfg.JWTSecret)
	authHandler.RegisterAuthRoutes(authGroup)
	log.Println("Auth routes configured.")

	// --- Protected routes (require JWT authentication) ---
	api := e.Group("/api/v1")
	api.Use(middleware.JWTAuthMiddleware(cfg.JWTSecret))
	log.Println("JWT authentication middleware applied to /api/v1 group.")

	// Notification read surface
	notificationHandler := handlers.NewNotificationHandler(eventRepo)
	notificationHandler.RegisterNotificationRoutes(api)
	log.Println("Notification routes configured.")

	// Event stream
	streamHandler := handlers.NewStreamHandler(hub)
	streamHandler.RegisterStreamRoutes(api)
	log.Println("Stream route configured.")

	// Action triggers
	actionHandler := handlers.NewActionHandler(lockRepo, dispatcher)
	actionHandler.RegisterActionRoutes(api)
	log.Println("Action routes configured.")

	// --- Service routes (shared-secret, non-interactive callers) ---
	service := e.Group("/api/v1/service")
	service.Use(middleware.ServiceAuthMiddleware(cfg.ServiceToken))

	ingestHandler := handlers.NewIngestHandler(eventRepo, hub)
	ingestHandler.RegisterServiceRoutes(service)

	callbackHandler := handlers.NewCallbackHandler(eventRepo, lockRepo, hub)
	callbackHandler.RegisterServiceRoutes(service)

	journalHandler := handlers.NewJournalHandler(journalRepo)
	journalHandler.RegisterServiceRoutes(service)
	log.Println("Service routes configured.")

	log.Println("All routes configured.")
	return hub
}
