package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/saeid-a/SessionLedgerBack/internal/config"
	"github.com/saeid-a/SessionLedgerBack/internal/database"
	"github.com/saeid-a/SessionLedgerBack/internal/logging"
	"github.com/saeid-a/SessionLedgerBack/internal/notify"
	"github.com/saeid-a/SessionLedgerBack/internal/repository"
	"github.com/saeid-a/SessionLedgerBack/internal/routes"
	"github.com/saeid-a/SessionLedgerBack/internal/services"
	sessionws "github.com/saeid-a/SessionLedgerBack/internal/websocket"
)

func main() {
	// 1. Load Config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger := logging.New(os.Stdout, cfg.LogLevel, cfg.IsDevelopment())
	slog.SetDefault(appLogger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to Database
	if cfg.DBUrl == "" {
		log.Fatal("DB_URL is required")
	}
	pool, err := database.Connect(ctx, cfg.DBUrl)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	store := repository.NewPgStore(pool)

	// 3. Side effect channels
	var notifier services.Notifier = notify.NewLogNotifier(appLogger)
	if cfg.RedisEnabled() {
		redisClient, err := notify.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
		notifier = notify.NewRedisNotifier(redisClient, cfg.NotificationChannel)
		appLogger.Info("publishing notifications to redis", "channel", cfg.NotificationChannel)
	}

	hub := sessionws.NewHub(appLogger)
	go hub.Run(ctx)

	dispatcher := services.NewDispatcher(
		notifier,
		hub,
		services.NewConflictDetector(store),
		appLogger,
	).InBackground()
	sessionService := services.NewSessionService(store, dispatcher, services.SessionServiceConfig{
		Location:           cfg.ScheduleLocation,
		RecurringSlotLimit: cfg.RecurringSlotLimit,
		Logger:             appLogger,
	})
	allocationService := services.NewAllocationService(store, dispatcher, nil, appLogger)

	// 4. Setup Fiber
	app := fiber.New()

	// Middleware
	app.Use(cors.New())
	app.Use(logger.New())
	app.Use(recover.New())

	// Routes
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
		})
	})
	routes.RegisterRoutes(app, cfg, routes.Dependencies{
		Store:       store,
		Sessions:    sessionService,
		Allocations: allocationService,
		Hub:         hub,
		Logger:      appLogger,
	})

	go func() {
		<-ctx.Done()
		appLogger.Info("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			appLogger.Error("shutdown failed", "error", err)
		}
	}()

	// 5. Start Server
	appLogger.Info("server starting", "port", cfg.Port, "env", cfg.AppEnv)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := dispatcher.Wait(flushCtx); err != nil {
		appLogger.Warn("side effects still in flight at exit", "error", err)
	}
}
