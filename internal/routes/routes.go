package routes

import (
	"log/slog"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/saeid-a/SessionLedgerBack/internal/config"
	"github.com/saeid-a/SessionLedgerBack/internal/handlers"
	"github.com/saeid-a/SessionLedgerBack/internal/middleware"
	"github.com/saeid-a/SessionLedgerBack/internal/models"
	"github.com/saeid-a/SessionLedgerBack/internal/repository"
	"github.com/saeid-a/SessionLedgerBack/internal/services"
	sessionws "github.com/saeid-a/SessionLedgerBack/internal/websocket"
)

// Dependencies are the long lived components built in main and shared by
// every request.
type Dependencies struct {
	Store       repository.Store
	Sessions    *services.SessionService
	Allocations *services.AllocationService
	Hub         *sessionws.Hub
	Logger      *slog.Logger
}

func RegisterRoutes(app *fiber.App, cfg *config.Config, deps Dependencies) {
	authHandler := handlers.NewAuthHandler(deps.Store.Repos().Users, cfg.JWTSecret)
	sessionHandler := handlers.NewSessionHandler(deps.Sessions)
	orderHandler := handlers.NewOrderHandler(deps.Allocations)
	eventsHandler := handlers.NewEventsHandler(deps.Hub, cfg.JWTSecret)

	api := app.Group("/api")

	auth := api.Group("/auth")
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)
	auth.Get("/me", middleware.AuthRequired(cfg.JWTSecret), authHandler.Me)

	api.Use("/v1/ws", eventsHandler.WebSocketAuth)
	api.Get("/v1/ws", websocket.New(eventsHandler.HandleWebSocket))

	authProtected := api.Group("/v1",
		middleware.AuthRequired(cfg.JWTSecret),
		middleware.RequestLogger(deps.Logger),
	)

	sessions := authProtected.Group("/sessions")
	sessions.Get("", sessionHandler.ListSessions)
	sessions.Get("/stats", sessionHandler.Stats)
	sessions.Post("/available", sessionHandler.CreateAvailable)
	sessions.Post("/recurring", sessionHandler.CreateRecurring)
	sessions.Get("/:id", sessionHandler.GetSession)
	sessions.Post("/:id/book", sessionHandler.BookSession)
	sessions.Post("/:id/confirm", sessionHandler.ConfirmSession)
	sessions.Post("/:id/complete", sessionHandler.CompleteSession)
	sessions.Post("/:id/cancel", sessionHandler.CancelSession)
	sessions.Put("/:id/trainer", sessionHandler.AssignTrainer)

	orders := authProtected.Group("/orders", middleware.RequireRole(models.RoleAdmin))
	orders.Post("/:id/allocate", orderHandler.AllocateSessions)
}
