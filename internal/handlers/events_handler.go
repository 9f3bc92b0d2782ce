package handlers

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/saeid-a/SessionLedgerBack/internal/models"
	sessionws "github.com/saeid-a/SessionLedgerBack/internal/websocket"
	"github.com/saeid-a/SessionLedgerBack/pkg/utils"
)

// EventsHandler streams session broadcasts to connected dashboards.
type EventsHandler struct {
	hub       *sessionws.Hub
	jwtSecret string
}

func NewEventsHandler(hub *sessionws.Hub, jwtSecret string) *EventsHandler {
	return &EventsHandler{hub: hub, jwtSecret: jwtSecret}
}

func (h *EventsHandler) WebSocketAuth(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{"error": "WebSocket upgrade required"})
	}

	claims, err := h.parseWSClaims(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid or expired token"})
	}

	c.Locals("user_id", claims.UserID)
	c.Locals("role", string(models.ParseRole(claims.Role)))
	return c.Next()
}

func (h *EventsHandler) HandleWebSocket(conn *websocket.Conn) {
	userIDStr, _ := conn.Locals("user_id").(string)
	role, _ := conn.Locals("role").(string)
	userID, err := strconv.ParseInt(userIDStr, 10, 64)
	if err != nil {
		_ = conn.Close()
		return
	}

	client := sessionws.NewClient(h.hub, conn, userID, models.ParseRole(role))
	h.hub.Register(client)
	go client.WritePump()
	client.ReadPump()
}

func (h *EventsHandler) parseWSClaims(c *fiber.Ctx) (*utils.Claims, error) {
	tokenString := strings.TrimSpace(c.Query("token"))
	if tokenString == "" {
		authHeader := strings.TrimSpace(c.Get("Authorization"))
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				tokenString = parts[1]
			}
		}
	}

	if tokenString == "" {
		return nil, errors.New("missing token")
	}

	return utils.ValidateToken(tokenString, h.jwtSecret)
}
