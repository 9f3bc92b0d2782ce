package sessionws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/saeid-a/SessionLedgerBack/internal/models"
	"github.com/saeid-a/SessionLedgerBack/internal/services"
)

var ErrMessageChannelFull = errors.New("message channel is full")

// Hub fans session events out to connected subscribers. It implements
// services.Broadcaster and never blocks the caller.
type Hub struct {
	clients    map[int64]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan services.Event
	done       chan struct{}
	logger     *slog.Logger
}

type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID int64
	role   models.Role
	send   chan []byte

	mu     sync.Mutex
	closed bool
}

type Message struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	Priority  string `json:"priority,omitempty"`
	Payload   any    `json:"payload,omitempty"`
	Timestamp string `json:"timestamp"`
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[int64]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan services.Event, 64),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

func NewClient(hub *Hub, conn *websocket.Conn, userID int64, role models.Role) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		userID: userID,
		role:   role,
		send:   make(chan []byte, 32),
	}
}

// enqueue queues payload without blocking. It reports false when the client
// is closed or its buffer is full.
func (c *Client) enqueue(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Run owns the client registry until ctx is done. Register and Unregister
// return immediately once Run has exited.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for userID, set := range h.clients {
				for client := range set {
					client.close()
				}
				delete(h.clients, userID)
			}
			return
		case client := <-h.register:
			set, ok := h.clients[client.userID]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[client.userID] = set
			}
			set[client] = struct{}{}
		case client := <-h.unregister:
			set, ok := h.clients[client.userID]
			if !ok {
				continue
			}
			if _, exists := set[client]; exists {
				delete(set, client)
				client.close()
			}
			if len(set) == 0 {
				delete(h.clients, client.userID)
			}
		case event := <-h.broadcast:
			h.deliver(event)
		}
	}
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		client.close()
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
		client.close()
	}
}

// Broadcast queues the event for delivery. A full queue is reported instead
// of waiting for room.
func (h *Hub) Broadcast(_ context.Context, event services.Event) error {
	select {
	case h.broadcast <- event:
		return nil
	default:
		return ErrMessageChannelFull
	}
}

func (h *Hub) deliver(event services.Event) {
	timestamp := event.OccurredAt
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}
	encoded, err := json.Marshal(Message{
		Type:      string(event.Kind),
		ID:        event.ID,
		Priority:  event.Options.Priority,
		Payload:   event.Payload,
		Timestamp: timestamp.UTC().Format(time.RFC3339),
	})
	if err != nil {
		h.logger.Warn("session hub encode event", "kind", event.Kind, "error", err)
		return
	}

	for userID, set := range h.clients {
		if event.Options.ExcludeUserID != nil && *event.Options.ExcludeUserID == userID {
			continue
		}
		for client := range set {
			if !audienceIncludes(event.Options.Roles, client.role) {
				continue
			}
			if !client.enqueue(encoded) {
				delete(set, client)
				client.close()
			}
		}
		if len(set) == 0 {
			delete(h.clients, userID)
		}
	}
}

func audienceIncludes(roles []models.Role, role models.Role) bool {
	if len(roles) == 0 {
		return true
	}
	for _, allowed := range roles {
		if allowed == role {
			return true
		}
	}
	return false
}

// ReadPump keeps the connection alive and answers pings. Subscribers do not
// send anything else.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var incoming struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(payload, &incoming); err != nil || incoming.Type != "ping" {
			writeControl(c, "error", "unsupported message")
			continue
		}
		writeControl(c, "pong", "")
	}
}

func (c *Client) WritePump() {
	defer func() {
		_ = c.conn.Close()
	}()

	for payload := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

func writeControl(client *Client, kind, detail string) {
	message := Message{
		Type:      kind,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if detail != "" {
		message.Payload = map[string]string{"message": detail}
	}
	payload, err := json.Marshal(message)
	if err != nil {
		return
	}
	if !client.enqueue(payload) {
		client.hub.Unregister(client)
	}
}
