// Package notify hands session notifications to the delivery workers that
// send email, SMS and push messages.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/saeid-a/SessionLedgerBack/internal/services"
)

// NewRedisClient accepts either a redis:// URL or a bare host:port address.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	var opts *redis.Options
	if strings.Contains(redisURL, "://") {
		parsed, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: redisURL, DB: 0}
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	slog.Info("redis connected", "addr", opts.Addr)
	return client, nil
}

type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Envelope is the message delivery workers consume from the channel.
type Envelope struct {
	ID         string                    `json:"id"`
	Kind       services.NotificationKind `json:"kind"`
	SessionID  int64                     `json:"session_id"`
	Recipients []int64                   `json:"recipients"`
	Payload    map[string]any            `json:"payload,omitempty"`
	CreatedAt  time.Time                 `json:"created_at"`
}

type RedisNotifier struct {
	client  publisher
	channel string
}

func NewRedisNotifier(client publisher, channel string) *RedisNotifier {
	return &RedisNotifier{client: client, channel: channel}
}

func (n *RedisNotifier) Notify(ctx context.Context, notification services.Notification) error {
	if len(notification.Recipients) == 0 {
		return nil
	}

	body, err := json.Marshal(Envelope{
		ID:         notification.ID,
		Kind:       notification.Kind,
		SessionID:  notification.SessionID,
		Recipients: notification.Recipients,
		Payload:    notification.Payload,
		CreatedAt:  notification.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	if err := n.client.Publish(ctx, n.channel, body).Err(); err != nil {
		return fmt.Errorf("publish notification %s: %w", notification.ID, err)
	}
	return nil
}

// LogNotifier only records notifications. It is used when no Redis is
// configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, notification services.Notification) error {
	n.logger.Info("session notification",
		"id", notification.ID,
		"kind", notification.Kind,
		"session_id", notification.SessionID,
		"recipients", notification.Recipients,
	)
	return nil
}
