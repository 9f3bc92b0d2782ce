package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                string
	DBUrl               string
	JWTSecret           string
	AppEnv              string
	LogLevel            slog.Level
	RedisURL            string
	NotificationChannel string
	ScheduleLocation    *time.Location
	RecurringSlotLimit  int
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found")
	}

	missing := make([]string, 0, 1)
	invalid := make([]string, 0, 3)

	jwtSecret, exists := os.LookupEnv("JWT_SECRET")
	if !exists || strings.TrimSpace(jwtSecret) == "" {
		missing = append(missing, "JWT_SECRET")
	}

	cfg := &Config{
		Port:                getEnv("PORT", "8080"),
		DBUrl:               getEnv("DB_URL", ""),
		JWTSecret:           jwtSecret,
		AppEnv:              normalizeEnv(getEnv("APP_ENV", "production")),
		LogLevel:            slog.LevelInfo,
		RedisURL:            strings.TrimSpace(getEnv("REDIS_URL", "")),
		NotificationChannel: getEnv("NOTIFICATION_CHANNEL", "session-notifications"),
		ScheduleLocation:    time.UTC,
		RecurringSlotLimit:  500,
	}

	if raw := strings.TrimSpace(getEnv("LOG_LEVEL", "")); raw != "" {
		level, err := parseLogLevel(raw)
		if err != nil {
			invalid = append(invalid, "LOG_LEVEL")
		} else {
			cfg.LogLevel = level
		}
	}

	if raw := strings.TrimSpace(getEnv("SCHEDULE_TIMEZONE", "")); raw != "" {
		loc, err := time.LoadLocation(raw)
		if err != nil {
			invalid = append(invalid, "SCHEDULE_TIMEZONE")
		} else {
			cfg.ScheduleLocation = loc
		}
	}

	if raw := strings.TrimSpace(getEnv("RECURRING_SLOT_LIMIT", "")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			invalid = append(invalid, "RECURRING_SLOT_LIMIT")
		} else {
			cfg.RecurringSlotLimit = limit
		}
	}

	if strings.TrimSpace(cfg.NotificationChannel) == "" {
		invalid = append(invalid, "NOTIFICATION_CHANNEL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return nil, fmt.Errorf("invalid environment variables: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func parseLogLevel(value string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", value)
	}
}

func normalizeEnv(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "dev", "develop", "development", "local":
		return "development"
	case "prod", "production":
		return "production"
	case "stage", "staging":
		return "staging"
	case "test", "testing":
		return "test"
	default:
		return strings.ToLower(strings.TrimSpace(value))
	}
}

func (c *Config) IsDevelopment() bool {
	return c != nil && c.AppEnv == "development"
}

// RedisEnabled reports whether notifications should be published to Redis
// instead of only being logged.
func (c *Config) RedisEnabled() bool {
	return c != nil && c.RedisURL != ""
}
