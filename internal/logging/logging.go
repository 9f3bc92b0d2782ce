package logging

import (
	"context"
	"io"
	"log/slog"
)

type contextKey struct{}

// New builds the process logger. Development gets human readable text,
// every other environment gets JSON lines.
func New(w io.Writer, level slog.Level, development bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if development {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// ContextWithLogger returns a derived context that carries the provided logger.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	if ctx == nil || logger == nil {
		return ctx
	}
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext extracts a logger previously attached to the context.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return nil
	}
	logger, _ := ctx.Value(contextKey{}).(*slog.Logger)
	return logger
}
