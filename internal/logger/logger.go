package logger

import (
	"io"
	"log/slog"
	"os"

	"github.com/gravitas-games/economy/internal/config"
)

// Setup configures the global slog logger based on environment
func Setup(cfg config.LogConfig) *slog.Logger {
	return New(cfg, os.Stdout)
}

// New builds a logger writing to w and installs it as the default.
func New(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel(),
	}

	if cfg.Environment == "production" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger
}

// WithSession adds the player and session ids to logger context
func WithSession(logger *slog.Logger, playerID, sessionID string) *slog.Logger {
	return logger.With("player", playerID, "session_id", sessionID)
}

// WithError adds error to logger context
func WithError(logger *slog.Logger, err error) *slog.Logger {
	return logger.With("error", err.Error())
}
