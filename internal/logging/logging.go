package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Setup builds the service's root slog logger and installs it as the
// default. Packages derive component loggers from it with
// logger.With("component", ...). The level string comes straight from the
// environment ("debug", "info", "warn", "error", any case); anything else
// means info.
func Setup(level string) *slog.Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
