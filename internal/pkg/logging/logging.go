package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Setup installs the global slog default logger.
// level is one of "debug", "info", "warn", "error"; anything else means
// "info". format is "json" or "text". Debug level also turns on source
// locations, which is the usual mode when chasing a misbehaving evaluation.
func Setup(level, format string) {
	lvl := parseLevel(level)

	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}

	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
