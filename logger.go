package main

import (
	"log/slog"
	"os"
	"strings"
)

// maxBodyLog caps HTTP bodies before they reach the debug log. Zero hides
// bodies entirely.
var maxBodyLog = 500

func initLogger(cfg Config) {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))

	maxBodyLog = cfg.MaxBodyLog
}

func truncateBody(body []byte) string {
	if maxBodyLog <= 0 {
		return "[hidden]"
	}
	if len(body) > maxBodyLog {
		return string(body[:maxBodyLog]) + "...(truncated)"
	}
	return string(body)
}
