package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/pscheid92/aarelay/internal/platform/correlation"
)

// InitLogger installs a stdout logger as the slog default.
// level: "debug", "info", "warn", "error" (defaults to "info")
// format: "json" or "text" (defaults to "text")
func InitLogger(level, format string) {
	slog.SetDefault(New(os.Stdout, level, format))
}

// New builds a correlation-aware logger writing to w.
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
	}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(correlation.NewHandler(handler))
}

func ParseLevel(level string) slog.Level {
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

// WithUserOp returns a logger with user_op_hash and sender fields.
func WithUserOp(logger *slog.Logger, userOpHash, sender string) *slog.Logger {
	return logger.With("user_op_hash", userOpHash, "sender", sender)
}
