package logger

import (
	"log/slog"
	"os"
)

// New returns the process logger writing key-value text to stdout at the
// given level.
func New(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
