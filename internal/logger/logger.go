package logger

import (
	"log/slog"
	"os"
)

// Init installs the process-wide slog default. Every subprocess line the
// pipeline captures is re-emitted through this handler.
func Init(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}
