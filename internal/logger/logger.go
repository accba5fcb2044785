package logger

import (
	"io"
	"log/slog"
	"os"
)

// InitJSONLogger configures and sets the default slog logger to use JSON format.
// Debug mode lowers the level so repository and worker details are emitted as well.
func InitJSONLogger(debug bool) {
	slog.SetDefault(New(os.Stdout, debug))
}

// New returns a JSON logger writing to w.
func New(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
