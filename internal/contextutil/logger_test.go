package contextutil

import (
	"context"
	"io"
	"log/slog"
	"testing"
)

func TestLoggerFromContext(t *testing.T) {
	ctx := context.Background()
	if got := LoggerFromContext(ctx); got != slog.Default() {
		t.Error("LoggerFromContext() without logger should return slog.Default()")
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if got := LoggerFromContext(WithLogger(ctx, logger)); got != logger {
		t.Error("LoggerFromContext() should return the logger stored by WithLogger()")
	}

	wrongType := context.WithValue(ctx, loggerKey, "not a logger")
	if got := LoggerFromContext(wrongType); got != slog.Default() {
		t.Error("LoggerFromContext() with a non-logger value should fall back to slog.Default()")
	}
}
