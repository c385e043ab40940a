package contextutil

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestLoggerFromContext(t *testing.T) {
	if got := LoggerFromContext(context.Background()); got != slog.Default() {
		t.Errorf("LoggerFromContext() without logger should return slog.Default()")
	}

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	ctx := WithLogger(context.Background(), logger)
	if got := LoggerFromContext(ctx); got != logger {
		t.Errorf("LoggerFromContext() = %v, want stored logger", got)
	}

	bad := context.WithValue(context.Background(), loggerKey, "not a logger")
	if got := LoggerFromContext(bad); got != slog.Default() {
		t.Errorf("LoggerFromContext() with wrong type should return slog.Default()")
	}
}

func TestWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	ctx := WithLogger(context.Background(), logger.With("request_id", "abc"))
	ctx = WithAttrs(ctx, "file", "report.pdf")

	LoggerFromContext(ctx).Info("ingesting")

	out := buf.String()
	for _, want := range []string{"request_id=abc", "file=report.pdf", "msg=ingesting"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output %q missing %q", out, want)
		}
	}
}
