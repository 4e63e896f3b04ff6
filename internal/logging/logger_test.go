package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"mediasync/internal/services"
)

func TestConsoleHandlerFormatsLine(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	lvl.Set(slog.LevelInfo)
	logger := slog.New(newConsoleHandler(&buf, lvl))

	logger.Info("download complete",
		String(FieldComponent, "worker"),
		String(FieldMediaID, "abc"),
	)

	line := buf.String()
	if !strings.Contains(line, "INFO") {
		t.Fatalf("missing level: %q", line)
	}
	if !strings.Contains(line, "[worker]") {
		t.Fatalf("missing component: %q", line)
	}
	if !strings.Contains(line, "media_id=abc") {
		t.Fatalf("missing attribute: %q", line)
	}
}

func TestConsoleHandlerHonorsLevel(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	lvl.Set(slog.LevelWarn)
	logger := slog.New(newConsoleHandler(&buf, lvl))

	logger.Info("suppressed")
	if buf.Len() != 0 {
		t.Fatalf("expected info record suppressed, got %q", buf.String())
	}
	logger.Warn("emitted")
	if !strings.Contains(buf.String(), "emitted") {
		t.Fatalf("expected warn record, got %q", buf.String())
	}
}

func TestWithContextAddsTaskFields(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, lvl))

	ctx := services.WithTaskID(context.Background(), 42)
	ctx = services.WithTaskKind(ctx, "media:download")
	WithContext(ctx, logger).Info("run")

	line := buf.String()
	if !strings.Contains(line, "task_id=42") {
		t.Fatalf("missing task id: %q", line)
	}
	if !strings.Contains(line, "task_kind=media:download") {
		t.Fatalf("missing task kind: %q", line)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "yaml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNewNopDiscards(t *testing.T) {
	logger := NewNop()
	logger.Error("ignored")
}
