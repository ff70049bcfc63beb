package logger

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewWithFileWritesRotatedLog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keepbusy.log")
	l := New(Config{Level: "debug", File: path})
	l.Info("hello", "k", "v")

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not created: %v", err)
	}
	if !strings.Contains(string(b), "hello") {
		t.Fatalf("log file missing message: %q", string(b))
	}
}

func TestNewLevelFilters(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "warn.log")
	l := New(Config{Level: "warn", File: path})
	l.Info("dropped")
	l.Warn("kept")

	b, _ := os.ReadFile(path)
	s := string(b)
	if strings.Contains(s, "dropped") {
		t.Fatalf("info record not filtered at warn level: %q", s)
	}
	if !strings.Contains(s, "kept") {
		t.Fatalf("warn record missing: %q", s)
	}
}

func TestColorTextHandlerAddsColorCodes(t *testing.T) {
	var buf bytes.Buffer
	h := NewColorTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}, true)
	rec := slog.NewRecord(time.Now(), slog.LevelError, "boom", 0)
	if err := h.Handle(context.Background(), rec); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !strings.Contains(buf.String(), "\033[31m") {
		t.Fatalf("expected red escape for error level, got %q", buf.String())
	}
}
