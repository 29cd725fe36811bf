package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"error":   slog.LevelError,
		"info+2":  slog.LevelInfo + 2,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestConfigure_JSONHandler(t *testing.T) {
	Configure(Options{Level: "debug", JSON: true})
	t.Cleanup(func() { Configure(Options{}) })

	if _, ok := L().Handler().(*slog.JSONHandler); !ok {
		t.Fatalf("want JSON handler, got %T", L().Handler())
	}
	if !L().Enabled(t.Context(), slog.LevelDebug) {
		t.Fatal("debug level should be enabled")
	}
}

func TestTimer(t *testing.T) {
	var buf bytes.Buffer
	current.Store(newLogger(&buf, Options{Level: "debug"}))
	t.Cleanup(func() { Configure(Options{}) })

	Timer("render", "document", "invoice")()
	out := buf.String()
	if !strings.Contains(out, "msg=render") || !strings.Contains(out, "document=invoice") || !strings.Contains(out, "elapsed=") {
		t.Fatalf("timer record = %q", out)
	}
}
