package telemetry

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"chatty":  slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSetupLogger_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	setupLogger(&buf, "json", "info")
	defer setupLogger(&bytes.Buffer{}, "text", "error")

	buf.Reset()
	slog.Info("deal created", "deal_id", "d-1")

	var obj map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &obj); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if obj["msg"] != "deal created" || obj["deal_id"] != "d-1" {
		t.Errorf("unexpected record: %v", obj)
	}
}

func TestSetupLogger_TextOutput(t *testing.T) {
	var buf bytes.Buffer
	setupLogger(&buf, "text", "info")
	defer setupLogger(&bytes.Buffer{}, "text", "error")

	slog.Info("text test", "env", "development")
	if !strings.Contains(buf.String(), "env=development") {
		t.Errorf("text output missing attribute: %q", buf.String())
	}
}

func TestSetLogLevel_AppliesWithoutRebuild(t *testing.T) {
	var buf bytes.Buffer
	setupLogger(&buf, "json", "warn")
	defer setupLogger(&bytes.Buffer{}, "text", "error")

	buf.Reset()
	slog.Info("suppressed")
	if strings.Contains(buf.String(), "suppressed") {
		t.Fatal("info record written at warn level")
	}

	SetLogLevel("info")
	buf.Reset()
	slog.Info("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Fatal("info record missing after SetLogLevel(info)")
	}
}
