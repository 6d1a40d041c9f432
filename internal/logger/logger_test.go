package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"headlines/internal/config"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(config.Logging{Level: "info", Format: "json"}, &buf)

	log.Debug("hidden")
	log.Info("pipeline finished", "articles", 20)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 record (debug filtered), got %d: %q", len(lines), buf.String())
	}

	var record map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &record); err != nil {
		t.Fatalf("record is not JSON: %v", err)
	}
	if record["msg"] != "pipeline finished" || record["articles"] != float64(20) {
		t.Errorf("unexpected record %v", record)
	}
}

func TestNewConsole(t *testing.T) {
	var buf bytes.Buffer
	log := New(config.Logging{Level: "debug", Format: "console"}, &buf)
	log.Info("index replaced", "collection", "highlights")

	out := buf.String()
	if !strings.Contains(out, "index replaced") || !strings.Contains(out, "highlights") {
		t.Errorf("console output missing fields: %q", out)
	}
	if strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Errorf("console output should not be raw JSON: %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestOrDiscard(t *testing.T) {
	var buf bytes.Buffer
	log := New(config.Logging{Level: "info"}, &buf)
	if OrDiscard(log) != log {
		t.Error("expected the given logger back")
	}

	discard := OrDiscard(nil)
	if discard == nil {
		t.Fatal("expected a logger for nil")
	}
	discard.Error("dropped")
	if buf.Len() != 0 {
		t.Errorf("unexpected output %q", buf.String())
	}
}
