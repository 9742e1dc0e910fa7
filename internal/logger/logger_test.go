package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func decodeLine(t *testing.T, raw []byte) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(raw, &entry); err != nil {
		t.Fatalf("JSONログのパースに失敗: %v\nraw: %s", err, raw)
	}
	return entry
}

func TestSetup_WritesJSON(t *testing.T) {
	var buf bytes.Buffer
	Setup(&buf).Warn("fetch failed",
		slog.String("entity", "nicolive"),
		slog.String("reason", "timeout"),
		slog.Int("http_status", 503),
	)

	entry := decodeLine(t, buf.Bytes())
	want := map[string]any{
		"msg":         "fetch failed",
		"level":       "WARN",
		"entity":      "nicolive",
		"reason":      "timeout",
		"http_status": float64(503),
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("%s = %v, want %v", k, entry[k], v)
		}
	}
	if _, ok := entry["time"]; !ok {
		t.Error("timeフィールドがありません")
	}
}

func TestSetupDefault_SetsGlobalLogger(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	SetupDefault(&buf)
	slog.Info("global test", slog.String("entity", "ytlive"))

	entry := decodeLine(t, buf.Bytes())
	if entry["msg"] != "global test" || entry["entity"] != "ytlive" {
		t.Errorf("entry = %v, want msg=global test entity=ytlive", entry)
	}
}

func TestNew_JSONFormatRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l, closer, err := New(Options{Format: "json", Level: "warn", Writer: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer closer.Close()

	l.Info("hidden")
	l.Warn("shown", slog.String("entity", "nicolive"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 log line, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("failed to parse JSON: %v", err)
	}
	if entry["msg"] != "shown" || entry["entity"] != "nicolive" {
		t.Errorf("unexpected entry: %v", entry)
	}
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	l, closer, err := New(Options{Format: "text", Writer: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer closer.Close()

	l.Info("text message", slog.String("entity", "ytlive"))

	out := buf.String()
	if !strings.Contains(out, "text message") || !strings.Contains(out, "ytlive") {
		t.Errorf("unexpected text output: %q", out)
	}
	if json.Valid([]byte(strings.TrimSpace(out))) {
		t.Errorf("expected non-JSON output for text format, got %q", out)
	}
}

func TestNew_WritesLogFile(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	l, closer, err := New(Options{Dir: dir, Writer: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	l.Info("to file")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, logFileName))
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "to file") {
		t.Errorf("log file does not contain message: %q", data)
	}
	if !strings.Contains(buf.String(), "to file") {
		t.Errorf("writer does not contain message: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{" warning ", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
