package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewWithWriterLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: slog.LevelInfo})

	logger.Debug("hidden")
	logger.Info("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug entry leaked through info level: %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("info entry missing: %q", out)
	}
}

func TestNewWithWriterDebugLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: slog.LevelDebug})

	logger.Debug("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Errorf("debug entry missing at debug level: %q", buf.String())
	}
}

func TestNewWithWriterJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{JSON: true})

	logger.Info("structured", "key", "value")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if entry["msg"] != "structured" {
		t.Errorf("msg %v, want %q", entry["msg"], "structured")
	}
	if entry["key"] != "value" {
		t.Errorf("key %v, want %q", entry["key"], "value")
	}
}

func TestNewWithWriterTextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{})

	logger.Info("plain", "key", "value")

	out := buf.String()
	if !strings.Contains(out, "msg=plain") || !strings.Contains(out, "key=value") {
		t.Errorf("text output missing fields: %q", out)
	}
}

func TestNewNopDiscards(t *testing.T) {
	logger := NewNop()
	if logger == nil {
		t.Fatal("NewNop returned nil")
	}
	// Must not panic at any level.
	logger.Debug("a")
	logger.Info("b")
	logger.Error("c")
}
