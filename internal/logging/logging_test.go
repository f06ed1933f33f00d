package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewTextLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "info", Output: &buf, Component: "image-ingest"})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	logger.Debug("hidden")
	logger.Info("image-ingest: frame received", "seq", 3)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug record written at info level: %s", out)
	}
	for _, want := range []string{"frame received", "seq=3", "component=image-ingest"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %s", want, out)
		}
	}
}

func TestNewJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "warn", Format: "JSON", Output: &buf})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	logger.Info("dropped")
	logger.Warn("image-ingest: empty frame", "size", "0x0")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not a single JSON record: %v\n%s", err, buf.String())
	}
	if rec["level"] != "WARN" || rec["size"] != "0x0" {
		t.Errorf("record = %v", rec)
	}
}

func TestNewInvalidFormat(t *testing.T) {
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Error("xml format accepted")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" INFO ":  slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"loud":    slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
