package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestLogger_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelDebug, Format: FormatJSON, Output: &buf})

	l.Infof("compiled mapping", map[string]any{"index": "orders"})

	var entry Entry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if entry.Level != "info" || entry.Message != "compiled mapping" {
		t.Errorf("unexpected entry: %+v", entry)
	}
	if entry.Fields["index"] != "orders" {
		t.Errorf("field missing: %+v", entry.Fields)
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelWarn, Format: FormatJSON, Output: &buf})

	l.Debug("hidden")
	l.Info("hidden")
	l.Warn("visible")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %q", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], "visible") {
		t.Errorf("wrong line: %q", lines[0])
	}
}

func TestLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelInfo, Format: FormatText, Output: &buf})

	l.WithRequestID("req-1").Infof("dry run", map[string]any{"rows": 3})

	out := buf.String()
	if !strings.Contains(out, "[INFO]") || !strings.Contains(out, "request_id=req-1") || !strings.Contains(out, "rows=3") {
		t.Errorf("unexpected text output: %q", out)
	}
}

func TestLogger_WithFieldsInherited(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelInfo, Format: FormatJSON, Output: &buf})

	child := l.With(map[string]any{"component": "engine"})
	child.Info("hello")

	var entry Entry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatal(err)
	}
	if entry.Fields["component"] != "engine" {
		t.Errorf("inherited field missing: %+v", entry.Fields)
	}
}

func TestFromCtx(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelInfo, Format: FormatJSON, Output: &buf})

	ctx := WithLoggerCtx(context.Background(), l)
	if got := FromCtx(ctx); got != l {
		t.Error("attached logger not returned")
	}

	ctx = WithRequestIDCtx(context.Background(), "abc")
	got := FromCtx(ctx)
	if got.RequestID() != "abc" {
		t.Errorf("request id = %q, want abc", got.RequestID())
	}
}
