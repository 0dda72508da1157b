package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelInfo, Format: "json", Component: ComponentLedger, Output: &buf})
	l.Debug("hidden")
	l.Info("hello", FieldOwnerID, 7)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if rec["component"] != ComponentLedger || rec["msg"] != "hello" || rec[FieldOwnerID] != float64(7) {
		t.Fatalf("unexpected record %v", rec)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"loud":  slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("%q: got %v want %v", in, got, want)
		}
	}
}

func TestFromContextFallback(t *testing.T) {
	if FromContext(context.Background()).Component() != "unknown" {
		t.Fatalf("expected fallback logger")
	}
	l := New(DefaultConfig())
	if FromContext(NewContext(context.Background(), l)) != l {
		t.Fatalf("expected stored logger")
	}
}

func TestStructuredLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{Level: slog.LevelDebug, Format: "json", Output: &buf}))

	r := httptest.NewRequest("GET", "/api/finance", nil)
	sl.LogHTTPEnd(context.Background(), r, 503, 12, "10.0.0.1")
	sl.LogMutation(context.Background(), OpCreate, 1, "expense", 0, 6000, "failure", errors.New("db down"))

	out := buf.String()
	if strings.Count(out, `"level":"ERROR"`) != 2 {
		t.Fatalf("expected two error records, got %s", out)
	}
	if !strings.Contains(out, `"component":"http"`) || !strings.Contains(out, `"component":"ledger"`) {
		t.Fatalf("missing components in %s", out)
	}
}
