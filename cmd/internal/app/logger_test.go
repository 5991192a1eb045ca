package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" INFO ":  slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"Warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"trace":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLogLevel(in); got != want {
			t.Fatalf("parseLogLevel(%q)=%v want=%v", in, got, want)
		}
	}
}

func TestNewLogHandler_JSONByDefault(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newLogHandler(&buf, "info", ""))
	log.Info("auth.reissue.success", "namespace", "user", "rotated", true)
	log.Debug("renewal.start")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected debug to be filtered, got %d lines: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("json line: %v", err)
	}
	if rec["msg"] != "auth.reissue.success" || rec["namespace"] != "user" || rec["rotated"] != true {
		t.Fatalf("unexpected record %v", rec)
	}
	if _, ok := rec["source"]; !ok {
		t.Fatalf("expected source location in %v", rec)
	}
}

func TestNewLogHandler_Pretty(t *testing.T) {
	t.Parallel()

	for _, format := range []string{"pretty", "TEXT"} {
		var buf bytes.Buffer
		log := slog.New(newLogHandler(&buf, "debug", format))
		log.Debug("renewal.start", "attempt_id", "01J0000000000000000000000A")

		got := stripANSI(buf.String())
		if !strings.Contains(got, "lvl=[DEBUG]") || !strings.Contains(got, "attempt=01J0000000000000000000000A") {
			t.Fatalf("format %q: unexpected line %q", format, got)
		}
	}
}
