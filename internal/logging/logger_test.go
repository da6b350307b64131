package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestJSONHandlerFieldNames(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newJSONHandler(&buf, lvl)).With(String(FieldComponent, "worker"))

	logger.Info("stage started", Int64(FieldJobID, 42), String(FieldStage, "download"))

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("log line is not JSON: %v: %s", err, buf.String())
	}
	if record["msg"] != "stage started" {
		t.Errorf("msg = %v", record["msg"])
	}
	if record["level"] != "info" {
		t.Errorf("level = %v", record["level"])
	}
	if record["component"] != "worker" {
		t.Errorf("component = %v", record["component"])
	}
	if record["job_id"] != float64(42) {
		t.Errorf("job_id = %v", record["job_id"])
	}
	if _, ok := record["ts"]; !ok {
		t.Error("ts field missing")
	}
}

func TestConsoleHandlerLine(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	lvl.Set(slog.LevelDebug)
	logger := slog.New(newConsoleHandler(&buf, lvl)).With(String(FieldComponent, "ingest-scan"))

	logger.Warn("manifest skipped", String("manifest", "job_2026.xlsx"), Int("jobs", 0))

	line := buf.String()
	for _, want := range []string{"WARN", "ingest-scan", "manifest skipped", "manifest=job_2026.xlsx", "jobs=0"} {
		if !strings.Contains(line, want) {
			t.Errorf("console line missing %q: %s", want, line)
		}
	}
	if strings.Count(line, "\n") != 1 {
		t.Errorf("console output is not a single line: %q", line)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"bogus": slog.LevelInfo,
	}
	for input, want := range cases {
		if got := parseLevel(input); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := NewNop()
	logger.Error("must not panic", Error(nil))
}
