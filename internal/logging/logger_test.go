package logging_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"catchup/internal/logging"
)

func TestNewConsoleWritesFormattedLines(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "daemon.log")

	logger, err := logging.New(logging.Options{
		Level:       "info",
		Format:      "console",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	component := logging.NewComponentLogger(logger, "pipeline")
	component.Info("job submitted",
		logging.String(logging.FieldLectureID, "ELE130_2024-09-02_3f2504e0"),
		logging.String("title", "Forelesning 1"),
		logging.Int("attempt", 1))
	component.Debug("suppressed at info level")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)

	if !strings.Contains(line, " INFO pipeline: job submitted") {
		t.Fatalf("missing level and component prefix: %q", line)
	}
	if !strings.Contains(line, "lecture_id=ELE130_2024-09-02_3f2504e0") {
		t.Fatalf("missing plain attr: %q", line)
	}
	// Values containing spaces are quoted.
	if !strings.Contains(line, `title="Forelesning 1"`) {
		t.Fatalf("missing quoted attr: %q", line)
	}
	if !strings.Contains(line, "attempt=1") {
		t.Fatalf("missing int attr: %q", line)
	}
	if strings.Contains(line, "suppressed at info level") {
		t.Fatalf("debug record leaked through info level: %q", line)
	}
}

func TestWriterLoggerFlattensGroups(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWriterLogger(&buf, "debug")

	logger.WithGroup("job").Info("claimed",
		logging.String("id", "abc123"),
		logging.Error(errors.New("not really")))
	logger.Debug("visible at debug")

	out := buf.String()
	if !strings.Contains(out, "job.id=abc123") {
		t.Fatalf("group not flattened into dotted key: %q", out)
	}
	if !strings.Contains(out, `job.error="not really"`) {
		t.Fatalf("error attr not rendered under group: %q", out)
	}
	if !strings.Contains(out, " DEBUG visible at debug") {
		t.Fatalf("debug record missing at debug level: %q", out)
	}
}

func TestNewJSONUsesCompactFieldNames(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "daemon.json")

	logger, err := logging.New(logging.Options{
		Level:       "info",
		Format:      "json",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Warn("queue backlog", logging.Int("depth", 7))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(content, &record); err != nil {
		t.Fatalf("decode log line %q: %v", content, err)
	}
	if record["msg"] != "queue backlog" {
		t.Fatalf("msg = %v", record["msg"])
	}
	if record["level"] != "warn" {
		t.Fatalf("level = %v, want lowercase warn", record["level"])
	}
	if _, ok := record["ts"]; !ok {
		t.Fatalf("record has no ts field: %v", record)
	}
	if record["depth"] != float64(7) {
		t.Fatalf("depth = %v", record["depth"])
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "yaml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}
