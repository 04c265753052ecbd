package logging

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

// setupTestLogger configures a logger with a custom writer for tests
func setupTestLogger(output *bytes.Buffer, level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	SetLoggerForTest(zerolog.New(output).With().Timestamp().Logger().Level(lvl))
}

func TestInfoLogging(t *testing.T) {
	var buf bytes.Buffer
	setupTestLogger(&buf, "info")

	Info("request submitted", "request_id", 42, "cached", true)

	out := buf.String()
	if !strings.Contains(out, "request submitted") {
		t.Error("Expected log message not found in output")
	}
	if !strings.Contains(out, `"request_id":42`) || !strings.Contains(out, `"cached":true`) {
		t.Error("Expected key-value pairs not found in output")
	}
}

func TestErrorValuesAreRendered(t *testing.T) {
	var buf bytes.Buffer
	setupTestLogger(&buf, "info")

	Error("storage failed", "error", errors.New("disk full"))

	if !strings.Contains(buf.String(), `"error":"disk full"`) {
		t.Errorf("expected error field, got %q", buf.String())
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	setupTestLogger(&buf, "warn")

	Info("hidden")
	Warn("something odd", "code", 99)

	if strings.Contains(buf.String(), "hidden") {
		t.Error("info message should be filtered at warn level")
	}
	if !strings.Contains(buf.String(), `"code":99`) {
		t.Error("Warn log output missing expected content")
	}
}

func TestSetLogLevel(t *testing.T) {
	var buf bytes.Buffer
	setupTestLogger(&buf, "warn")

	SetLogLevel("info")
	Info("should be visible")

	if !strings.Contains(buf.String(), "should be visible") {
		t.Error("Expected info log after SetLogLevel not found")
	}
}

func TestDanglingKeyIsIgnored(t *testing.T) {
	var buf bytes.Buffer
	setupTestLogger(&buf, "info")

	Info("hello", "k", "v", "dangling")

	if strings.Contains(buf.String(), "dangling") {
		t.Errorf("dangling key should not be logged, got %q", buf.String())
	}
}

func TestInitLoggerWritesFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "nested", "broker.log")
	InitLogger(logFile, 1, 1, 1, false, "invalid")
	Info("to file", "k", "v")

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "to file") {
		t.Fatalf("expected message in log file, got %q", string(data))
	}
	SetLoggerForTest(zerolog.New(os.Stdout))
}
