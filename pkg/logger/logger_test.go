package logger

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		expect    slog.Level
		expectErr bool
	}{
		{"debug", "debug", slog.LevelDebug, false},
		{"default-info", "", slog.LevelInfo, false},
		{"warn", "warn", slog.LevelWarn, false},
		{"warning-alias", "WARNING", slog.LevelWarn, false},
		{"error", "error", slog.LevelError, false},
		{"invalid", "verbose", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level, err := levelFromString(tt.input)
			if tt.expectErr {
				if err == nil {
					t.Fatalf("expected error for input %q", tt.input)
				}
				if !strings.Contains(err.Error(), "invalid log level") {
					t.Fatalf("unexpected error message: %v", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if level != tt.expect {
				t.Fatalf("expected %v, got %v", tt.expect, level)
			}
		})
	}
}

func TestInitAndL(t *testing.T) {
	prevDefault := slog.Default()
	t.Cleanup(func() {
		// reset singleton for other tests
		once = sync.Once{}
		global = nil
		slog.SetDefault(prevDefault)
	})

	logger, err := Init(Config{Level: "debug", Environment: "dev", WithSource: true})
	if err != nil {
		t.Fatalf("Init returned error: %v", err)
	}

	if logger == nil {
		t.Fatalf("Init returned nil logger")
	}

	if L() != logger {
		t.Fatalf("L did not return initialized logger")
	}

	// second init should return same instance without error
	logger2, err := Init(Config{Level: "info", Environment: "prod"})
	if err != nil {
		t.Fatalf("unexpected error on second init: %v", err)
	}
	if logger2 != logger {
		t.Fatalf("expected same logger instance on re-init")
	}
}

func TestNewWithRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "factlens.log")

	l, err := New(Config{Level: "info", Environment: "prod", File: path})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	l.Info("hello", "job_id", "abc")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !strings.Contains(string(data), `"job_id":"abc"`) {
		t.Fatalf("expected JSON line with job_id, got %q", string(data))
	}
}

func TestLogStage(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewJSONHandler(&buf, nil))

	LogStage(l, "job-1", "transcribing", "success", 1200, "")
	if !strings.Contains(buf.String(), `"stage":"transcribing"`) {
		t.Fatalf("missing stage attr: %s", buf.String())
	}
	if strings.Contains(buf.String(), "error_code") {
		t.Fatalf("unexpected error_code attr: %s", buf.String())
	}

	buf.Reset()
	LogStage(l, "job-1", "fact_checking", "error", 10, "PROVIDER_ERROR")
	if !strings.Contains(buf.String(), `"level":"ERROR"`) || !strings.Contains(buf.String(), `"error_code":"PROVIDER_ERROR"`) {
		t.Fatalf("expected error level line, got %s", buf.String())
	}
}
