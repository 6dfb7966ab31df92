package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"":        zapcore.InfoLevel,
		"DEBUG":   zapcore.DebugLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("unknown level accepted")
	}
}

func TestNew_FileSinkWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "tracker.log")

	log, err := New(Options{Level: "debug", File: path})
	if err != nil {
		t.Fatal(err)
	}
	log.Debug("refreshed", zap.String("key", "job-1"))
	_ = log.Sync()

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file: %v", err)
	}
	line := strings.TrimSpace(strings.Split(string(b), "\n")[0])
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("not json: %q", line)
	}
	if entry["msg"] != "refreshed" || entry["key"] != "job-1" || entry["level"] != "debug" {
		t.Errorf("entry = %v", entry)
	}
}

func TestNew_NoSinksIsNop(t *testing.T) {
	log, err := New(Options{})
	if err != nil || log == nil {
		t.Fatalf("log=%v err=%v", log, err)
	}
	log.Info("dropped")
}
