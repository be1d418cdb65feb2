package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

// TestNewWithWritersSplitsStreams verifies that info lines land on the
// stdout writer and warnings and errors on the stderr writer.
func TestNewWithWritersSplitsStreams(t *testing.T) {
	var stdout, stderr bytes.Buffer
	logger, err := NewWithWriters(Config{Level: "info", Format: "text"}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("NewWithWriters() error = %v", err)
	}

	logger.Info("client connected")
	logger.Warn("slow peer")
	logger.Error("write failed")
	logger.Debug("hidden")

	out := stdout.String()
	errOut := stderr.String()

	if !strings.Contains(out, "client connected") {
		t.Errorf("stdout missing info line: %q", out)
	}
	if strings.Contains(out, "write failed") || strings.Contains(out, "slow peer") {
		t.Errorf("stdout contains error lines: %q", out)
	}
	if !strings.Contains(errOut, "write failed") || !strings.Contains(errOut, "slow peer") {
		t.Errorf("stderr missing error lines: %q", errOut)
	}
	if strings.Contains(errOut, "client connected") {
		t.Errorf("stderr contains info line: %q", errOut)
	}
	if strings.Contains(out+errOut, "hidden") {
		t.Error("debug line written at info level")
	}
}

// TestNewWithWritersJSON verifies the json formatter is selected.
func TestNewWithWritersJSON(t *testing.T) {
	var stdout, stderr bytes.Buffer
	logger, err := NewWithWriters(Config{Level: "debug", Format: "JSON"}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("NewWithWriters() error = %v", err)
	}

	Component(logger, "hub").Debug("started")

	line := stdout.String()
	if !strings.HasPrefix(line, "{") || !strings.Contains(line, `"component":"hub"`) {
		t.Errorf("expected json line with component field, got %q", line)
	}
}

func TestNewRejectsInvalidSettings(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "unknown level", cfg: Config{Level: "loud"}},
		{name: "unknown format", cfg: Config{Format: "xml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Errorf("New(%+v) expected error", tt.cfg)
			}
		})
	}
}

func TestParseLevelDefaultsToInfo(t *testing.T) {
	level, err := ParseLevel("")
	if err != nil {
		t.Fatalf("ParseLevel(\"\") error = %v", err)
	}
	if level != logrus.InfoLevel {
		t.Errorf("ParseLevel(\"\") = %v, want info", level)
	}

	level, err = ParseLevel(" WARN ")
	if err != nil {
		t.Fatalf("ParseLevel(WARN) error = %v", err)
	}
	if level != logrus.WarnLevel {
		t.Errorf("ParseLevel(WARN) = %v, want warning", level)
	}
}
