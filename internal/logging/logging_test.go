package logging

import (
	"bytes"
	"log"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected LogLevel
		ok       bool
	}{
		{"debug", "debug", LevelDebug, true},
		{"info", "info", LevelInfo, true},
		{"warn", "warn", LevelWarn, true},
		{"warning alias", "warning", LevelWarn, true},
		{"error", "error", LevelError, true},
		{"case insensitive", "DEBUG", LevelDebug, true},
		{"surrounding space", "  error ", LevelError, true},
		{"empty", "", LevelInfo, false},
		{"unknown", "verbose", LevelInfo, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level, ok := ParseLevel(tt.input)
			if ok != tt.ok {
				t.Errorf("Expected ok=%v, got %v", tt.ok, ok)
			}
			if level != tt.expected {
				t.Errorf("Expected level %v, got %v", tt.expected, level)
			}
		})
	}
}

func TestLogLevelConstants(t *testing.T) {
	if LevelDebug >= LevelInfo {
		t.Error("LevelDebug should be less than LevelInfo")
	}
	if LevelInfo >= LevelWarn {
		t.Error("LevelInfo should be less than LevelWarn")
	}
	if LevelWarn >= LevelError {
		t.Error("LevelWarn should be less than LevelError")
	}
}

func TestSetLevelFiltersOutput(t *testing.T) {
	var buf bytes.Buffer
	orig := log.Writer()
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(orig)
		SetLevel("info")
	})

	if !SetLevel("warn") {
		t.Fatal("SetLevel(warn) should succeed")
	}
	if GetLevel() != LevelWarn {
		t.Fatalf("Expected level warn, got %v", GetLevel())
	}

	Debug("debug message")
	Info("info message")
	Warn("warn message")
	Error("error message")

	out := buf.String()
	if strings.Contains(out, "debug message") || strings.Contains(out, "info message") {
		t.Errorf("Messages below warn should be filtered, got %q", out)
	}
	if !strings.Contains(out, "[WARN] warn message") {
		t.Errorf("Expected warn message in output, got %q", out)
	}
	if !strings.Contains(out, "[ERROR] error message") {
		t.Errorf("Expected error message in output, got %q", out)
	}
}

func TestSetLevelRejectsUnknown(t *testing.T) {
	before := GetLevel()
	if SetLevel("chatty") {
		t.Error("SetLevel should reject unknown level names")
	}
	if GetLevel() != before {
		t.Errorf("Level changed after rejected SetLevel: %v -> %v", before, GetLevel())
	}
}

func TestLogLevelString(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{LevelDebug, "debug"},
		{LevelInfo, "info"},
		{LevelWarn, "warn"},
		{LevelError, "error"},
		{LogLevel(42), "unknown(42)"},
	}

	for _, tt := range tests {
		if got := tt.level.String(); got != tt.expected {
			t.Errorf("LogLevel(%d).String() = %q, want %q", tt.level, got, tt.expected)
		}
	}
}
