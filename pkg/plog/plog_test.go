package plog

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func TestPlogLevels(t *testing.T) {
	var logBuf bytes.Buffer
	SetOutput(&logBuf)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(LevelInfo)
		SetQuiet(false)
	})

	t.Run("Logs all levels when level is Debug", func(t *testing.T) {
		logBuf.Reset()
		SetLevel(LevelDebug)

		Debug("debug message", "key", "val1")
		Info("info message", "key", "val2")
		Warn("warn message")

		output := logBuf.String()
		if !strings.Contains(output, "level=DEBUG msg=\"debug message\" key=val1") {
			t.Errorf("expected debug message to be logged. Got: %s", output)
		}
		if !strings.Contains(output, "level=INFO msg=\"info message\" key=val2") {
			t.Errorf("expected info message to be logged. Got: %s", output)
		}
		if !strings.Contains(output, "level=WARN msg=\"warn message\"") {
			t.Errorf("expected warn message to be logged. Got: %s", output)
		}
	})

	t.Run("Suppresses lower levels when level is Warn", func(t *testing.T) {
		logBuf.Reset()
		SetLevel(LevelWarn)

		Debug("debug message")
		Info("info message")

		output := logBuf.String()
		if strings.Contains(output, "level=DEBUG") || strings.Contains(output, "level=INFO") {
			t.Errorf("expected no debug or info output at warn level, but got: %s", output)
		}
	})

	t.Run("Logs Notice and above, but suppresses Debug", func(t *testing.T) {
		logBuf.Reset()
		SetLevel(LevelNotice)

		Debug("debug message")
		Notice("notice message", "key", "val1")
		Info("info message", "key", "val2")

		output := logBuf.String()
		if strings.Contains(output, "debug message") {
			t.Errorf("expected debug message to be suppressed at notice level. Got: %s", output)
		}
		if !strings.Contains(output, "level=NOTICE msg=\"notice message\" key=val1") {
			t.Errorf("expected notice message to be logged. Got: %s", output)
		}
		if !strings.Contains(output, "level=INFO msg=\"info message\" key=val2") {
			t.Errorf("expected info message to be logged. Got: %s", output)
		}
	})

	t.Run("Quiet mode keeps warnings", func(t *testing.T) {
		logBuf.Reset()
		SetLevel(LevelInfo)
		SetQuiet(true)
		defer SetQuiet(false)

		Info("info message")
		Error("error message")

		output := logBuf.String()
		if strings.Contains(output, "info message") {
			t.Errorf("expected info to be suppressed in quiet mode. Got: %s", output)
		}
		if !strings.Contains(output, "level=ERROR msg=\"error message\"") {
			t.Errorf("expected error message to be logged. Got: %s", output)
		}
	})
}

func TestLevelFromString(t *testing.T) {
	testCases := []struct {
		in   string
		want string
	}{
		{"debug", "DEBUG"},
		{"NOTICE", "DEBUG+2"},
		{"info", "INFO"},
		{" warn ", "WARN"},
		{"warning", "WARN"},
		{"error", "ERROR"},
		{"bogus", "INFO"},
		{"", "INFO"},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			if got := LevelFromString(tc.in).String(); got != tc.want {
				t.Errorf("LevelFromString(%q) = %s, want %s", tc.in, got, tc.want)
			}
		})
	}
}
