package plog

import (
	"bytes"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(LevelWarn, &buf)

	l.Debugf("should not appear")
	l.Warnf("should appear %d", 1)
	l.Errorf("should appear %d", 2)

	out := buf.String()
	if strings.Contains(out, "should not appear") {
		t.Fatalf("debug line leaked through at LevelWarn: %q", out)
	}
	if !strings.Contains(out, "should appear 1") || !strings.Contains(out, "should appear 2") {
		t.Fatalf("expected warn/error lines, got %q", out)
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	var l *Logger
	l.Debugf("no panic please")
	l.Warnf("no panic please")
	l.Errorf("no panic please")
}
