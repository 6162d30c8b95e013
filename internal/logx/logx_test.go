package logx

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{" warn ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestDedupLogsOncePerKey(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	d := NewDedup(logger)

	for i := 0; i < 5; i++ {
		d.WarnOnce("invalid-range", "rejected request", "reason", "end before start")
	}
	d.WarnOnce("unsupported-kind", "rejected request", "reason", "unsupported security kind")

	out := buf.String()
	if got := strings.Count(out, "end before start"); got != 1 {
		t.Errorf("first key logged %d times, want 1", got)
	}
	if got := strings.Count(out, "unsupported security kind"); got != 1 {
		t.Errorf("second key logged %d times, want 1", got)
	}
}

func TestDedupSeparatesLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	d := NewDedup(logger)

	d.ErrorOnce("io", "vendor failure")
	d.ErrorOnce("io", "vendor failure")

	if got := strings.Count(buf.String(), "vendor failure"); got != 1 {
		t.Errorf("error key logged %d times, want 1", got)
	}
}
