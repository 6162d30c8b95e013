// Package logx provides slog setup helpers and a deduplicating logger used
// for validation rejections that would otherwise flood the log.
package logx

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

// ParseLevel converts a config string (debug|info|warn|error) to a
// slog.Level. Unknown strings map to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New creates a text logger writing to stderr at the given level string.
func New(level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: ParseLevel(level),
	}))
}

// Dedup wraps a logger and emits each distinct key once per process.
// Later calls with the same key are suppressed. There is no reset; the
// suppression set lives for the process lifetime.
type Dedup struct {
	logger *slog.Logger

	mu   sync.Mutex
	seen map[string]struct{}
}

// NewDedup creates a deduplicating logger. A nil logger falls back to
// slog.Default().
func NewDedup(logger *slog.Logger) *Dedup {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dedup{
		logger: logger,
		seen:   make(map[string]struct{}),
	}
}

// WarnOnce logs msg with args at Warn level the first time key is seen.
func (d *Dedup) WarnOnce(key, msg string, args ...any) {
	if d.first(key) {
		d.logger.Warn(msg, args...)
	}
}

// ErrorOnce logs msg with args at Error level the first time key is seen.
func (d *Dedup) ErrorOnce(key, msg string, args ...any) {
	if d.first(key) {
		d.logger.Error(msg, args...)
	}
}

func (d *Dedup) first(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[key]; ok {
		return false
	}
	d.seen[key] = struct{}{}
	return true
}
