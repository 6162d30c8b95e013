package history

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openquant/feedbridge/internal/feed"
	"github.com/openquant/feedbridge/internal/model"
)

// spool holds downloaded row sets as temporary artifacts so an identical
// follow-up request can replay one without hitting the vendor again. A key
// serves at most one replay: take evicts it and deletes the file. This is
// deliberately not a general cache.
type spool struct {
	dir    string
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]string // key -> artifact path
}

func newSpool(dir string, logger *slog.Logger) *spool {
	return &spool{
		dir:     dir,
		logger:  logger,
		entries: make(map[string]string),
	}
}

// spoolKey identifies one request shape; resolution and tick kind are part
// of the key so a bar download never masquerades as tick data.
func spoolKey(ticker string, res model.Resolution, kind model.TickKind, start, end time.Time) string {
	return fmt.Sprintf("%s|%s|%s|%d|%d", ticker, res, kind, start.Unix(), end.Unix())
}

// put writes rows to a fresh artifact and registers it under key. An
// existing artifact for the key is replaced.
func (s *spool) put(key string, rows []feed.HistoryRow) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create spool dir: %w", err)
	}

	path := filepath.Join(s.dir, uuid.New().String()+".spool")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create spool artifact: %w", err)
	}

	enc := json.NewEncoder(f)
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			f.Close()
			os.Remove(path)
			return fmt.Errorf("write spool artifact: %w", err)
		}
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("close spool artifact: %w", err)
	}

	s.mu.Lock()
	if old, ok := s.entries[key]; ok {
		os.Remove(old)
	}
	s.entries[key] = path
	s.mu.Unlock()

	return nil
}

// take replays and evicts the artifact for key. The file is deleted after
// reading regardless of read success.
func (s *spool) take(key string) ([]feed.HistoryRow, bool) {
	s.mu.Lock()
	path, ok := s.entries[key]
	if ok {
		delete(s.entries, key)
	}
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	defer os.Remove(path)

	f, err := os.Open(path)
	if err != nil {
		s.logger.Warn("spool artifact unreadable", "path", path, "error", err)
		return nil, false
	}
	defer f.Close()

	var rows []feed.HistoryRow
	dec := json.NewDecoder(f)
	for dec.More() {
		var row feed.HistoryRow
		if err := dec.Decode(&row); err != nil {
			s.logger.Warn("corrupt spool artifact", "path", path, "error", err)
			return nil, false
		}
		rows = append(rows, row)
	}
	return rows, true
}

// clear deletes every remaining artifact.
func (s *spool) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, path := range s.entries {
		os.Remove(path)
		delete(s.entries, key)
	}
}
