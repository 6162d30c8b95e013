package saver

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/openquant/feedbridge/internal/model"
)

// JSONSaver writes one indented JSON array per symbol.
type JSONSaver struct {
	dir string
}

func (s *JSONSaver) Save(_ context.Context, symbol string, data []model.BaseData) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}

	f, err := os.Create(filepath.Join(s.dir, fileName(symbol, "json")))
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(toRecords(symbol, data))
}

func (s *JSONSaver) Close() error { return nil }
