package saver

import (
	"context"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"

	"github.com/openquant/feedbridge/internal/model"
)

// ParquetSaver writes one parquet file per symbol.
type ParquetSaver struct {
	dir string
}

func (s *ParquetSaver) Save(_ context.Context, symbol string, data []model.BaseData) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}

	path := filepath.Join(s.dir, fileName(symbol, "parquet"))
	return parquet.WriteFile(path, toRecords(symbol, data))
}

func (s *ParquetSaver) Close() error { return nil }
