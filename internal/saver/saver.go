package saver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openquant/feedbridge/internal/config"
	"github.com/openquant/feedbridge/internal/model"
)

// Saver persists one symbol's downloaded records.
type Saver interface {
	Save(ctx context.Context, symbol string, data []model.BaseData) error
	Close() error
}

// New selects a saver by the configured output format.
func New(ctx context.Context, cfg config.OutputConfig, logger *slog.Logger) (Saver, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "csv":
		return &CSVSaver{dir: cfg.Dir}, nil
	case "json":
		return &JSONSaver{dir: cfg.Dir}, nil
	case "parquet":
		return &ParquetSaver{dir: cfg.Dir}, nil
	case "postgres":
		return NewPostgresSaver(ctx, cfg.Postgres, logger)
	}
	return nil, fmt.Errorf("unknown output format %q", cfg.Format)
}

// fileName flattens a symbol into a safe file name.
func fileName(symbol, ext string) string {
	return strings.NewReplacer("/", "_", "\\", "_", " ", "_").Replace(symbol) + "." + ext
}
