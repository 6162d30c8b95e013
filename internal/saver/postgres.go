package saver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openquant/feedbridge/internal/config"
	"github.com/openquant/feedbridge/internal/database"
	"github.com/openquant/feedbridge/internal/model"
)

// PostgresSaver batches records into the market_data table.
type PostgresSaver struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresSaver connects a pool for the postgres output target.
func NewPostgresSaver(ctx context.Context, cfg config.DBConfig, logger *slog.Logger) (*PostgresSaver, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := database.Connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres saver: %w", err)
	}
	return &PostgresSaver{pool: pool, logger: logger}, nil
}

func (s *PostgresSaver) Save(ctx context.Context, symbol string, data []model.BaseData) error {
	rows := toRecords(symbol, data)
	if len(rows) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO market_data (symbol, type, ts, price, size, bid, ask,
				open, high, low, close, volume, value, factor)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			ON CONFLICT (symbol, type, ts) DO NOTHING
		`, r.Symbol, r.Type, r.Ts, r.Price, r.Size, r.Bid, r.Ask,
			r.Open, r.High, r.Low, r.Close, r.Volume, r.Value, r.Factor)
	}

	start := time.Now()
	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	conflicts := 0
	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return fmt.Errorf("insert market data: %w", err)
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	s.logger.Debug("flushed records",
		"symbol", symbol,
		"count", len(rows),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
	return nil
}

func (s *PostgresSaver) Close() error {
	s.pool.Close()
	return nil
}
