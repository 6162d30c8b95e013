package saver

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"

	"github.com/openquant/feedbridge/internal/model"
)

var csvHeader = []string{
	"symbol", "type", "ts", "price", "size", "bid", "ask",
	"open", "high", "low", "close", "volume", "value", "factor",
}

// CSVSaver writes one CSV file per symbol.
type CSVSaver struct {
	dir string
}

func (s *CSVSaver) Save(_ context.Context, symbol string, data []model.BaseData) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}

	f, err := os.Create(filepath.Join(s.dir, fileName(symbol, "csv")))
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write(csvHeader); err != nil {
		return err
	}
	for _, rec := range toRecords(symbol, data) {
		row := []string{
			rec.Symbol,
			rec.Type,
			strconv.FormatInt(rec.Ts, 10),
			floatStr(rec.Price),
			strconv.FormatInt(rec.Size, 10),
			floatStr(rec.Bid),
			floatStr(rec.Ask),
			floatStr(rec.Open),
			floatStr(rec.High),
			floatStr(rec.Low),
			floatStr(rec.Close),
			strconv.FormatInt(rec.Volume, 10),
			strconv.FormatInt(rec.Value, 10),
			floatStr(rec.Factor),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

func (s *CSVSaver) Close() error { return nil }

func floatStr(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
