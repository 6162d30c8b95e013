package saver

import (
	"github.com/openquant/feedbridge/internal/model"
)

// Record is the flat row shape shared by every output target. Ts is unix
// microseconds UTC. Price fields apply to ticks, OHLCV to bars, Value to
// open interest and Factor to splits.
type Record struct {
	Symbol string  `json:"symbol" parquet:"symbol"`
	Type   string  `json:"type" parquet:"type"`
	Ts     int64   `json:"ts" parquet:"ts"`
	Price  float64 `json:"price,omitempty" parquet:"price,optional"`
	Size   int64   `json:"size,omitempty" parquet:"size,optional"`
	Bid    float64 `json:"bid,omitempty" parquet:"bid,optional"`
	Ask    float64 `json:"ask,omitempty" parquet:"ask,optional"`
	Open   float64 `json:"open,omitempty" parquet:"open,optional"`
	High   float64 `json:"high,omitempty" parquet:"high,optional"`
	Low    float64 `json:"low,omitempty" parquet:"low,optional"`
	Close  float64 `json:"close,omitempty" parquet:"close,optional"`
	Volume int64   `json:"volume,omitempty" parquet:"volume,optional"`
	Value  int64   `json:"value,omitempty" parquet:"value,optional"`
	Factor float64 `json:"factor,omitempty" parquet:"factor,optional"`
}

// toRecords flattens mixed ticks, bars and splits into rows.
func toRecords(symbol string, data []model.BaseData) []Record {
	out := make([]Record, 0, len(data))
	for _, d := range data {
		rec := Record{Symbol: symbol, Ts: d.Time().UTC().UnixMicro()}

		switch v := d.(type) {
		case *model.Tick:
			rec.Type = v.Kind.String()
			rec.Price = v.Price
			rec.Size = v.Size
			rec.Bid = v.Bid
			rec.Ask = v.Ask
			rec.Value = v.Value
		case *model.Bar:
			rec.Type = "bar"
			rec.Open = v.Open
			rec.High = v.High
			rec.Low = v.Low
			rec.Close = v.Close
			rec.Volume = v.Volume
		case *model.SplitEvent:
			rec.Type = "split"
			rec.Factor = v.Factor
		default:
			continue
		}

		out = append(out, rec)
	}
	return out
}
