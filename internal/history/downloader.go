package history

import (
	"context"
	"log/slog"
	"time"

	"github.com/openquant/feedbridge/internal/model"
)

// fetcher abstracts the retriever for the bulk download path.
type fetcher interface {
	FetchHistory(ctx context.Context, req model.HistoryRequest) ([]model.BaseData, error)
}

// DownloadParams describes one bulk download run.
type DownloadParams struct {
	Instruments  []model.Instrument
	Resolution   model.Resolution
	TickKind     model.TickKind
	Start        time.Time
	End          time.Time
	DataTimeZone *time.Location
}

// Downloader is the bulk entry point over the retriever. It runs one
// request per instrument, sequentially; parallelism lives below it in the
// chain expansion path.
type Downloader struct {
	retriever fetcher
	logger    *slog.Logger
}

// NewDownloader creates a bulk downloader.
func NewDownloader(retriever fetcher, logger *slog.Logger) *Downloader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Downloader{retriever: retriever, logger: logger}
}

// Get downloads every instrument in params and returns the combined
// records. A nil, nil return means no instrument produced data.
func (d *Downloader) Get(ctx context.Context, params DownloadParams) ([]model.BaseData, error) {
	var out []model.BaseData

	for _, inst := range params.Instruments {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}

		recs, err := d.retriever.FetchHistory(ctx, model.HistoryRequest{
			Instrument:   inst,
			Resolution:   params.Resolution,
			TickKind:     params.TickKind,
			Start:        params.Start,
			End:          params.End,
			DataTimeZone: params.DataTimeZone,
		})
		if err != nil {
			return out, err
		}

		d.logger.Info("downloaded instrument",
			"ticker", inst.Ticker,
			"kind", inst.Kind.String(),
			"records", len(recs),
		)
		out = append(out, recs...)
	}

	return out, nil
}
