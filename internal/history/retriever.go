package history

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openquant/feedbridge/internal/feed"
	"github.com/openquant/feedbridge/internal/logx"
	"github.com/openquant/feedbridge/internal/model"
	"github.com/openquant/feedbridge/internal/symbol"
)

// chainHandoffSize bounds the merge queue between chain workers and the
// single collecting reader.
const chainHandoffSize = 1024

// vendorClient is the lookup surface the retriever needs; satisfied by
// *feed.Client.
type vendorClient interface {
	History(ctx context.Context, params feed.HistoryParams) (<-chan json.RawMessage, error)
}

// chainResolver expands canonical derivatives into contracts; satisfied by
// *universe.Provider.
type chainResolver interface {
	Chain(ctx context.Context, canonical model.Instrument, includeExpired bool) ([]model.Instrument, error)
}

// Options configure a Retriever.
type Options struct {
	// VendorZone is the zone vendor-local timestamps are expressed in.
	VendorZone *time.Location
	// Workers bounds parallel contract-chain downloads.
	Workers int
	// SpoolDir holds temporary download artifacts.
	SpoolDir string
}

// Retriever fetches historical data. The zero value is not usable; construct
// with NewRetriever.
type Retriever struct {
	client vendorClient
	chains chainResolver
	logger *slog.Logger
	warn   *logx.Dedup
	spool  *spool

	vendorZone *time.Location
	workers    int

	now func() time.Time
}

// NewRetriever creates a history retriever.
func NewRetriever(client vendorClient, chains chainResolver, opts Options, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.VendorZone == nil {
		opts.VendorZone = time.UTC
	}
	if opts.Workers < 1 {
		opts.Workers = 8
	}
	if opts.SpoolDir == "" {
		opts.SpoolDir = filepath.Join(os.TempDir(), "feedbridge-spool")
	}

	return &Retriever{
		client:     client,
		chains:     chains,
		logger:     logger,
		warn:       logx.NewDedup(logger),
		spool:      newSpool(opts.SpoolDir, logger),
		vendorZone: opts.VendorZone,
		workers:    opts.Workers,
		now:        time.Now,
	}
}

// Close deletes any spool artifacts still on disk.
func (r *Retriever) Close() error {
	r.spool.clear()
	return nil
}

// FetchHistory runs one historical request. A nil, nil return is the
// nothing-result: the request was rejected or the vendor had no data.
// Validation rejections never contact the vendor.
func (r *Retriever) FetchHistory(ctx context.Context, req model.HistoryRequest) ([]model.BaseData, error) {
	if err := r.validate(req); err != nil {
		return nil, nil
	}

	if req.Instrument.IsDerivative() && req.Instrument.IsCanonical() {
		return r.fetchChain(ctx, req)
	}
	return r.fetchOne(ctx, req)
}

// validate rejects requests the vendor cannot serve. Each distinct reason
// logs at most once per process.
func (r *Retriever) validate(req model.HistoryRequest) error {
	switch req.Instrument.Kind {
	case model.KindEquity, model.KindOption, model.KindFuture, model.KindForex:
	default:
		r.warn.WarnOnce("unsupported_kind",
			"history not supported for security kind, skipping",
			"kind", req.Instrument.Kind.String(),
		)
		return ErrUnsupportedSecurityType
	}

	if req.TickKind == model.TickOpenInterest {
		r.warn.WarnOnce("oi_history",
			"open interest history is not available, skipping",
		)
		return ErrUnsupportedTickType
	}

	if req.TickKind == model.TickQuote && req.Resolution != model.ResTick {
		r.warn.WarnOnce("quote_nontick",
			"quote history is only available at tick resolution, skipping",
			"resolution", req.Resolution.String(),
		)
		return ErrUnsupportedTickType
	}

	if req.End.Before(req.Start) {
		r.warn.WarnOnce("invalid_range",
			"history request end precedes start, skipping",
		)
		return ErrInvalidDateRange
	}

	return nil
}

func (r *Retriever) fetchOne(ctx context.Context, req model.HistoryRequest) ([]model.BaseData, error) {
	ticker, err := symbol.ToVendorTicker(req.Instrument)
	if err != nil || ticker == "" {
		r.warn.WarnOnce("unresolvable:"+req.Instrument.Ticker,
			"cannot resolve vendor ticker, skipping",
			"ticker", req.Instrument.Ticker,
			"error", err,
		)
		return nil, nil
	}

	key := spoolKey(ticker, req.Resolution, req.TickKind, req.Start, req.End)
	if rows, ok := r.spool.take(key); ok {
		r.logger.Debug("replaying spooled history", "symbol", ticker, "rows", len(rows))
		return r.convert(req, rows), nil
	}

	rowCh, err := r.client.History(ctx, r.submitParams(ticker, req))
	if err != nil {
		r.logger.Warn("history request failed", "symbol", ticker, "error", err)
		return nil, nil
	}

	var rows []feed.HistoryRow
	for raw := range rowCh {
		var row feed.HistoryRow
		if err := json.Unmarshal(raw, &row); err != nil {
			r.logger.Warn("unparseable history row", "symbol", ticker, "error", err)
			continue
		}
		rows = append(rows, row)
	}

	if err := r.spool.put(key, rows); err != nil {
		r.logger.Warn("failed to spool history artifact", "symbol", ticker, "error", err)
	}

	return r.convert(req, rows), nil
}

// submitParams maps a request onto vendor history parameters. UTC bounds
// become vendor-local naive timestamps; an end within one minute of now is
// omitted so the vendor streams until caught up.
func (r *Retriever) submitParams(ticker string, req model.HistoryRequest) feed.HistoryParams {
	params := feed.HistoryParams{
		Symbol:   ticker,
		Interval: int(req.Resolution.Duration() / time.Second),
		Start:    req.Start.In(r.vendorZone).Format(feed.VendorTimeLayout),
	}
	if r.now().Sub(req.End) > time.Minute {
		params.End = req.End.In(r.vendorZone).Format(feed.VendorTimeLayout)
	}
	return params
}

// convert turns vendor rows into ticks or bars in the request's data time
// zone. Out-of-order rows are dropped, never reordered; at resolutions
// coarser than tick, rows repeating an accepted start timestamp are dropped
// as well.
func (r *Retriever) convert(req model.HistoryRequest, rows []feed.HistoryRow) []model.BaseData {
	loc := req.DataTimeZone
	if loc == nil {
		loc = time.UTC
	}

	var (
		out      []model.BaseData
		last     time.Time
		accepted bool
	)

	for _, row := range rows {
		ts, err := feed.ParseVendorTime(row.Ts, r.vendorZone)
		if err != nil {
			r.logger.Warn("unparseable history timestamp", "ts", row.Ts, "error", err)
			continue
		}
		ts = ts.In(loc)

		if req.Resolution == model.ResTick {
			if row.Basis == "O" {
				continue // non-price-affecting resample
			}
			if accepted && ts.Before(last) {
				r.logger.Debug("dropping out-of-order tick", "ts", row.Ts)
				continue
			}
			out = append(out, &model.Tick{
				Inst: req.Instrument,
				TS:   ts,
				Kind: req.TickKind,
				Price: row.Last,
				Size:  row.LastSize,
				Bid:   row.Bid,
				Ask:   row.Ask,
			})
		} else {
			if accepted && !ts.After(last) {
				r.logger.Debug("dropping out-of-order bar", "ts", row.Ts)
				continue
			}
			out = append(out, &model.Bar{
				Inst:   req.Instrument,
				Start:  ts,
				End:    ts.Add(req.Resolution.Duration()),
				Open:   row.Open,
				High:   row.High,
				Low:    row.Low,
				Close:  row.Close,
				Volume: row.Volume,
			})
		}

		last = ts
		accepted = true
	}

	return out
}

// fetchChain expands a canonical derivative into its contracts and downloads
// them over a bounded worker pool. Results interleave arbitrarily across
// contracts; within a contract, ordering stays monotone. A per-request
// seen-start set drops duplicate bar starts within a contract's merged rows.
func (r *Retriever) fetchChain(ctx context.Context, req model.HistoryRequest) ([]model.BaseData, error) {
	contracts, err := r.chains.Chain(ctx, req.Instrument, true)
	if err != nil {
		r.logger.Warn("chain expansion failed", "ticker", req.Instrument.Ticker, "error", err)
		return nil, nil
	}
	if len(contracts) == 0 {
		return nil, nil
	}

	handoff := make(chan model.BaseData, chainHandoffSize)

	type startKey struct {
		inst model.Instrument
		ts   int64
	}

	done := make(chan struct{})
	var out []model.BaseData
	go func() {
		defer close(done)
		seen := make(map[startKey]struct{})
		for d := range handoff {
			if bar, ok := d.(*model.Bar); ok {
				k := startKey{inst: bar.Inst, ts: bar.Start.UnixNano()}
				if _, dup := seen[k]; dup {
					continue
				}
				seen[k] = struct{}{}
			}
			out = append(out, d)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for _, contract := range contracts {
		sub := req
		sub.Instrument = contract
		g.Go(func() error {
			recs, err := r.fetchOne(gctx, sub)
			if err != nil {
				return err
			}
			for _, d := range recs {
				select {
				case handoff <- d:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}

	err = g.Wait()
	close(handoff)
	<-done

	if err != nil {
		r.logger.Warn("chain download incomplete", "ticker", req.Instrument.Ticker, "error", err)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}
