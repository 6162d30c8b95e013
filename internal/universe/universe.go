// Package universe resolves available contracts from the vendor's symbol
// lookup service and maps them to canonical instruments.
package universe

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/openquant/feedbridge/internal/feed"
	"github.com/openquant/feedbridge/internal/model"
	"github.com/openquant/feedbridge/internal/symbol"
)

// Searcher is the lookup-port surface the provider needs; satisfied by
// *feed.Client.
type Searcher interface {
	Search(ctx context.Context, params feed.SearchParams) (<-chan json.RawMessage, error)
}

// Provider answers symbol universe queries. Queries are pure but issue
// network I/O and may block; callers must not run them per tick.
type Provider struct {
	searcher Searcher
	logger   *slog.Logger
}

// NewProvider creates a universe provider over a lookup searcher.
func NewProvider(searcher Searcher, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{searcher: searcher, logger: logger}
}

// LookupSymbols queries the vendor and returns matching instruments with
// set semantics: duplicates collapse on structural identity. Currency and
// exchange filters the vendor lookup cannot apply natively are applied
// client-side.
func (p *Provider) LookupSymbols(ctx context.Context, filter model.LookupFilter) ([]model.Instrument, error) {
	rows, err := p.searcher.Search(ctx, feed.SearchParams{
		Pattern:        filter.Pattern,
		Kind:           filter.Kind.String(),
		IncludeExpired: filter.IncludeExpired,
	})
	if err != nil {
		return nil, err
	}

	seen := make(map[model.Instrument]struct{})
	var out []model.Instrument

	for raw := range rows {
		var row feed.SymbolRow
		if err := json.Unmarshal(raw, &row); err != nil {
			p.logger.Warn("unparseable symbol row", "error", err)
			continue
		}

		if row.Expired && !filter.IncludeExpired {
			continue
		}
		if filter.Currency != "" && row.Currency != filter.Currency {
			continue
		}
		if filter.Exchange != "" && row.Exchange != filter.Exchange {
			continue
		}

		kind, ok := parseKind(row.Kind)
		if !ok || kind != filter.Kind {
			continue
		}

		inst, err := symbol.ToInstrument(row.Symbol, kind, row.Market)
		if err != nil {
			p.logger.Warn("skipping untranslatable symbol",
				"symbol", row.Symbol,
				"kind", row.Kind,
				"error", err,
			)
			continue
		}

		if _, dup := seen[inst]; dup {
			continue
		}
		seen[inst] = struct{}{}
		out = append(out, inst)
	}

	return out, nil
}

// Chain expands a canonical derivative symbol into its concrete contracts.
func (p *Provider) Chain(ctx context.Context, canonical model.Instrument, includeExpired bool) ([]model.Instrument, error) {
	root, err := symbol.ToVendorTicker(canonical)
	if err != nil {
		return nil, err
	}

	contracts, err := p.LookupSymbols(ctx, model.LookupFilter{
		Pattern:        root,
		Kind:           canonical.Kind,
		IncludeExpired: includeExpired,
	})
	if err != nil {
		return nil, err
	}

	// The vendor matches by pattern; keep only this chain's contracts.
	var out []model.Instrument
	for _, c := range contracts {
		if c.Ticker == canonical.Ticker && !c.IsCanonical() {
			out = append(out, c)
		}
	}
	return out, nil
}

func parseKind(s string) (model.SecurityKind, bool) {
	switch s {
	case "equity":
		return model.KindEquity, true
	case "option":
		return model.KindOption, true
	case "future":
		return model.KindFuture, true
	case "forex":
		return model.KindForex, true
	}
	return 0, false
}
