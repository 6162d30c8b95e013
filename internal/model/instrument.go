package model

import (
	"fmt"
	"strings"
	"time"
)

// Instrument is the canonical instrument identifier: underlying ticker,
// security kind, market, and (for derivatives) expiration plus option
// strike/right. Immutable once constructed; equality is structural, so the
// constructors normalize fields to keep values safely comparable and usable
// as map keys.
type Instrument struct {
	Ticker string
	Kind   SecurityKind
	Market string

	// Derivative fields. Expiry is always a UTC date at midnight;
	// zero for equities/forex and for canonical derivative symbols.
	Expiry time.Time
	Strike float64
	Right  OptionRight
}

// NewEquity builds an equity instrument.
func NewEquity(ticker, market string) Instrument {
	return Instrument{Ticker: normalizeTicker(ticker), Kind: KindEquity, Market: market}
}

// NewForex builds a currency-pair instrument.
func NewForex(ticker, market string) Instrument {
	return Instrument{Ticker: normalizeTicker(ticker), Kind: KindForex, Market: market}
}

// NewOption builds a concrete option contract.
func NewOption(underlying, market string, expiry time.Time, right OptionRight, strike float64) Instrument {
	return Instrument{
		Ticker: normalizeTicker(underlying),
		Kind:   KindOption,
		Market: market,
		Expiry: dateUTC(expiry),
		Right:  right,
		Strike: strike,
	}
}

// NewFuture builds a concrete futures contract.
func NewFuture(underlying, market string, expiry time.Time) Instrument {
	return Instrument{
		Ticker: normalizeTicker(underlying),
		Kind:   KindFuture,
		Market: market,
		Expiry: dateUTC(expiry),
	}
}

// NewCanonical builds the canonical (chain-level) symbol for a derivative:
// the underlying-only identifier with no expiry or strike.
func NewCanonical(underlying, market string, kind SecurityKind) Instrument {
	return Instrument{Ticker: normalizeTicker(underlying), Kind: kind, Market: market}
}

// IsCanonical reports whether the instrument names an entire derivative
// chain rather than a concrete contract.
func (i Instrument) IsCanonical() bool {
	return (i.Kind == KindOption || i.Kind == KindFuture) && i.Expiry.IsZero()
}

// IsDerivative reports whether the instrument is an option or future.
func (i Instrument) IsDerivative() bool {
	return i.Kind == KindOption || i.Kind == KindFuture
}

func (i Instrument) String() string {
	switch {
	case i.Kind == KindOption && !i.Expiry.IsZero():
		return fmt.Sprintf("%s %s %s %s %g", i.Ticker, i.Market, i.Expiry.Format("2006-01-02"), i.Right, i.Strike)
	case i.Kind == KindFuture && !i.Expiry.IsZero():
		return fmt.Sprintf("%s %s %s", i.Ticker, i.Market, i.Expiry.Format("2006-01-02"))
	}
	return fmt.Sprintf("%s %s %s", i.Ticker, i.Market, i.Kind)
}

func normalizeTicker(t string) string {
	return strings.ToUpper(strings.TrimSpace(t))
}

// dateUTC truncates to a UTC calendar date so that identical contracts
// compare equal regardless of how the caller built the time.
func dateUTC(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
