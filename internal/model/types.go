package model

import (
	"fmt"
	"strings"
	"time"
)

// -----------------------------------------------------------------------------
// Enumerations
// -----------------------------------------------------------------------------

// SecurityKind classifies an instrument.
type SecurityKind int

const (
	KindEquity SecurityKind = iota
	KindOption
	KindFuture
	KindForex
)

func (k SecurityKind) String() string {
	switch k {
	case KindEquity:
		return "equity"
	case KindOption:
		return "option"
	case KindFuture:
		return "future"
	case KindForex:
		return "forex"
	}
	return fmt.Sprintf("SecurityKind(%d)", int(k))
}

// OptionRight is the side of an option contract.
type OptionRight int

const (
	Call OptionRight = iota
	Put
)

func (r OptionRight) String() string {
	if r == Put {
		return "put"
	}
	return "call"
}

// TickKind classifies a single market data event.
type TickKind int

const (
	TickTrade TickKind = iota
	TickQuote
	TickOpenInterest
)

func (k TickKind) String() string {
	switch k {
	case TickTrade:
		return "trade"
	case TickQuote:
		return "quote"
	case TickOpenInterest:
		return "openinterest"
	}
	return fmt.Sprintf("TickKind(%d)", int(k))
}

// Resolution is the bar aggregation granularity.
type Resolution int

const (
	ResTick Resolution = iota
	ResSecond
	ResMinute
	ResHour
	ResDaily
)

// Duration returns the fixed bar duration for the resolution.
// ResTick has no duration and returns zero.
func (r Resolution) Duration() time.Duration {
	switch r {
	case ResSecond:
		return time.Second
	case ResMinute:
		return time.Minute
	case ResHour:
		return time.Hour
	case ResDaily:
		return 24 * time.Hour
	}
	return 0
}

func (r Resolution) String() string {
	switch r {
	case ResTick:
		return "tick"
	case ResSecond:
		return "second"
	case ResMinute:
		return "minute"
	case ResHour:
		return "hour"
	case ResDaily:
		return "daily"
	}
	return fmt.Sprintf("Resolution(%d)", int(r))
}

// ParseResolution converts a CLI/config string to a Resolution.
func ParseResolution(s string) (Resolution, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tick":
		return ResTick, nil
	case "second":
		return ResSecond, nil
	case "minute":
		return ResMinute, nil
	case "hour":
		return ResHour, nil
	case "daily", "day":
		return ResDaily, nil
	}
	return ResTick, fmt.Errorf("unknown resolution %q", s)
}

// -----------------------------------------------------------------------------
// Requests
// -----------------------------------------------------------------------------

// HistoryRequest describes one historical data request.
// Start and End are UTC; DataTimeZone is the zone emitted records are
// stamped in (the exchange's data time zone).
type HistoryRequest struct {
	Instrument   Instrument
	Resolution   Resolution
	TickKind     TickKind
	Start        time.Time
	End          time.Time
	DataTimeZone *time.Location
}

// LookupFilter selects instruments from the vendor's symbol search.
// Currency and Exchange are optional client-side filters.
type LookupFilter struct {
	Pattern        string
	Kind           SecurityKind
	IncludeExpired bool
	Currency       string
	Exchange       string
}

// -----------------------------------------------------------------------------
// Market data records
// -----------------------------------------------------------------------------

// BaseData is the common view over ticks and bars handed to the host.
type BaseData interface {
	Instrument() Instrument
	Time() time.Time
}

// Tick is a single trade, quote or open-interest event.
type Tick struct {
	Inst    Instrument
	TS      time.Time
	Kind    TickKind
	Price   float64
	Size    int64
	Bid     float64
	Ask     float64
	BidSize int64
	AskSize int64
	// Value carries the open-interest figure for TickOpenInterest.
	Value int64
}

func (t *Tick) Instrument() Instrument { return t.Inst }
func (t *Tick) Time() time.Time        { return t.TS }

// Bar is an aggregated OHLCV interval. End - Start always equals the
// requested resolution's duration.
type Bar struct {
	Inst   Instrument
	Start  time.Time
	End    time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

func (b *Bar) Instrument() Instrument { return b.Inst }
func (b *Bar) Time() time.Time        { return b.Start }

// SplitEvent is a corporate action notification emitted pre-market on the
// effective date.
type SplitEvent struct {
	Inst   Instrument
	TS     time.Time
	Factor float64
}

func (s *SplitEvent) Instrument() Instrument { return s.Inst }
func (s *SplitEvent) Time() time.Time        { return s.TS }
