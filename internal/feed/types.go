package feed

import (
	"encoding/json"
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no ping)")
	ErrTimeout         = errors.New("operation timeout")
	ErrAlreadyClosed   = errors.New("already closed")
)

// Role identifies the purpose of a vendor connection.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleQuote  Role = "quote"
	RoleLookup Role = "lookup"
)

// Command is a client-to-vendor frame.
type Command struct {
	ID     int64       `json:"id"`
	Cmd    string      `json:"cmd"`
	Params interface{} `json:"params,omitempty"`
}

// Response is a vendor reply to a command.
type Response struct {
	ID   int64           `json:"id"`
	Type string          `json:"type"` // "ok" or "error"
	Msg  json.RawMessage `json:"msg"`
}

// ErrorMsg is the message content for an "error" response.
type ErrorMsg struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Event is an unsolicited vendor-to-client frame. Lookup streams carry the
// originating command id; quote-port events carry none.
type Event struct {
	Type string          `json:"type"`
	ID   int64           `json:"id,omitempty"`
	Msg  json.RawMessage `json:"msg"`
}

// Quote-port event types.
const (
	EventQuote          = "quote"
	EventTrade          = "trade"
	EventFundamental    = "fundamental"
	EventSplit          = "split"
	EventOpenInterest   = "oi"
	EventSymbolNotFound = "symbol_not_found"
	EventTimestamp      = "timestamp"
	EventStats          = "stats"
)

// Lookup-stream event types.
const (
	EventRow = "row"
	EventEnd = "end"
)

// QuoteEvent is the payload of a quote-port price event. Ts is vendor-local
// wall clock, "2006-01-02 15:04:05" with optional fractional seconds.
type QuoteEvent struct {
	Symbol  string  `json:"symbol"`
	Price   float64 `json:"price"`
	Size    int64   `json:"size"`
	Bid     float64 `json:"bid"`
	Ask     float64 `json:"ask"`
	BidSize int64   `json:"bid_size"`
	AskSize int64   `json:"ask_size"`
	Basis   string  `json:"basis"` // "C" price-affecting, "O" resample
	Ts      string  `json:"ts"`

	// Open interest, split fields (event-type dependent).
	OpenInterest int64   `json:"oi,omitempty"`
	SplitFactor  float64 `json:"split_factor,omitempty"`
	SplitDate    string  `json:"split_date,omitempty"` // "2006-01-02"
}

// PushedEvent pairs a quote-port event type with its decoded payload.
type PushedEvent struct {
	Type  string
	Quote QuoteEvent
}

// SymbolRow is one search result row on the lookup port.
type SymbolRow struct {
	Symbol   string `json:"symbol"`
	Kind     string `json:"kind"` // equity, option, future, forex
	Market   string `json:"market"`
	Exchange string `json:"exchange"`
	Currency string `json:"currency"`
	Expired  bool   `json:"expired"`
}

// HistoryRow is one historical result row on the lookup port. Ts is
// vendor-local naive time.
type HistoryRow struct {
	Ts       string  `json:"ts"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   int64   `json:"volume"`
	Last     float64 `json:"last"`
	LastSize int64   `json:"last_size"`
	Bid      float64 `json:"bid"`
	Ask      float64 `json:"ask"`
	Basis    string  `json:"basis"`
}

// WatchParams subscribes a symbol on the quote port.
type WatchParams struct {
	Symbol string `json:"symbol"`
}

// SearchParams queries the vendor symbol universe.
type SearchParams struct {
	Pattern        string `json:"pattern"`
	Kind           string `json:"kind,omitempty"`
	IncludeExpired bool   `json:"include_expired,omitempty"`
}

// HistoryParams requests historical data. Start/End are vendor-local naive
// timestamps; an empty End leaves the request open-ended (vendor streams
// until caught up). Interval is seconds per bar, 0 for tick data.
type HistoryParams struct {
	Symbol   string `json:"symbol"`
	Interval int    `json:"interval"`
	Start    string `json:"start"`
	End      string `json:"end,omitempty"`
}

// AuthParams identify the product on every new connection.
type AuthParams struct {
	Product string `json:"product"`
	Version string `json:"version"`
}

// Config holds vendor client settings.
type Config struct {
	Host               string
	Product            string
	LookupClients      int
	LookupTimeout      time.Duration
	ReconnectBaseDelay time.Duration
	ReconnectMaxDelay  time.Duration

	PingTimeout  time.Duration
	WriteTimeout time.Duration
	BufferSize   int
}

// DefaultConfig returns sensible defaults for everything but Host.
func DefaultConfig() Config {
	return Config{
		Product:            "FEEDBRIDGE",
		LookupClients:      4,
		LookupTimeout:      30 * time.Second,
		ReconnectBaseDelay: time.Second,
		ReconnectMaxDelay:  60 * time.Second,
		PingTimeout:        60 * time.Second,
		WriteTimeout:       5 * time.Second,
		BufferSize:         10000,
	}
}

// VendorTimeLayout is the vendor's naive wall-clock format.
const VendorTimeLayout = "2006-01-02 15:04:05"

// ParseVendorTime parses a vendor timestamp, with or without fractional
// seconds, in the given location.
func ParseVendorTime(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.ParseInLocation(VendorTimeLayout, s, loc); err == nil {
		return t, nil
	}
	return time.ParseInLocation(VendorTimeLayout+".999999999", s, loc)
}
