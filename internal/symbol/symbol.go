package symbol

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/openquant/feedbridge/internal/model"
)

// Errors
var (
	// ErrUnrecognizedTicker indicates a vendor ticker string that does not
	// match the expected encoding for the given security kind.
	ErrUnrecognizedTicker = errors.New("unrecognized ticker format")

	// ErrUnsupportedFamily indicates a futures product family with no known
	// contract-month shift rule.
	ErrUnsupportedFamily = errors.New("unsupported derivative family")
)

// Option month/right code letters: calls Jan-Dec = A-L, puts Jan-Dec = M-X.
const (
	callCodes = "ABCDEFGHIJKL"
	putCodes  = "MNOPQRSTUVWX"
)

// Futures contract month letters, Jan-Dec.
const futureMonthCodes = "FGHJKMNQUVXZ"

// brokerToVendor remaps canonical futures roots to the vendor's roots.
var brokerToVendor = map[string]string{
	"6A": "AD",
	"6B": "BP",
	"6C": "CD",
	"6E": "EU",
	"6J": "JY",
	"6S": "SF",
	"CL": "QCL",
	"GC": "QGC",
	"HG": "QHG",
	"NG": "QNG",
	"SI": "QSI",
}

var vendorToBroker = func() map[string]string {
	m := make(map[string]string, len(brokerToVendor))
	for k, v := range brokerToVendor {
		m[v] = k
	}
	return m
}()

// contractMonthShift maps a canonical root to the offset between expiry
// month and contract month. Natural-gas-style products trade the next
// month's contract; precious metals shift two months.
var contractMonthShift = map[string]int{
	"NG": 1,
	"GC": 2,
	"SI": 2,
	"PL": 2,
}

// unsupportedFamilies are roots whose serial-contract rules the vendor
// cannot express; translation refuses them outright.
var unsupportedFamilies = map[string]struct{}{
	"DC": {},
	"DY": {},
}

// doubledLetterMarkets are exchanges whose vendor tickers carry a
// duplicated leading letter that must be stripped.
var doubledLetterMarkets = map[string]struct{}{
	"NYMEX_GBX": {},
}

// NormalizeTicker applies per-exchange ticker quirks: for doubled-letter
// markets a duplicated first letter is removed (QQA -> QA, QQAN25 -> QAN25).
func NormalizeTicker(market, ticker string) string {
	if _, ok := doubledLetterMarkets[strings.ToUpper(market)]; !ok {
		return ticker
	}
	if len(ticker) >= 2 && ticker[0] == ticker[1] && ticker[0] >= 'A' && ticker[0] <= 'Z' {
		return ticker[1:]
	}
	return ticker
}

// ToVendorTicker encodes an instrument into the vendor's ticker string.
// Canonical derivative symbols encode to their underlying root.
func ToVendorTicker(inst model.Instrument) (string, error) {
	switch inst.Kind {
	case model.KindEquity, model.KindForex:
		return inst.Ticker, nil

	case model.KindOption:
		if inst.IsCanonical() {
			return inst.Ticker, nil
		}
		return encodeOption(inst), nil

	case model.KindFuture:
		return encodeFuture(inst)
	}
	return "", fmt.Errorf("%w: security kind %v", ErrUnrecognizedTicker, inst.Kind)
}

// ToInstrument decodes a vendor ticker string. The security kind and market
// hints select the decoding rules; they come from the subscription config or
// the lookup response, never from the string itself.
func ToInstrument(ticker string, kind model.SecurityKind, market string) (model.Instrument, error) {
	ticker = NormalizeTicker(market, ticker)

	switch kind {
	case model.KindEquity:
		if ticker == "" {
			return model.Instrument{}, fmt.Errorf("%w: empty equity ticker", ErrUnrecognizedTicker)
		}
		return model.NewEquity(ticker, market), nil

	case model.KindForex:
		if ticker == "" {
			return model.Instrument{}, fmt.Errorf("%w: empty forex ticker", ErrUnrecognizedTicker)
		}
		return model.NewForex(ticker, market), nil

	case model.KindOption:
		return decodeOption(ticker, market)

	case model.KindFuture:
		return decodeFuture(ticker, market)
	}
	return model.Instrument{}, fmt.Errorf("%w: security kind %v", ErrUnrecognizedTicker, kind)
}

// -----------------------------------------------------------------------------
// Options
// -----------------------------------------------------------------------------

// encodeOption produces ROOT + yy + dd + code + strike, where the code
// letter carries both month and right, and the strike drops a trailing .0
// (MSFT 2016-04-15 call 30 -> MSFT1615D30).
func encodeOption(inst model.Instrument) string {
	codes := callCodes
	if inst.Right == model.Put {
		codes = putCodes
	}
	code := codes[int(inst.Expiry.Month())-1]
	strike := strconv.FormatFloat(inst.Strike, 'f', -1, 64)
	return fmt.Sprintf("%s%02d%02d%c%s", inst.Ticker, inst.Expiry.Year()%100, inst.Expiry.Day(), code, strike)
}

var optionPattern = regexp.MustCompile(`^([A-Z]+)(\d{2})(\d{2})([A-X])(\d+(?:\.\d+)?)$`)

func decodeOption(ticker, market string) (model.Instrument, error) {
	m := optionPattern.FindStringSubmatch(ticker)
	if m == nil {
		return model.Instrument{}, fmt.Errorf("%w: option ticker %q", ErrUnrecognizedTicker, ticker)
	}

	year, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])

	code := m[4][0]
	var month int
	var right model.OptionRight
	if code >= 'A' && code <= 'L' {
		month = int(code-'A') + 1
		right = model.Call
	} else {
		month = int(code-'M') + 1
		right = model.Put
	}

	strike, err := strconv.ParseFloat(m[5], 64)
	if err != nil || strike <= 0 {
		return model.Instrument{}, fmt.Errorf("%w: option strike in %q", ErrUnrecognizedTicker, ticker)
	}

	expiry := time.Date(2000+year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if expiry.Day() != day {
		// time.Date normalized an impossible calendar day.
		return model.Instrument{}, fmt.Errorf("%w: option expiry in %q", ErrUnrecognizedTicker, ticker)
	}

	return model.NewOption(m[1], market, expiry, right, strike), nil
}

// -----------------------------------------------------------------------------
// Futures
// -----------------------------------------------------------------------------

// encodeFuture produces ROOT + month code + yy, where the contract month is
// the expiry month shifted by the product family's rule and the root is
// remapped to the vendor's root (NG 2025-08-27 -> QNGU25).
func encodeFuture(inst model.Instrument) (string, error) {
	if _, bad := unsupportedFamilies[inst.Ticker]; bad {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFamily, inst.Ticker)
	}

	root := inst.Ticker
	if mapped, ok := brokerToVendor[root]; ok {
		root = mapped
	}

	if inst.IsCanonical() {
		return NormalizeTicker(inst.Market, root), nil
	}

	month := int(inst.Expiry.Month()) + contractMonthShift[inst.Ticker]
	year := inst.Expiry.Year()
	if month > 12 {
		month -= 12
		year++
	}

	ticker := fmt.Sprintf("%s%c%02d", root, futureMonthCodes[month-1], year%100)
	return NormalizeTicker(inst.Market, ticker), nil
}

var futurePattern = regexp.MustCompile(`^([A-Z0-9]+)([FGHJKMNQUVXZ])(\d{2})$`)

func decodeFuture(ticker, market string) (model.Instrument, error) {
	m := futurePattern.FindStringSubmatch(ticker)
	if m == nil {
		return model.Instrument{}, fmt.Errorf("%w: future ticker %q", ErrUnrecognizedTicker, ticker)
	}

	// A known vendor root directly followed by the year digits means the
	// month code is missing; the regex would otherwise backtrack and read
	// the root's last letter as a contract month (QNG25 is not QN + G25).
	if _, known := vendorToBroker[ticker[:len(ticker)-2]]; known {
		return model.Instrument{}, fmt.Errorf("%w: future ticker %q has no month code", ErrUnrecognizedTicker, ticker)
	}

	root := m[1]
	if mapped, ok := vendorToBroker[root]; ok {
		root = mapped
	}
	if _, bad := unsupportedFamilies[root]; bad {
		return model.Instrument{}, fmt.Errorf("%w: %s", ErrUnsupportedFamily, root)
	}

	month := indexByte(futureMonthCodes, m[2][0]) + 1
	yy, _ := strconv.Atoi(m[3])
	year := 2000 + yy

	// Reverse the family shift to recover the expiry month.
	month -= contractMonthShift[root]
	if month < 1 {
		month += 12
		year--
	}

	expiry := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return model.NewFuture(root, market, expiry), nil
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}
