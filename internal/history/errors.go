package history

import "errors"

// Validation errors. These never escape FetchHistory; they classify
// rejections for the once-per-process log and for tests.
var (
	ErrUnsupportedSecurityType = errors.New("unsupported security type")
	ErrUnsupportedTickType     = errors.New("unsupported tick type for resolution")
	ErrInvalidDateRange        = errors.New("invalid date range")
	ErrUnresolvableTicker      = errors.New("unresolvable vendor ticker")
)
