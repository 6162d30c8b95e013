package live

import (
	"sync"
	"time"
)

// supportedMarkets lists the {kind, market} combinations the vendor can
// stream. Kind indexes by model.SecurityKind.String().
var supportedMarkets = map[string]map[string]struct{}{
	"equity": {"usa": {}},
	"option": {"usa": {}},
	"future": {
		"usa":       {},
		"cme":       {},
		"cbot":      {},
		"comex":     {},
		"nymex":     {},
		"nymex_gbx": {},
	},
	"forex": {"fxcm": {}},
}

// marketZoneNames maps a market to its data time zone. Markets without an
// entry fall back to Eastern time.
var marketZoneNames = map[string]string{
	"cme":       "America/Chicago",
	"cbot":      "America/Chicago",
	"comex":     "America/New_York",
	"nymex":     "America/New_York",
	"nymex_gbx": "America/New_York",
	"fxcm":      "UTC",
}

const defaultZoneName = "America/New_York"

// zoneCache resolves market time zones once and serves dispatch-time reads
// without a lock.
type zoneCache struct {
	zones sync.Map // market -> *time.Location
}

func (c *zoneCache) resolve(market string) *time.Location {
	if loc, ok := c.zones.Load(market); ok {
		return loc.(*time.Location)
	}

	name, ok := marketZoneNames[market]
	if !ok {
		name = defaultZoneName
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		loc = time.UTC
	}

	actual, _ := c.zones.LoadOrStore(market, loc)
	return actual.(*time.Location)
}
