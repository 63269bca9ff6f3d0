package models

import (
	"time"
)

// MarketSide tells which leg of an instrument pair a snapshot belongs to.
type MarketSide string

const (
	SideDomestic MarketSide = "domestic"
	SideForeign  MarketSide = "foreign"
)

// IVSource records which acquisition tier produced a volatility figure.
// Historical volatility is a different quantity from implied volatility and
// must never be presented as implied to a consumer; the tag travels with the
// value through every layer so downstream code can tell degraded data apart.
type IVSource string

const (
	SourceOptionChain IVSource = "option-iv"
	SourceScraped     IVSource = "scraped-iv"
	SourceHistorical  IVSource = "historical-vol"
	SourceUnavailable IVSource = "unavailable"
)

// MarketSnapshot is one side of an instrument pair for one poll cycle.
// It is built once by the acquirer and never mutated afterwards.
// ImpliedVol is nil only when every acquisition tier failed; a nil value is
// "no measurement", not zero.
type MarketSnapshot struct {
	Instrument string
	Side       MarketSide
	Exchange   string
	Symbol     string
	Price      float64
	Unit       string
	ImpliedVol *float64
	IVSource   IVSource
	Timestamp  time.Time
}

// HasIV reports whether the snapshot carries a usable volatility figure.
func (s *MarketSnapshot) HasIV() bool {
	return s != nil && s.ImpliedVol != nil && s.IVSource != SourceUnavailable
}

// InstrumentData pairs the two sides of one instrument for a single cycle.
type InstrumentData struct {
	Instrument string
	Domestic   *MarketSnapshot
	Foreign    *MarketSnapshot
	Timestamp  time.Time
}

// IVDiff returns foreign IV minus domestic IV. The difference is only
// defined when both sides report a real volatility; otherwise ok is false.
func (d *InstrumentData) IVDiff() (float64, bool) {
	if !d.Domestic.HasIV() || !d.Foreign.HasIV() {
		return 0, false
	}
	return *d.Foreign.ImpliedVol - *d.Domestic.ImpliedVol, true
}

// OptionQuote is one validated row of an option chain. Provider responses
// are converted into these once, and rows missing mandatory columns are
// dropped at the boundary rather than carried as partially-filled bags.
type OptionQuote struct {
	Strike     float64
	Type       OptionType
	ImpliedVol float64 // percentage points
}

type OptionType string

const (
	OptionCall OptionType = "call"
	OptionPut  OptionType = "put"
)
