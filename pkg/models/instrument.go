package models

// MarketSpec describes one leg's market for an instrument: where it trades,
// the symbols used to quote it, the contract size, and how strikes are
// quoted. Strike = round(price * StrikeScale / StrikeStep) * StrikeStep,
// expressed as the integer the exchange prints in option codes (CME copper
// quotes strikes in cents, so StrikeScale is 100 there).
type MarketSpec struct {
	Exchange    string
	Symbol      string
	QuoteSymbol string // identifier at the quote provider, e.g. "HG=F"
	Unit        string // display unit, e.g. "CNY/tonne"
	BaseUnit    string // physical unit a lot is measured in, e.g. "tonne"
	LotSize     float64
	StrikeStep  float64
	StrikeScale float64
}

// InstrumentSpec is the full configuration of one monitored commodity.
// Thresholds are in implied-vol percentage points. VegaPerLot is the
// configured P&L sensitivity constant in domestic currency per vol point
// per hedge set.
type InstrumentSpec struct {
	Key     string
	Name    string
	Enabled bool

	Domestic MarketSpec
	Foreign  MarketSpec

	// Ordered fallback identifiers tried when the primary foreign quote
	// symbol yields no usable data (e.g. an ETF proxy).
	AltForeignSymbols []string

	MinIVDiff      float64
	OpenThreshold  float64
	CloseThreshold float64
	StopLoss       float64
	VegaPerLot     float64
}
