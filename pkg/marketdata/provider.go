// Package marketdata acquires per-side (price, implied volatility)
// snapshots through an ordered list of quality tiers, degrading gracefully
// from live option-chain IV to scraped IV to realized volatility, and
// admitting failure rather than fabricating a number.
package marketdata

import (
	"context"
	"errors"

	"github.com/haoxu/ivarb/pkg/models"
)

var (
	// ErrNoData means a provider had nothing usable for the request.
	ErrNoData = errors.New("no data available")
	// ErrOutOfRange means a tier produced a value outside its sanity
	// band. It is treated exactly like a failure; values are never
	// clamped back into range.
	ErrOutOfRange = errors.New("value outside sanity bounds")
)

// Volatility sanity band in percentage points. Anything outside is treated
// as corrupt input from the provider.
const (
	minSaneIV = 1.0
	maxSaneIV = 200.0
)

func saneIV(v float64) bool {
	return v >= minSaneIV && v <= maxSaneIV
}

// QuoteProvider returns the latest traded/settled price for a symbol.
type QuoteProvider interface {
	LatestPrice(ctx context.Context, symbol string) (float64, error)
}

// ChainProvider returns the nearest-available option chain for a symbol.
type ChainProvider interface {
	Chain(ctx context.Context, symbol string) ([]models.OptionQuote, error)
}

// HistoryProvider returns at least window+1 daily closing prices, oldest
// first, for realized-volatility estimation.
type HistoryProvider interface {
	ClosingPrices(ctx context.Context, symbol string, window int) ([]float64, error)
}

// ScrapedOption is the result of a successful web-scrape extraction.
type ScrapedOption struct {
	IV       float64
	Strike   float64
	CallCode string
	PutCode  string
}

// ScrapeProvider extracts an at-the-money IV from a public delayed-quote
// page for the given instrument side.
type ScrapeProvider interface {
	ScrapedIV(ctx context.Context, spec models.InstrumentSpec, referencePrice float64) (ScrapedOption, error)
}
