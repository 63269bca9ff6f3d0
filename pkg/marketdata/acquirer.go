package marketdata

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/haoxu/ivarb/pkg/models"
)

// chainRetries bounds the option-chain tier only; the other tiers get one
// attempt each before the acquirer falls through.
const (
	chainRetries = 2
	retryBackoff = 2 * time.Second
)

// Acquirer fetches one side of an instrument per cycle. Tiers run strictly
// in order and the first value passing its own sanity check wins:
//
//  1. underlying price + at-the-money option-chain IV
//  2. tier 1 again over alternate quote symbols
//  3. scraped IV from a delayed-quote page (if a scraper is configured)
//  4. realized volatility from trailing daily closes
//  5. explicit unavailable, never a default number
type Acquirer struct {
	quotes  QuoteProvider
	chains  ChainProvider
	history HistoryProvider
	scraper ScrapeProvider // optional
	logger  *logrus.Logger

	// sleep is swapped out by tests.
	sleep func(time.Duration)
}

func NewAcquirer(quotes QuoteProvider, chains ChainProvider, history HistoryProvider, scraper ScrapeProvider, logger *logrus.Logger) *Acquirer {
	if logger == nil {
		logger = logrus.New()
	}
	return &Acquirer{
		quotes:  quotes,
		chains:  chains,
		history: history,
		scraper: scraper,
		logger:  logger,
		sleep:   time.Sleep,
	}
}

// Fetch builds the snapshot for one side of an instrument. It returns an
// error only when not even a price could be obtained; an IV failure yields
// a snapshot tagged unavailable, which downstream code must treat as "no
// signal possible", never as zero volatility.
func (a *Acquirer) Fetch(ctx context.Context, spec models.InstrumentSpec, side models.MarketSide) (*models.MarketSnapshot, error) {
	market := spec.Domestic
	symbols := []string{market.QuoteSymbol}
	if side == models.SideForeign {
		market = spec.Foreign
		symbols = append([]string{market.QuoteSymbol}, spec.AltForeignSymbols...)
	}

	log := a.logger.WithFields(logrus.Fields{
		"instrument": spec.Key,
		"side":       side,
	})

	// Tiers 1+2: price and chain IV from the primary symbol, then from
	// each alternate identifier for the same physical instrument.
	var price float64
	var havePrice bool
	var priceSymbol string
	for _, sym := range symbols {
		p, err := a.quotes.LatestPrice(ctx, sym)
		if err != nil {
			log.WithError(err).WithField("symbol", sym).Debug("no price from symbol")
			continue
		}
		if !havePrice {
			price, priceSymbol, havePrice = p, sym, true
		}

		iv, err := a.chainIV(ctx, sym, p)
		if err != nil {
			log.WithError(err).WithField("symbol", sym).Debug("option-chain tier failed")
			continue
		}
		return a.snapshot(spec, side, market, p, &iv, models.SourceOptionChain), nil
	}

	if !havePrice {
		return nil, fmt.Errorf("%w: no price for %s %s", ErrNoData, spec.Key, side)
	}

	// Tier 3: scrape a public delayed-quote page.
	if a.scraper != nil {
		scraped, err := a.scraper.ScrapedIV(ctx, spec, price)
		if err == nil && saneIV(scraped.IV) {
			log.WithField("iv", scraped.IV).Info("using scraped IV")
			return a.snapshot(spec, side, market, price, &scraped.IV, models.SourceScraped), nil
		}
		if err != nil {
			log.WithError(err).Debug("scrape tier failed")
		} else {
			log.WithField("iv", scraped.IV).Warn("scraped IV outside sanity band, rejected")
		}
	}

	// Tier 4: realized volatility. Explicitly a different quantity; the
	// snapshot carries the historical-vol tag so no consumer mistakes it
	// for implied.
	closes, err := a.history.ClosingPrices(ctx, priceSymbol, histVolWindow)
	if err == nil {
		if hv, hvErr := RealizedVol(closes, histVolWindow); hvErr == nil {
			log.WithField("hv", hv).Info("falling back to historical volatility")
			return a.snapshot(spec, side, market, price, &hv, models.SourceHistorical), nil
		} else {
			log.WithError(hvErr).Debug("historical-vol tier failed")
		}
	} else {
		log.WithError(err).Debug("no price history")
	}

	// Tier 5: admit failure.
	log.Warn("all volatility tiers exhausted, snapshot marked unavailable")
	return a.snapshot(spec, side, market, price, nil, models.SourceUnavailable), nil
}

// chainIV fetches the option chain with a bounded retry and extracts the
// at-the-money IV: the strike nearest the underlying, call and put vols at
// that strike averaged.
func (a *Acquirer) chainIV(ctx context.Context, symbol string, underlying float64) (float64, error) {
	var chain []models.OptionQuote
	var err error
	for attempt := 0; attempt <= chainRetries; attempt++ {
		if attempt > 0 {
			a.sleep(retryBackoff)
		}
		chain, err = a.chains.Chain(ctx, symbol)
		if err == nil {
			break
		}
	}
	if err != nil {
		return 0, err
	}
	if len(chain) == 0 {
		return 0, fmt.Errorf("%w: empty option chain for %s", ErrNoData, symbol)
	}
	return atmIV(chain, underlying)
}

// atmIV picks the strike with minimum absolute distance to the underlying
// and averages the in-band call/put vols quoted at it.
func atmIV(chain []models.OptionQuote, underlying float64) (float64, error) {
	atmStrike := chain[0].Strike
	bestDist := math.Abs(chain[0].Strike - underlying)
	for _, q := range chain[1:] {
		if d := math.Abs(q.Strike - underlying); d < bestDist {
			bestDist = d
			atmStrike = q.Strike
		}
	}

	var sum float64
	var n int
	for _, q := range chain {
		if q.Strike != atmStrike {
			continue
		}
		if !saneIV(q.ImpliedVol) {
			continue
		}
		sum += q.ImpliedVol
		n++
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: no sane IV at ATM strike %.4f", ErrOutOfRange, atmStrike)
	}
	return sum / float64(n), nil
}

func (a *Acquirer) snapshot(spec models.InstrumentSpec, side models.MarketSide, market models.MarketSpec, price float64, iv *float64, source models.IVSource) *models.MarketSnapshot {
	return &models.MarketSnapshot{
		Instrument: spec.Key,
		Side:       side,
		Exchange:   market.Exchange,
		Symbol:     market.Symbol,
		Price:      price,
		Unit:       market.Unit,
		ImpliedVol: iv,
		IVSource:   source,
		Timestamp:  time.Now(),
	}
}

// Fetcher pairs two acquirers, one per side, since each market is served by
// a different provider stack.
type Fetcher struct {
	domestic *Acquirer
	foreign  *Acquirer
	logger   *logrus.Logger
}

func NewFetcher(domestic, foreign *Acquirer, logger *logrus.Logger) *Fetcher {
	if logger == nil {
		logger = logrus.New()
	}
	return &Fetcher{domestic: domestic, foreign: foreign, logger: logger}
}

// FetchPair materializes both sides of an instrument for one cycle. The two
// sides are independent immutable snapshots, so a side that failed entirely
// simply leaves its half nil.
func (f *Fetcher) FetchPair(ctx context.Context, spec models.InstrumentSpec) *models.InstrumentData {
	domestic, err := f.domestic.Fetch(ctx, spec, models.SideDomestic)
	if err != nil {
		f.logger.WithError(err).WithField("instrument", spec.Key).Warn("domestic side unavailable")
	}
	foreign, err := f.foreign.Fetch(ctx, spec, models.SideForeign)
	if err != nil {
		f.logger.WithError(err).WithField("instrument", spec.Key).Warn("foreign side unavailable")
	}
	return &models.InstrumentData{
		Instrument: spec.Key,
		Domestic:   domestic,
		Foreign:    foreign,
		Timestamp:  time.Now(),
	}
}
