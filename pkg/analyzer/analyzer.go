// Package analyzer turns paired market snapshots into arbitrage open
// signals: thresholding, direction, strength, contract resolution, lot
// sizing, a rough profit estimate, and duplicate suppression.
package analyzer

import (
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/haoxu/ivarb/pkg/lots"
	"github.com/haoxu/ivarb/pkg/models"
)

// ContractResolver resolves at-the-money option codes for both legs.
type ContractResolver interface {
	ATMContracts(spec models.InstrumentSpec, domesticPrice, foreignPrice float64, now time.Time) models.ContractLegs
}

// Config holds the analyzer's global knobs; per-instrument thresholds live
// on the instrument specs.
type Config struct {
	// MaxForeignLots bounds the lot-sizing search.
	MaxForeignLots int
	// DedupWindow and DedupBand suppress a signal when the same
	// instrument and direction fired within the window and the spread
	// moved by less than the band since. The key is time + direction +
	// magnitude, not a plain cooldown.
	DedupWindow time.Duration
	DedupBand   float64
	// CostFactor discounts the gross vega profit estimate for fees,
	// slippage and FX friction.
	CostFactor float64
}

func DefaultConfig() Config {
	return Config{
		MaxForeignLots: 10,
		DedupWindow:    30 * time.Minute,
		DedupBand:      2.0,
		CostFactor:     0.8,
	}
}

type lastSignal struct {
	at     time.Time
	ivDiff float64
}

type dedupKey struct {
	instrument string
	direction  models.SignalDirection
}

// Analyzer is safe for use from a single poll loop; the dedup history is
// still guarded so a parallelized fetch stage may call it per instrument.
type Analyzer struct {
	cfg      Config
	resolver ContractResolver
	logger   *logrus.Logger

	mu      sync.Mutex
	history map[dedupKey]lastSignal

	now func() time.Time
}

func New(cfg Config, resolver ContractResolver, logger *logrus.Logger) *Analyzer {
	if logger == nil {
		logger = logrus.New()
	}
	return &Analyzer{
		cfg:      cfg,
		resolver: resolver,
		logger:   logger,
		history:  make(map[dedupKey]lastSignal),
		now:      time.Now,
	}
}

// Analyze evaluates one instrument's pair for the cycle and returns an open
// signal, or nil when there is nothing actionable. A side without a real
// volatility measurement always means no signal; an unavailable IV is never
// treated as zero.
func (a *Analyzer) Analyze(spec models.InstrumentSpec, pair *models.InstrumentData) *models.ArbitrageSignal {
	if pair == nil {
		return nil
	}
	ivDiff, ok := pair.IVDiff()
	if !ok {
		a.logger.WithField("instrument", spec.Key).Debug("IV missing on at least one side, no analysis")
		return nil
	}

	log := a.logger.WithFields(logrus.Fields{
		"instrument": spec.Key,
		"iv_diff":    ivDiff,
	})

	// The noise floor filters jitter; the open threshold gates entry.
	// Both are per-instrument configuration and deliberately distinct.
	if math.Abs(ivDiff) < spec.MinIVDiff {
		log.Debug("below noise floor")
		return nil
	}
	if math.Abs(ivDiff) < spec.OpenThreshold {
		log.Debug("below open threshold")
		return nil
	}

	direction := models.ShortDomesticLongForeign
	if ivDiff > 0 {
		// Foreign vol is richer, so domestic options are cheap in vol
		// terms: buy domestic, sell foreign.
		direction = models.LongDomesticShortForeign
	}

	now := a.now()
	if a.isDuplicate(spec.Key, direction, ivDiff, now) {
		log.Info("suppressing duplicate signal")
		return nil
	}

	legs := a.resolver.ATMContracts(spec, pair.Domestic.Price, pair.Foreign.Price, now)
	if !legs.Authoritative {
		log.Warn("contract codes could not be fully resolved, marked non-authoritative")
	}

	advice := models.LotAdvice{}
	calc, err := lots.Optimal(lots.ContractSpec{
		DomesticLotSize: spec.Domestic.LotSize,
		DomesticUnit:    spec.Domestic.BaseUnit,
		ForeignLotSize:  spec.Foreign.LotSize,
		ForeignUnit:     spec.Foreign.BaseUnit,
	}, a.cfg.MaxForeignLots)
	if err != nil {
		// A conversion gap is a configuration error; the signal is
		// still actionable without sizing advice.
		log.WithError(err).Error("lot sizing failed")
	} else {
		advice = models.LotAdvice{
			DomesticLots:  calc.DomesticLots,
			ForeignLots:   calc.ForeignLots,
			DomesticUnits: calc.DomesticUnits,
			ForeignUnits:  calc.ForeignUnits,
			HedgeRatio:    calc.HedgeRatio,
		}
	}

	signal := &models.ArbitrageSignal{
		Instrument:     spec.Key,
		Direction:      direction,
		Strength:       strength(math.Abs(ivDiff), spec.OpenThreshold),
		IVDiff:         ivDiff,
		DomesticIV:     *pair.Domestic.ImpliedVol,
		ForeignIV:      *pair.Foreign.ImpliedVol,
		DomesticPrice:  pair.Domestic.Price,
		ForeignPrice:   pair.Foreign.Price,
		DomesticUnit:   pair.Domestic.Unit,
		ForeignUnit:    pair.Foreign.Unit,
		Contracts:      legs,
		Lots:           advice,
		ExpectedProfit: a.cfg.CostFactor * math.Abs(ivDiff) * spec.VegaPerLot,
		Timestamp:      now,
	}

	a.record(spec.Key, direction, ivDiff, now)
	log.WithFields(logrus.Fields{
		"direction": direction,
		"strength":  signal.Strength,
	}).Info("arbitrage signal")
	return signal
}

// strength classifies the spread against the instrument's open threshold.
// Weak cannot come out of Analyze (entry is gated at the open threshold
// already) but stays on the scale: classification against lower bars, such
// as a close threshold, still lands there. The asymmetry is deliberate.
func strength(absDiff, openThreshold float64) models.SignalStrength {
	switch {
	case absDiff >= openThreshold*1.5:
		return models.StrengthStrong
	case absDiff >= openThreshold:
		return models.StrengthMedium
	default:
		return models.StrengthWeak
	}
}

func (a *Analyzer) isDuplicate(instrument string, direction models.SignalDirection, ivDiff float64, now time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	prev, ok := a.history[dedupKey{instrument, direction}]
	if !ok {
		return false
	}
	return now.Sub(prev.at) < a.cfg.DedupWindow && math.Abs(prev.ivDiff-ivDiff) < a.cfg.DedupBand
}

func (a *Analyzer) record(instrument string, direction models.SignalDirection, ivDiff float64, now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history[dedupKey{instrument, direction}] = lastSignal{at: now, ivDiff: ivDiff}
}
