package models

import (
	"time"
)

// SignalDirection names the two-legged trade a signal recommends.
type SignalDirection string

const (
	// LongDomesticShortForeign: domestic vol looks cheap, buy domestic
	// options and sell foreign ones.
	LongDomesticShortForeign SignalDirection = "long_domestic_short_foreign"
	ShortDomesticLongForeign SignalDirection = "short_domestic_long_foreign"
)

type SignalStrength string

const (
	StrengthStrong SignalStrength = "strong"
	StrengthMedium SignalStrength = "medium"
	StrengthWeak   SignalStrength = "weak"
)

// ContractLegs are the four resolved option codes for a hedge, one call and
// one put per side. Authoritative is false when a real at-the-money contract
// could not be resolved and the codes are placeholders; consumers must not
// treat placeholder codes as tradeable.
type ContractLegs struct {
	DomesticCall   string
	DomesticPut    string
	ForeignCall    string
	ForeignPut     string
	DomesticStrike float64
	ForeignStrike  float64
	Authoritative  bool
}

// LotAdvice is the recommended lot pairing attached to a signal.
type LotAdvice struct {
	DomesticLots  int
	ForeignLots   int
	DomesticUnits float64
	ForeignUnits  float64
	HedgeRatio    float64 // percent of a 1:1 notional hedge
}

// ArbitrageSignal is an open recommendation produced by the analyzer.
// It is consumed immediately (notification + position recording) and never
// mutated after creation.
type ArbitrageSignal struct {
	Instrument    string
	Direction     SignalDirection
	Strength      SignalStrength
	IVDiff        float64
	DomesticIV    float64
	ForeignIV     float64
	DomesticPrice float64
	ForeignPrice  float64
	DomesticUnit  string
	ForeignUnit   string
	Contracts     ContractLegs
	Lots          LotAdvice
	// ExpectedProfit is an order-of-magnitude estimate in domestic
	// currency per hedge set, not a pricing guarantee.
	ExpectedProfit float64
	Timestamp      time.Time
}
