// Package contracts turns an instrument spec and a pair of reference prices
// into concrete option contract codes for both exchanges.
package contracts

import (
	"fmt"
	"math"
	"time"

	"github.com/haoxu/ivarb/pkg/models"
)

// CME futures month letters.
var monthCodes = map[time.Month]string{
	time.January: "F", time.February: "G", time.March: "H",
	time.April: "J", time.May: "K", time.June: "M",
	time.July: "N", time.August: "Q", time.September: "U",
	time.October: "V", time.November: "X", time.December: "Z",
}

// Resolver picks the hedge contract month and at-the-money strikes.
// The month is always the nearest tradeable month at least two calendar
// months out ("next-next month"): closer expiries are too illiquid to
// leg into and out of cleanly.
type Resolver struct{}

// tradingMonth returns the year and month of the next-next-month contract.
func tradingMonth(now time.Time) (int, time.Month) {
	m := int(now.Month()) + 2
	y := now.Year()
	if m > 12 {
		m -= 12
		y++
	}
	return y, time.Month(m)
}

// ExpiryEstimate approximates the option expiry for positions opened now.
// Exchange calendars differ per product; the 20th of the contract month is
// close enough for the expiry guard, which fires a week out anyway.
func (Resolver) ExpiryEstimate(now time.Time) time.Time {
	y, m := tradingMonth(now)
	return time.Date(y, m, 20, 0, 0, 0, 0, now.Location())
}

// atmStrike rounds a price onto the exchange's strike grid and returns the
// integer strike as printed in option codes. ok is false when the spec does
// not define a grid for this side.
func atmStrike(spec models.MarketSpec, price float64) (int64, bool) {
	if spec.StrikeStep <= 0 || spec.StrikeScale <= 0 {
		return 0, false
	}
	scaled := price * spec.StrikeScale
	strike := math.Round(scaled/spec.StrikeStep) * spec.StrikeStep
	return int64(strike), true
}

// ATMContracts resolves the four option codes for a hedge opened now at the
// given reference prices. When a side's strike grid is not configured its
// codes are explicit placeholders and Authoritative is false; fabricating a
// plausible-looking but nonexistent code would be worse than admitting we
// do not know it.
func (r Resolver) ATMContracts(spec models.InstrumentSpec, domesticPrice, foreignPrice float64, now time.Time) models.ContractLegs {
	y, m := tradingMonth(now)
	legs := models.ContractLegs{Authoritative: true}

	// Domestic codes look like CU2602C103000: symbol, YYMM, C/P, strike.
	domesticBase := fmt.Sprintf("%s%02d%02d", spec.Domestic.Symbol, y%100, int(m))
	if strike, ok := atmStrike(spec.Domestic, domesticPrice); ok {
		legs.DomesticCall = fmt.Sprintf("%sC%d", domesticBase, strike)
		legs.DomesticPut = fmt.Sprintf("%sP%d", domesticBase, strike)
		legs.DomesticStrike = float64(strike) / spec.Domestic.StrikeScale
	} else {
		legs.DomesticCall = domesticBase + "C?"
		legs.DomesticPut = domesticBase + "P?"
		legs.Authoritative = false
	}

	// Foreign codes look like HGH26C470: symbol, month letter, YY, C/P,
	// strike in the exchange's quoting scale.
	foreignBase := fmt.Sprintf("%s%s%02d", spec.Foreign.Symbol, monthCodes[m], y%100)
	if strike, ok := atmStrike(spec.Foreign, foreignPrice); ok {
		legs.ForeignCall = fmt.Sprintf("%sC%d", foreignBase, strike)
		legs.ForeignPut = fmt.Sprintf("%sP%d", foreignBase, strike)
		legs.ForeignStrike = float64(strike) / spec.Foreign.StrikeScale
	} else {
		legs.ForeignCall = foreignBase + "C?"
		legs.ForeignPut = foreignBase + "P?"
		legs.Authoritative = false
	}

	return legs
}

// FuturesSymbol returns the next-next-month futures contract identifier for
// the foreign side, e.g. "HGH26". The scrape provider quotes options off
// this contract.
func (Resolver) FuturesSymbol(spec models.MarketSpec, now time.Time) string {
	y, m := tradingMonth(now)
	return fmt.Sprintf("%s%s%02d", spec.Symbol, monthCodes[m], y%100)
}
