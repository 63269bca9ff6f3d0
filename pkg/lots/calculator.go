// Package lots sizes the two legs of a cross-market hedge in whole
// exchange lots.
package lots

import (
	"math"

	"github.com/haoxu/ivarb/pkg/units"
)

// ContractSpec is the per-instrument contract geometry the calculator
// works from: how much physical product one lot is on each side, and the
// unit it is measured in.
type ContractSpec struct {
	DomesticLotSize float64
	DomesticUnit    string
	ForeignLotSize  float64
	ForeignUnit     string
}

// Calculation is a sized hedge. HedgeRatio is the foreign notional actually
// bought over the domestic notional expressed in foreign units, as a
// percentage of a perfect 1:1 hedge.
type Calculation struct {
	DomesticLots  int
	ForeignLots   int
	DomesticUnits float64
	ForeignUnits  float64
	HedgeRatio    float64
}

// ForDomesticLots sizes the foreign leg against a fixed number of domestic
// lots. roundUp selects ceiling (the default, so the hedge is never short)
// versus floor rounding; either way the foreign leg is clamped to at least
// one lot.
func ForDomesticLots(spec ContractSpec, domesticLots int, roundUp bool) (Calculation, error) {
	factor, err := units.Factor(spec.DomesticUnit, spec.ForeignUnit)
	if err != nil {
		return Calculation{}, err
	}

	domesticUnits := float64(domesticLots) * spec.DomesticLotSize
	inForeign := domesticUnits * factor
	exact := inForeign / spec.ForeignLotSize

	var foreignLots int
	if roundUp {
		foreignLots = int(math.Ceil(exact))
	} else {
		foreignLots = int(math.Floor(exact))
	}
	if foreignLots == 0 {
		foreignLots = 1
	}

	foreignUnits := float64(foreignLots) * spec.ForeignLotSize

	ratio := 0.0
	if inForeign > 0 {
		ratio = foreignUnits / inForeign * 100
	}

	return Calculation{
		DomesticLots:  domesticLots,
		ForeignLots:   foreignLots,
		DomesticUnits: domesticUnits,
		ForeignUnits:  foreignUnits,
		HedgeRatio:    ratio,
	}, nil
}

// Optimal searches foreign lot counts 1..maxForeignLots for the pairing
// whose realized hedge ratio is closest to 100%. The search is deliberately
// exhaustive: lot counts are small integers and the bound is caller-chosen,
// so brute force is simpler and provably optimal within the bound. Ties go
// to the smallest foreign lot count.
func Optimal(spec ContractSpec, maxForeignLots int) (Calculation, error) {
	factor, err := units.Factor(spec.DomesticUnit, spec.ForeignUnit)
	if err != nil {
		return Calculation{}, err
	}

	bestDiff := math.Inf(1)
	bestDomestic := 1
	for foreignLots := 1; foreignLots <= maxForeignLots; foreignLots++ {
		foreignUnits := float64(foreignLots) * spec.ForeignLotSize
		domesticNeeded := foreignUnits / factor
		domesticLots := int(math.Round(domesticNeeded / spec.DomesticLotSize))
		if domesticLots == 0 {
			domesticLots = 1
		}

		domesticInForeign := float64(domesticLots) * spec.DomesticLotSize * factor
		if domesticInForeign <= 0 {
			continue
		}
		diff := math.Abs(foreignUnits/domesticInForeign - 1.0)
		if diff < bestDiff {
			bestDiff = diff
			bestDomestic = domesticLots
		}
	}

	return ForDomesticLots(spec, bestDomestic, true)
}

// Minimal compares the "one domestic lot" hedge against the "one foreign
// lot" hedge and returns whichever lands closer to 100%.
func Minimal(spec ContractSpec) (Calculation, error) {
	oneDomestic, err := ForDomesticLots(spec, 1, true)
	if err != nil {
		return Calculation{}, err
	}

	factor, err := units.Factor(spec.DomesticUnit, spec.ForeignUnit)
	if err != nil {
		return Calculation{}, err
	}
	domesticNeeded := spec.ForeignLotSize / factor
	domesticLots := int(math.Round(domesticNeeded / spec.DomesticLotSize))
	if domesticLots == 0 {
		domesticLots = 1
	}
	oneForeign, err := ForDomesticLots(spec, domesticLots, true)
	if err != nil {
		return Calculation{}, err
	}

	if math.Abs(oneDomestic.HedgeRatio-100) <= math.Abs(oneForeign.HedgeRatio-100) {
		return oneDomestic, nil
	}
	return oneForeign, nil
}
