// Package units converts physical quantities between the units the two
// exchanges trade in (tonnes vs. pounds, grams vs. troy ounces, barrels).
package units

import (
	"fmt"
)

// ErrUnsupportedConversion is returned when neither the requested pair nor
// its inverse is registered. It indicates a configuration error, not market
// conditions, and is fatal to the calling operation only.
var ErrUnsupportedConversion = fmt.Errorf("unsupported unit conversion")

type pair struct {
	from, to string
}

// Pairwise conversion factors. Only one direction needs to be listed; the
// reverse is derived as the reciprocal.
var factors = map[pair]float64{
	{"tonne", "pound"}:    2204.62,
	{"kilogram", "ounce"}: 32.1507, // troy ounce
	{"gram", "ounce"}:     0.0321507,
	{"ounce", "gram"}:     31.1035,
	{"barrel", "barrel"}:  1.0,
}

// Factor returns the multiplier taking one unit of from into to.
func Factor(from, to string) (float64, error) {
	if from == to {
		return 1.0, nil
	}
	if f, ok := factors[pair{from, to}]; ok {
		return f, nil
	}
	if f, ok := factors[pair{to, from}]; ok {
		return 1.0 / f, nil
	}
	return 0, fmt.Errorf("%w: %s -> %s", ErrUnsupportedConversion, from, to)
}

// Convert maps a quantity from one unit to another.
func Convert(quantity float64, from, to string) (float64, error) {
	f, err := Factor(from, to)
	if err != nil {
		return 0, err
	}
	return quantity * f, nil
}
