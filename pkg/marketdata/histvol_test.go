package marketdata

import (
	"errors"
	"math"
	"testing"
)

func TestRealizedVolNeedsWindowPlusOne(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100
	}
	_, err := RealizedVol(closes, 30)
	if !errors.Is(err, ErrNoData) {
		t.Errorf("error = %v, want ErrNoData for %d closes", err, len(closes))
	}
}

func TestRealizedVolAlternatingSeries(t *testing.T) {
	// 31 closes alternating 100/101: thirty log returns of +/-ln(1.01)
	// with mean zero, so the sample std is ln(1.01)*sqrt(30/29).
	closes := make([]float64, 31)
	for i := range closes {
		if i%2 == 0 {
			closes[i] = 100
		} else {
			closes[i] = 101
		}
	}

	got, err := RealizedVol(closes, 30)
	if err != nil {
		t.Fatalf("RealizedVol returned error: %v", err)
	}
	want := math.Log(1.01) * math.Sqrt(30.0/29.0) * math.Sqrt(252) * 100
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("RealizedVol = %v, want %v", got, want)
	}
}

func TestRealizedVolUsesTrailingWindowOnly(t *testing.T) {
	// A violent move before the trailing window must not affect the result.
	closes := []float64{10, 500, 3}
	for i := 0; i < 31; i++ {
		if i%2 == 0 {
			closes = append(closes, 100)
		} else {
			closes = append(closes, 101)
		}
	}

	got, err := RealizedVol(closes, 30)
	if err != nil {
		t.Fatalf("RealizedVol returned error: %v", err)
	}
	want := math.Log(1.01) * math.Sqrt(30.0/29.0) * math.Sqrt(252) * 100
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("RealizedVol = %v, want %v", got, want)
	}
}

func TestRealizedVolConstantSeriesRejected(t *testing.T) {
	// Zero volatility is below the sanity floor and must be rejected, not
	// returned as a usable number.
	closes := make([]float64, 31)
	for i := range closes {
		closes[i] = 100
	}
	_, err := RealizedVol(closes, 30)
	if !errors.Is(err, ErrOutOfRange) {
		t.Errorf("error = %v, want ErrOutOfRange for flat series", err)
	}
}

func TestRealizedVolNonPositiveClose(t *testing.T) {
	closes := make([]float64, 31)
	for i := range closes {
		closes[i] = 100
	}
	closes[15] = 0
	_, err := RealizedVol(closes, 30)
	if !errors.Is(err, ErrNoData) {
		t.Errorf("error = %v, want ErrNoData for non-positive close", err)
	}
}
