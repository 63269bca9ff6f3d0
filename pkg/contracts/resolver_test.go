package contracts

import (
	"testing"
	"time"

	"github.com/haoxu/ivarb/pkg/models"
)

func copperSpec() models.InstrumentSpec {
	return models.InstrumentSpec{
		Key: "copper",
		Domestic: models.MarketSpec{
			Symbol:      "CU",
			StrikeStep:  1000,
			StrikeScale: 1,
		},
		Foreign: models.MarketSpec{
			Symbol:      "HG",
			StrikeStep:  1,
			StrikeScale: 100,
		},
	}
}

func TestATMContracts(t *testing.T) {
	now := time.Date(2026, time.January, 15, 10, 0, 0, 0, time.UTC)
	legs := Resolver{}.ATMContracts(copperSpec(), 103456, 4.687, now)

	if legs.DomesticCall != "CU2603C103000" {
		t.Errorf("DomesticCall = %q, want CU2603C103000", legs.DomesticCall)
	}
	if legs.DomesticPut != "CU2603P103000" {
		t.Errorf("DomesticPut = %q, want CU2603P103000", legs.DomesticPut)
	}
	if legs.ForeignCall != "HGH26C469" {
		t.Errorf("ForeignCall = %q, want HGH26C469", legs.ForeignCall)
	}
	if legs.ForeignPut != "HGH26P469" {
		t.Errorf("ForeignPut = %q, want HGH26P469", legs.ForeignPut)
	}
	if legs.DomesticStrike != 103000 {
		t.Errorf("DomesticStrike = %v, want 103000", legs.DomesticStrike)
	}
	if legs.ForeignStrike != 4.69 {
		t.Errorf("ForeignStrike = %v, want 4.69", legs.ForeignStrike)
	}
	if !legs.Authoritative {
		t.Error("Authoritative = false, want true")
	}
}

func TestATMContractsYearRollover(t *testing.T) {
	now := time.Date(2026, time.November, 10, 10, 0, 0, 0, time.UTC)
	legs := Resolver{}.ATMContracts(copperSpec(), 100000, 4.50, now)

	if legs.DomesticCall != "CU2701C100000" {
		t.Errorf("DomesticCall = %q, want CU2701C100000", legs.DomesticCall)
	}
	if legs.ForeignCall != "HGF27C450" {
		t.Errorf("ForeignCall = %q, want HGF27C450", legs.ForeignCall)
	}
}

func TestATMContractsMissingGrid(t *testing.T) {
	spec := copperSpec()
	spec.Foreign.StrikeStep = 0

	now := time.Date(2026, time.January, 15, 10, 0, 0, 0, time.UTC)
	legs := Resolver{}.ATMContracts(spec, 103456, 4.687, now)

	if legs.ForeignCall != "HGH26C?" {
		t.Errorf("ForeignCall = %q, want placeholder HGH26C?", legs.ForeignCall)
	}
	if legs.Authoritative {
		t.Error("Authoritative = true for placeholder codes, want false")
	}
	// The configured side still resolves.
	if legs.DomesticCall != "CU2603C103000" {
		t.Errorf("DomesticCall = %q, want CU2603C103000", legs.DomesticCall)
	}
}

func TestExpiryEstimate(t *testing.T) {
	now := time.Date(2026, time.January, 15, 10, 0, 0, 0, time.UTC)
	got := Resolver{}.ExpiryEstimate(now)
	want := time.Date(2026, time.March, 20, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("ExpiryEstimate = %v, want %v", got, want)
	}
}

func TestFuturesSymbol(t *testing.T) {
	now := time.Date(2026, time.January, 15, 10, 0, 0, 0, time.UTC)
	got := Resolver{}.FuturesSymbol(copperSpec().Foreign, now)
	if got != "HGH26" {
		t.Errorf("FuturesSymbol = %q, want HGH26", got)
	}
}
