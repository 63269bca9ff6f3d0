package positions

import (
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/haoxu/ivarb/pkg/models"
)

type memStore struct {
	saved    []*models.Position
	loadErr  error
	saveErr  error
	rewrites int
}

func (s *memStore) LoadAll() ([]*models.Position, error) {
	return s.saved, s.loadErr
}

func (s *memStore) RewriteAll(positions []*models.Position) error {
	s.rewrites++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = positions
	return nil
}

func copperSpec() models.InstrumentSpec {
	return models.InstrumentSpec{
		Key:            "copper",
		CloseThreshold: 5.0,
		StopLoss:       18.0,
		VegaPerLot:     800,
	}
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func openSignal(ivDiff float64) *models.ArbitrageSignal {
	direction := models.LongDomesticShortForeign
	if ivDiff < 0 {
		direction = models.ShortDomesticLongForeign
	}
	return &models.ArbitrageSignal{
		Instrument: "copper",
		Direction:  direction,
		IVDiff:     ivDiff,
		DomesticIV: 20,
		ForeignIV:  20 + ivDiff,
		Contracts: models.ContractLegs{
			DomesticCall: "CU2604C103000",
			DomesticPut:  "CU2604P103000",
			ForeignCall:  "HGJ26C470",
			ForeignPut:   "HGJ26P470",
		},
		Timestamp: time.Now(),
	}
}

func pairWithDiff(diff float64) *models.InstrumentData {
	d, f := 20.0, 20.0+diff
	return &models.InstrumentData{
		Instrument: "copper",
		Domestic:   &models.MarketSnapshot{ImpliedVol: &d, IVSource: models.SourceOptionChain},
		Foreign:    &models.MarketSnapshot{ImpliedVol: &f, IVSource: models.SourceOptionChain},
	}
}

// managerAt returns a manager with a frozen clock and one open long-domestic
// position opened at openTime with spread openDiff, expiring at expiry.
func managerAt(t *testing.T, now, openTime, expiry time.Time, openDiff float64) (*Manager, *memStore) {
	t.Helper()
	store := &memStore{}
	m, err := NewManager(DefaultConfig(), store, quietLogger())
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}
	m.now = func() time.Time { return openTime }
	m.Record(openSignal(openDiff), expiry)
	m.now = func() time.Time { return now }
	return m, store
}

func TestRecordCreatesOpenPosition(t *testing.T) {
	store := &memStore{}
	m, err := NewManager(DefaultConfig(), store, quietLogger())
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}

	pos := m.Record(openSignal(9), time.Now().AddDate(0, 2, 0))
	if pos.ID == "" {
		t.Error("position ID is empty")
	}
	if pos.Status != models.PositionOpen {
		t.Errorf("Status = %q, want open", pos.Status)
	}
	if pos.OpenIVDiff != 9 {
		t.Errorf("OpenIVDiff = %v, want 9", pos.OpenIVDiff)
	}
	if len(m.Open()) != 1 {
		t.Errorf("Open() has %d positions, want 1", len(m.Open()))
	}
	if store.rewrites != 1 {
		t.Errorf("rewrites = %d, want 1", store.rewrites)
	}
}

func TestLoadFailureStartsEmpty(t *testing.T) {
	store := &memStore{loadErr: errors.New("disk gone")}
	m, err := NewManager(DefaultConfig(), store, quietLogger())
	if err == nil {
		t.Error("NewManager error = nil, want load error surfaced")
	}
	if m == nil {
		t.Fatal("NewManager returned nil manager, want usable empty manager")
	}
	if len(m.All()) != 0 {
		t.Errorf("All() has %d positions, want 0", len(m.All()))
	}
}

func TestEvaluateProfitTargetLongDomestic(t *testing.T) {
	now := time.Date(2026, time.March, 10, 10, 0, 0, 0, time.UTC)
	m, _ := managerAt(t, now, now.AddDate(0, 0, -3), now.AddDate(0, 2, 0), 9)

	signals := m.Evaluate(copperSpec(), pairWithDiff(4))
	if len(signals) != 1 {
		t.Fatalf("got %d signals, want 1", len(signals))
	}
	sig := signals[0]
	if sig.Reason != models.CloseProfitTarget {
		t.Errorf("Reason = %q, want profit_target", sig.Reason)
	}
	if sig.Urgency != models.UrgencyMedium {
		t.Errorf("Urgency = %q, want medium", sig.Urgency)
	}
	// Convergence from 9 to 4 earns (9-4)*800 on the long-domestic leg.
	if sig.EstimatedPnL != 4000 {
		t.Errorf("EstimatedPnL = %v, want 4000", sig.EstimatedPnL)
	}
}

func TestEvaluateStopLossLongDomestic(t *testing.T) {
	now := time.Date(2026, time.March, 10, 10, 0, 0, 0, time.UTC)
	m, _ := managerAt(t, now, now.AddDate(0, 0, -3), now.AddDate(0, 2, 0), 9)

	signals := m.Evaluate(copperSpec(), pairWithDiff(19))
	if len(signals) != 1 {
		t.Fatalf("got %d signals, want 1", len(signals))
	}
	sig := signals[0]
	if sig.Reason != models.CloseStopLoss {
		t.Errorf("Reason = %q, want stop_loss", sig.Reason)
	}
	if sig.Urgency != models.UrgencyHigh {
		t.Errorf("Urgency = %q, want high", sig.Urgency)
	}
	if sig.EstimatedPnL != -8000 {
		t.Errorf("EstimatedPnL = %v, want -8000", sig.EstimatedPnL)
	}
}

func TestEvaluateProfitTargetShortDomestic(t *testing.T) {
	now := time.Date(2026, time.March, 10, 10, 0, 0, 0, time.UTC)
	m, _ := managerAt(t, now, now.AddDate(0, 0, -3), now.AddDate(0, 2, 0), -9)

	// 1.5x the opening magnitude triggers the widening target.
	signals := m.Evaluate(copperSpec(), pairWithDiff(-14))
	if len(signals) != 1 {
		t.Fatalf("got %d signals, want 1", len(signals))
	}
	if signals[0].Reason != models.CloseProfitTarget {
		t.Errorf("Reason = %q, want profit_target", signals[0].Reason)
	}
}

func TestEvaluateExpiryGuardOverridesProfitTarget(t *testing.T) {
	now := time.Date(2026, time.March, 10, 10, 0, 0, 0, time.UTC)
	// Profit target condition holds (spread 4 under the 5 threshold) but
	// expiry is five days out; the guard runs later and wins.
	m, _ := managerAt(t, now, now.AddDate(0, 0, -3), now.AddDate(0, 0, 5), 9)

	signals := m.Evaluate(copperSpec(), pairWithDiff(4))
	if len(signals) != 1 {
		t.Fatalf("got %d signals, want 1", len(signals))
	}
	sig := signals[0]
	if sig.Reason != models.CloseExpiryGuard {
		t.Errorf("Reason = %q, want expiry_guard", sig.Reason)
	}
	if sig.Urgency != models.UrgencyHigh {
		t.Errorf("Urgency = %q, want high", sig.Urgency)
	}
	if sig.DaysToExpiry != 5 {
		t.Errorf("DaysToExpiry = %d, want 5", sig.DaysToExpiry)
	}
}

func TestEvaluateMaxHoldingOnlyWhenNothingElseFired(t *testing.T) {
	now := time.Date(2026, time.March, 10, 10, 0, 0, 0, time.UTC)
	m, _ := managerAt(t, now, now.AddDate(0, 0, -22), now.AddDate(0, 2, 0), 9)

	// Spread unchanged: no profit, no stop, expiry far away.
	signals := m.Evaluate(copperSpec(), pairWithDiff(9))
	if len(signals) != 1 {
		t.Fatalf("got %d signals, want 1", len(signals))
	}
	sig := signals[0]
	if sig.Reason != models.CloseMaxHolding {
		t.Errorf("Reason = %q, want max_holding", sig.Reason)
	}
	if sig.Urgency != models.UrgencyLow {
		t.Errorf("Urgency = %q, want low", sig.Urgency)
	}
}

func TestEvaluateNoTrigger(t *testing.T) {
	now := time.Date(2026, time.March, 10, 10, 0, 0, 0, time.UTC)
	m, _ := managerAt(t, now, now.AddDate(0, 0, -3), now.AddDate(0, 2, 0), 9)

	if signals := m.Evaluate(copperSpec(), pairWithDiff(9)); len(signals) != 0 {
		t.Errorf("got %d signals, want 0", len(signals))
	}
}

func TestEvaluateMissingIVSkips(t *testing.T) {
	now := time.Date(2026, time.March, 10, 10, 0, 0, 0, time.UTC)
	// Even with expiry imminent, a degraded feed must not trigger closes.
	m, _ := managerAt(t, now, now.AddDate(0, 0, -3), now.AddDate(0, 0, 2), 9)

	pair := pairWithDiff(4)
	pair.Foreign.ImpliedVol = nil
	pair.Foreign.IVSource = models.SourceUnavailable

	if signals := m.Evaluate(copperSpec(), pair); len(signals) != 0 {
		t.Errorf("got %d signals, want 0 with missing IV", len(signals))
	}
}

func TestEvaluateSignalRefiresUntilClosed(t *testing.T) {
	now := time.Date(2026, time.March, 10, 10, 0, 0, 0, time.UTC)
	m, _ := managerAt(t, now, now.AddDate(0, 0, -3), now.AddDate(0, 2, 0), 9)

	first := m.Evaluate(copperSpec(), pairWithDiff(4))
	if len(first) != 1 {
		t.Fatalf("first Evaluate got %d signals, want 1", len(first))
	}
	if first[0].Position.Status != models.PositionOpen {
		t.Error("position closed by Evaluate; emitting a signal must not close")
	}

	second := m.Evaluate(copperSpec(), pairWithDiff(4))
	if len(second) != 1 {
		t.Errorf("second Evaluate got %d signals, want 1 (signal re-fires)", len(second))
	}
}

func TestCloseMarksWithoutDeleting(t *testing.T) {
	now := time.Date(2026, time.March, 10, 10, 0, 0, 0, time.UTC)
	m, store := managerAt(t, now, now.AddDate(0, 0, -3), now.AddDate(0, 2, 0), 9)
	pos := m.Open()[0]

	if err := m.Close(pos.ID, models.CloseProfitTarget); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if pos.Status != models.PositionClosed {
		t.Errorf("Status = %q, want closed", pos.Status)
	}
	if pos.CloseTime == nil || !pos.CloseTime.Equal(now) {
		t.Errorf("CloseTime = %v, want %v", pos.CloseTime, now)
	}
	if len(m.Open()) != 0 {
		t.Errorf("Open() has %d positions, want 0", len(m.Open()))
	}
	if len(m.All()) != 1 {
		t.Errorf("All() has %d positions, want 1 (records are never deleted)", len(m.All()))
	}
	if len(store.saved) != 1 {
		t.Errorf("store has %d records, want 1", len(store.saved))
	}

	if err := m.Close(pos.ID, models.CloseProfitTarget); err == nil {
		t.Error("second Close error = nil, want already-closed error")
	}

	// A closed position no longer produces signals.
	if signals := m.Evaluate(copperSpec(), pairWithDiff(4)); len(signals) != 0 {
		t.Errorf("got %d signals after close, want 0", len(signals))
	}
}

func TestCloseUnknownPosition(t *testing.T) {
	m, _ := NewManager(DefaultConfig(), &memStore{}, quietLogger())
	if err := m.Close("nope", models.CloseProfitTarget); err == nil {
		t.Error("Close error = nil, want not-found error")
	}
}

func TestEvaluateUpdatesMarkFields(t *testing.T) {
	now := time.Date(2026, time.March, 10, 10, 0, 0, 0, time.UTC)
	m, _ := managerAt(t, now, now.AddDate(0, 0, -3), now.AddDate(0, 2, 0), 9)

	m.Evaluate(copperSpec(), pairWithDiff(4))
	pos := m.Open()[0]
	if pos.CurrentIVDiff == nil || *pos.CurrentIVDiff != 4 {
		t.Errorf("CurrentIVDiff = %v, want 4", pos.CurrentIVDiff)
	}
	if pos.UnrealizedPnL == nil || *pos.UnrealizedPnL != 4000 {
		t.Errorf("UnrealizedPnL = %v, want 4000", pos.UnrealizedPnL)
	}
}

func TestPersistFailureKeepsMemoryState(t *testing.T) {
	store := &memStore{saveErr: errors.New("disk full")}
	m, err := NewManager(DefaultConfig(), store, quietLogger())
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}

	m.Record(openSignal(9), time.Now().AddDate(0, 2, 0))
	if len(m.Open()) != 1 {
		t.Errorf("Open() has %d positions after failed persist, want 1", len(m.Open()))
	}
}
