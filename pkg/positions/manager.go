package positions

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/haoxu/ivarb/pkg/models"
)

// Config carries the global lifecycle knobs; the economic thresholds are
// per-instrument and arrive with the spec at evaluation time.
type Config struct {
	// DaysBeforeExpiry is the expiry guard buffer: at or under this many
	// days to expiry a close is requested unconditionally.
	DaysBeforeExpiry int
	// MaxHoldingDays triggers a low-urgency review request when no other
	// reason has fired.
	MaxHoldingDays int
}

func DefaultConfig() Config {
	return Config{
		DaysBeforeExpiry: 7,
		MaxHoldingDays:   21,
	}
}

// Manager owns the in-memory position set and serializes every change
// through itself, so whole-file rewrites never race.
type Manager struct {
	cfg    Config
	store  Store
	logger *logrus.Logger

	positions []*models.Position

	now func() time.Time
}

// NewManager loads the existing position set. A load failure is logged and
// reported but the manager still starts, empty, rather than taking the
// whole process down.
func NewManager(cfg Config, store Store, logger *logrus.Logger) (*Manager, error) {
	if logger == nil {
		logger = logrus.New()
	}
	m := &Manager{
		cfg:    cfg,
		store:  store,
		logger: logger,
		now:    time.Now,
	}

	loaded, err := store.LoadAll()
	if err != nil {
		logger.WithError(err).Error("failed to load positions, starting empty")
		return m, err
	}
	m.positions = loaded
	logger.WithField("count", len(loaded)).Info("loaded position records")
	return m, nil
}

// Record accepts an open signal as a new position. A fresh record is always
// created; instruments are never "reopened". The contract codes and opening
// values are frozen here and never recomputed.
func (m *Manager) Record(sig *models.ArbitrageSignal, expiry time.Time) *models.Position {
	pos := &models.Position{
		ID:                uuid.NewString(),
		Instrument:        sig.Instrument,
		OpenTime:          m.now(),
		Direction:         sig.Direction,
		OpenDomesticIV:    sig.DomesticIV,
		OpenForeignIV:     sig.ForeignIV,
		OpenIVDiff:        sig.IVDiff,
		OpenDomesticPrice: sig.DomesticPrice,
		OpenForeignPrice:  sig.ForeignPrice,
		DomesticCall:      sig.Contracts.DomesticCall,
		DomesticPut:       sig.Contracts.DomesticPut,
		ForeignCall:       sig.Contracts.ForeignCall,
		ForeignPut:        sig.Contracts.ForeignPut,
		ExpiryDate:        expiry,
		Status:            models.PositionOpen,
	}
	m.positions = append(m.positions, pos)
	m.persist()
	m.logger.WithFields(logrus.Fields{
		"position":   pos.ID,
		"instrument": pos.Instrument,
		"direction":  pos.Direction,
	}).Info("recorded new position")
	return pos
}

// Open returns the currently open positions, oldest first.
func (m *Manager) Open() []*models.Position {
	var out []*models.Position
	for _, p := range m.positions {
		if p.Status == models.PositionOpen {
			out = append(out, p)
		}
	}
	return out
}

// All returns every record, open and closed.
func (m *Manager) All() []*models.Position {
	out := make([]*models.Position, len(m.positions))
	copy(out, m.positions)
	return out
}

// Evaluate checks every open position of the instrument against the cycle's
// fresh pair and emits close signals. The four triggers run in a fixed
// order (profit target, stop loss, expiry guard, max holding) and a later
// trigger overwrites the reason set by an earlier one in the same cycle.
// Which reason should win when several fire at once is an open product
// question, so the last-writer-wins behavior is not re-prioritized here.
//
// Emitting a close signal does not close the position: closing is an
// explicit separate action, so the signal re-fires every cycle until the
// operator acknowledges it.
func (m *Manager) Evaluate(spec models.InstrumentSpec, pair *models.InstrumentData) []*models.CloseSignal {
	if pair == nil {
		return nil
	}
	currentDiff, ok := pair.IVDiff()
	if !ok {
		// Without both IVs there is no spread to judge; expiry and
		// holding-time checks wait for the next complete cycle too, so
		// a degraded feed cannot trigger a panicked unwind.
		return nil
	}

	now := m.now()
	var signals []*models.CloseSignal
	dirty := false

	for _, pos := range m.positions {
		if pos.Status != models.PositionOpen || pos.Instrument != spec.Key {
			continue
		}

		diffChange := currentDiff - pos.OpenIVDiff
		daysToExpiry := int(pos.ExpiryDate.Sub(now).Hours() / 24)
		holdingDays := int(now.Sub(pos.OpenTime).Hours() / 24)

		// Long domestic vol profits as the spread converges.
		var pnl float64
		if pos.Direction == models.LongDomesticShortForeign {
			pnl = -diffChange * spec.VegaPerLot
		} else {
			pnl = diffChange * spec.VegaPerLot
		}

		var reason models.CloseReason
		var detail string
		var urgency models.Urgency

		// 1. Profit target.
		if pos.Direction == models.LongDomesticShortForeign {
			if absf(currentDiff) < spec.CloseThreshold {
				reason = models.CloseProfitTarget
				detail = fmt.Sprintf("IV spread converged to %.1f%%, profit target reached", currentDiff)
				urgency = models.UrgencyMedium
			}
		} else if absf(currentDiff) > absf(pos.OpenIVDiff)*1.5 {
			reason = models.CloseProfitTarget
			detail = "IV spread widened past 1.5x its opening level, profit target reached"
			urgency = models.UrgencyMedium
		}

		// 2. Stop loss. Only the long-domestic leg bleeds when the
		// spread keeps widening.
		if pos.Direction == models.LongDomesticShortForeign && currentDiff > spec.StopLoss {
			reason = models.CloseStopLoss
			detail = fmt.Sprintf("IV spread widened to %.1f%%, stop loss hit", currentDiff)
			urgency = models.UrgencyHigh
		}

		// 3. Expiry guard: physical settlement risk overrides the
		// economics, always.
		if daysToExpiry <= m.cfg.DaysBeforeExpiry {
			reason = models.CloseExpiryGuard
			detail = fmt.Sprintf("%d days to expiry, close or roll", daysToExpiry)
			urgency = models.UrgencyHigh
		}

		// 4. Max holding, only when nothing else asked for a close.
		if reason == "" && holdingDays >= m.cfg.MaxHoldingDays {
			reason = models.CloseMaxHolding
			detail = fmt.Sprintf("held %d days, review whether to keep the hedge on", holdingDays)
			urgency = models.UrgencyLow
		}

		if reason == "" {
			continue
		}

		cd := currentDiff
		p := pnl
		pos.CurrentIVDiff = &cd
		pos.UnrealizedPnL = &p
		dirty = true

		signals = append(signals, &models.CloseSignal{
			Position:      pos,
			Reason:        reason,
			Detail:        detail,
			CurrentIVDiff: currentDiff,
			IVDiffChange:  diffChange,
			DaysToExpiry:  daysToExpiry,
			EstimatedPnL:  pnl,
			Urgency:       urgency,
			Timestamp:     now,
		})
	}

	if dirty {
		m.persist()
	}
	return signals
}

// Close marks a position closed. Records are never deleted; the closed row
// stays in the file as the audit trail.
func (m *Manager) Close(positionID string, reason models.CloseReason) error {
	for _, pos := range m.positions {
		if pos.ID != positionID {
			continue
		}
		if pos.Status == models.PositionClosed {
			return fmt.Errorf("position %s already closed", positionID)
		}
		t := m.now()
		pos.Status = models.PositionClosed
		pos.CloseTime = &t
		pos.CloseReason = reason
		m.persist()
		m.logger.WithField("position", positionID).Info("position closed")
		return nil
	}
	return fmt.Errorf("position %s not found", positionID)
}

// persist rewrites the whole set. Failure is logged and the in-memory state
// kept; the poll loop must survive a full disk or a permissions hiccup.
func (m *Manager) persist() {
	if err := m.store.RewriteAll(m.positions); err != nil {
		m.logger.WithError(err).Error("failed to persist positions, keeping in-memory state")
	}
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
