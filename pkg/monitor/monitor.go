// Package monitor drives the polling loop: fetch both sides of every
// enabled instrument, analyze the spread, track positions, and notify.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/haoxu/ivarb/pkg/analyzer"
	"github.com/haoxu/ivarb/pkg/contracts"
	"github.com/haoxu/ivarb/pkg/marketdata"
	"github.com/haoxu/ivarb/pkg/metrics"
	"github.com/haoxu/ivarb/pkg/models"
	"github.com/haoxu/ivarb/pkg/notify"
	"github.com/haoxu/ivarb/pkg/positions"
)

// errorAlertThreshold cycles must fail in a row before the operator is
// paged, and at most one such page goes out per suppression window.
const (
	errorAlertThreshold   = 5
	errorAlertSuppressFor = time.Hour
)

type Config struct {
	Interval         time.Duration
	TradingHoursOnly bool
}

// Stats is a point-in-time copy of the loop's counters, safe to hand to
// the status API.
type Stats struct {
	StartTime           time.Time      `json:"start_time"`
	TotalChecks         int            `json:"total_checks"`
	TotalSignals        int            `json:"total_signals"`
	TotalCloseSignals   int            `json:"total_close_signals"`
	SignalsByInstrument map[string]int `json:"signals_by_instrument"`
	LastCheckTime       *time.Time     `json:"last_check_time,omitempty"`
	ConsecutiveErrors   int            `json:"consecutive_errors"`
}

type Monitor struct {
	cfg         Config
	instruments []models.InstrumentSpec
	fetcher     *marketdata.Fetcher
	analyzer    *analyzer.Analyzer
	positions   *positions.Manager
	resolver    contracts.Resolver
	notifier    notify.Notifier
	logger      *logrus.Logger

	mu        sync.RWMutex
	stats     Stats
	lastPairs map[string]*models.InstrumentData

	consecutiveErrors int
	lastErrorAlert    time.Time

	stopCh chan struct{}
	doneCh chan struct{}

	// now is swapped out by tests.
	now func() time.Time
}

func New(cfg Config, instruments []models.InstrumentSpec, fetcher *marketdata.Fetcher, anlz *analyzer.Analyzer, posMgr *positions.Manager, notifier notify.Notifier, logger *logrus.Logger) *Monitor {
	if logger == nil {
		logger = logrus.New()
	}
	byInstrument := make(map[string]int, len(instruments))
	for _, spec := range instruments {
		byInstrument[spec.Key] = 0
	}
	return &Monitor{
		cfg:         cfg,
		instruments: instruments,
		fetcher:     fetcher,
		analyzer:    anlz,
		positions:   posMgr,
		notifier:    notifier,
		logger:      logger,
		stats: Stats{
			StartTime:           time.Now(),
			SignalsByInstrument: byInstrument,
		},
		lastPairs: make(map[string]*models.InstrumentData),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
		now:       time.Now,
	}
}

// Run blocks until the context is cancelled or Stop is called. An in-flight
// cycle always finishes before Run returns.
func (m *Monitor) Run(ctx context.Context) {
	defer close(m.doneCh)

	m.logger.WithField("instruments", len(m.instruments)).Info("Starting arbitrage monitor")
	m.send(ctx, notify.RenderStartup(m.instruments, m.cfg.Interval))

	// First check immediately, then on the ticker.
	m.maybeCheck(ctx)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.shutdown(context.Background())
			return
		case <-m.stopCh:
			m.shutdown(ctx)
			return
		case <-ticker.C:
			m.maybeCheck(ctx)
		}
	}
}

func (m *Monitor) Stop() {
	m.logger.Info("Stopping arbitrage monitor")
	close(m.stopCh)
	<-m.doneCh
}

func (m *Monitor) maybeCheck(ctx context.Context) {
	if m.cfg.TradingHoursOnly && !InTradingHours(m.now()) {
		m.logger.Debug("Outside trading hours, skipping check")
		return
	}
	m.CheckOnce(ctx)
}

// CheckOnce runs one full cycle over every enabled instrument. Errors on one
// instrument never stop the others; a cycle counts as failed only when every
// instrument yielded nothing.
func (m *Monitor) CheckOnce(ctx context.Context) {
	m.logger.Info("Running arbitrage check")
	metrics.CyclesTotal.Inc()

	m.mu.Lock()
	m.stats.TotalChecks++
	m.mu.Unlock()

	usable := 0
	for _, spec := range m.instruments {
		if m.checkInstrument(ctx, spec) {
			usable++
		}
	}

	now := m.now()
	m.mu.Lock()
	m.stats.LastCheckTime = &now
	m.mu.Unlock()

	if usable == 0 {
		metrics.CycleErrors.Inc()
		m.recordCycleError(ctx, fmt.Sprintf("no instrument produced data at %s", now.Format("15:04:05")))
		return
	}
	m.resetCycleErrors()
}

func (m *Monitor) checkInstrument(ctx context.Context, spec models.InstrumentSpec) bool {
	log := m.logger.WithField("instrument", spec.Key)

	pair := m.fetcher.FetchPair(ctx, spec)
	m.observeFetch(spec.Key, pair)

	m.mu.Lock()
	m.lastPairs[spec.Key] = pair
	m.mu.Unlock()

	if pair.Domestic == nil && pair.Foreign == nil {
		return false
	}

	if sig := m.analyzer.Analyze(spec, pair); sig != nil {
		log.WithFields(logrus.Fields{
			"direction": sig.Direction,
			"iv_diff":   sig.IVDiff,
			"strength":  sig.Strength,
		}).Info("Arbitrage signal")
		metrics.SignalsTotal.WithLabelValues(spec.Key, string(sig.Direction)).Inc()

		m.mu.Lock()
		m.stats.TotalSignals++
		m.stats.SignalsByInstrument[spec.Key]++
		m.mu.Unlock()

		m.send(ctx, notify.RenderOpenSignal(sig))
		m.positions.Record(sig, m.resolver.ExpiryEstimate(sig.Timestamp))
	}

	for _, closeSig := range m.positions.Evaluate(spec, pair) {
		log.WithFields(logrus.Fields{
			"position": closeSig.Position.ID,
			"reason":   closeSig.Reason,
		}).Info("Close signal")
		metrics.CloseSignalsTotal.WithLabelValues(spec.Key, string(closeSig.Reason)).Inc()

		m.mu.Lock()
		m.stats.TotalCloseSignals++
		m.mu.Unlock()

		m.send(ctx, notify.RenderCloseSignal(closeSig))
	}
	return true
}

func (m *Monitor) observeFetch(instrument string, pair *models.InstrumentData) {
	if pair.Domestic != nil {
		metrics.FetchOutcomes.WithLabelValues(instrument, string(models.SideDomestic), string(pair.Domestic.IVSource)).Inc()
	}
	if pair.Foreign != nil {
		metrics.FetchOutcomes.WithLabelValues(instrument, string(models.SideForeign), string(pair.Foreign.IVSource)).Inc()
	}
}

// recordCycleError pages the operator after enough consecutive failures,
// but at most once per suppression window so a dead data source does not
// flood the chat.
func (m *Monitor) recordCycleError(ctx context.Context, detail string) {
	m.consecutiveErrors++
	m.mu.Lock()
	m.stats.ConsecutiveErrors = m.consecutiveErrors
	m.mu.Unlock()

	if m.consecutiveErrors < errorAlertThreshold {
		return
	}
	now := m.now()
	if now.Sub(m.lastErrorAlert) < errorAlertSuppressFor {
		return
	}
	m.lastErrorAlert = now
	m.send(ctx, notify.RenderError(fmt.Sprintf("%d consecutive failed cycles: %s", m.consecutiveErrors, detail)))
}

func (m *Monitor) resetCycleErrors() {
	m.consecutiveErrors = 0
	m.mu.Lock()
	m.stats.ConsecutiveErrors = 0
	m.mu.Unlock()
}

func (m *Monitor) send(ctx context.Context, text string) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Send(ctx, text); err != nil {
		metrics.NotifyFailures.Inc()
		m.logger.WithError(err).Error("Failed to send notification")
	}
}

func (m *Monitor) shutdown(ctx context.Context) {
	m.mu.RLock()
	checks, signals := m.stats.TotalChecks, m.stats.TotalSignals
	m.mu.RUnlock()
	m.send(ctx, notify.RenderShutdown(checks, signals))
}

// Stats returns a copy of the counters.
func (m *Monitor) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := m.stats
	out.SignalsByInstrument = make(map[string]int, len(m.stats.SignalsByInstrument))
	for k, v := range m.stats.SignalsByInstrument {
		out.SignalsByInstrument[k] = v
	}
	return out
}

// LastPairs returns the most recent snapshot pair per instrument.
func (m *Monitor) LastPairs() map[string]*models.InstrumentData {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]*models.InstrumentData, len(m.lastPairs))
	for k, v := range m.lastPairs {
		out[k] = v
	}
	return out
}

// InTradingHours reports whether t falls inside the day session (09:00 to
// 15:00) or the night session (21:00 through 01:00). Weekends are out
// entirely, so the tail of Friday's night session is deliberately cut at
// midnight.
func InTradingHours(t time.Time) bool {
	if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	hm := t.Format("15:04")
	inDay := hm >= "09:00" && hm <= "15:00"
	inNight := hm >= "21:00" || hm <= "01:00"
	return inDay || inNight
}
