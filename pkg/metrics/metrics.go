package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	CyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "ivarb_cycles_total", Help: "Monitoring cycles completed"},
	)
	FetchOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ivarb_fetch_outcomes_total", Help: "Market data fetches by instrument, side and IV source"},
		[]string{"instrument", "side", "source"},
	)
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ivarb_signals_total", Help: "Open signals emitted"},
		[]string{"instrument", "direction"},
	)
	CloseSignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ivarb_close_signals_total", Help: "Close signals emitted by reason"},
		[]string{"instrument", "reason"},
	)
	NotifyFailures = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "ivarb_notify_failures_total", Help: "Notification deliveries that failed"},
	)
	CycleErrors = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "ivarb_cycle_errors_total", Help: "Cycles that ended with a fetch or analysis error"},
	)
)

func init() {
	prometheus.MustRegister(CyclesTotal, FetchOutcomes, SignalsTotal, CloseSignalsTotal, NotifyFailures, CycleErrors)
}
