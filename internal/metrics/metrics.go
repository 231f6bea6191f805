// Package metrics exposes Prometheus metrics for the liquidation engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OrdersTotal counts sell order submissions by instrument and outcome.
	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sellerbot",
		Name:      "orders_total",
		Help:      "Total sell orders submitted, by instrument and outcome.",
	}, []string{"isin", "outcome"})

	// OrderSplits observes how many split orders one submission produced.
	OrderSplits = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "sellerbot",
		Name:      "order_splits",
		Help:      "Number of orders a single sell submission was split into.",
		Buckets:   []float64{1, 2, 3, 5, 8, 13},
	})

	// CancellationsTotal counts cancel attempts by instrument and outcome.
	CancellationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sellerbot",
		Name:      "cancellations_total",
		Help:      "Total order cancellations, by instrument and outcome.",
	}, []string{"isin", "outcome"})

	// SoldVolume accumulates executed sell volume per instrument.
	SoldVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sellerbot",
		Name:      "sold_volume",
		Help:      "Cumulative executed sell volume, by instrument.",
	}, []string{"isin"})

	// PendingOrders tracks the active (non-terminal) order count per watcher.
	PendingOrders = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "sellerbot",
		Name:      "pending_orders",
		Help:      "Active pending sell orders, by watcher.",
	}, []string{"watcher"})

	// WatcherPhase reports the session phase a watcher last observed.
	WatcherPhase = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "sellerbot",
		Name:      "watcher_phase",
		Help:      "Session phase observed by a watcher (0=closed 1=premarket 2=freeze 3=trading).",
	}, []string{"watcher"})

	// WatchersRunning is the number of running watchers.
	WatchersRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sellerbot",
		Name:      "watchers_running",
		Help:      "Number of position watchers currently running.",
	})

	// Decisions counts sell decisions by reason code.
	Decisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sellerbot",
		Name:      "decisions_total",
		Help:      "Sell decisions taken, by reason code.",
	}, []string{"reason"})

	// TickLatency observes the duration of one watcher tick.
	TickLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "sellerbot",
		Name:      "tick_latency_seconds",
		Help:      "Duration of one watcher tick.",
		Buckets:   prometheus.DefBuckets,
	})

	// ErrorsTotal counts errors by type.
	ErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sellerbot",
		Name:      "errors_total",
		Help:      "Total errors, by type.",
	}, []string{"type"})
)
