package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus series served at /metrics by the control server.
var (
	mtxExits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitor_exits_total",
			Help: "Executed exits split by reason and position direction",
		},
		[]string{"reason", "direction"},
	)

	mtxFailedExits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "monitor_failed_exits_total",
			Help: "Exit orders that exhausted their retry budget",
		},
	)

	mtxFeedErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "monitor_feed_errors_total",
			Help: "Monitoring ticks skipped due to price feed failures",
		},
	)

	mtxOpenPositions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "monitor_open_positions",
			Help: "Positions currently under risk management",
		},
	)

	mtxUnrealizedPnL = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "monitor_unrealized_pnl",
			Help: "Aggregate unrealized PnL across live positions",
		},
	)

	// Gauge, not counter: realized PnL moves in both directions.
	mtxRealizedPnL = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "monitor_realized_pnl",
			Help: "Cumulative realized PnL from executed exits",
		},
	)
)
