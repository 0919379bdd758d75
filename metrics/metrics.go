package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// transactions
	TxOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coco_tx_outcomes_total",
			Help: "Terminal outcomes of submitted transactions and user operations",
		},
		[]string{"chain", "kind", "outcome"},
	)

	ConfirmWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coco_confirm_wait_seconds",
			Help:    "Time spent waiting for a terminal receipt",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"chain", "kind"},
	)

	// bridge
	BridgePhases = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coco_bridge_phase_transitions_total",
			Help: "Bridge phase transitions",
		},
		[]string{"phase"},
	)

	// refreshers
	RefreshFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coco_refresh_failures_total",
			Help: "Refresh cycles that kept the previous snapshot",
		},
		[]string{"worker", "chain"},
	)

	LastRefresh = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "coco_last_refresh_timestamp_seconds",
			Help: "Unix time of the last successful refresh",
		},
		[]string{"worker"},
	)
)

func Chain(chainID int) string {
	return strconv.Itoa(chainID)
}
