// Prometheus metrics for the pipeline daemons, registered in init and served
// at /metrics by the supervisor.

package app

import (
	"fmt"
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	mtxBarsClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_bars_closed_total",
			Help: "Aggregated bars written per timeframe",
		},
		[]string{"timeframe"},
	)

	mtxGapsDetected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_gaps_detected_total",
			Help: "Bars flagged as gaps per timeframe and direction",
		},
		[]string{"timeframe", "direction"},
	)

	mtxSignalsEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_signals_emitted_total",
			Help: "Signals written by the strategy runner, by type",
		},
		[]string{"type"},
	)

	mtxSignalsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_signals_processed_total",
			Help: "Signals consumed by the execution engine, by outcome",
		},
		[]string{"outcome"}, // ordered|rejected|skipped|failed
	)

	mtxOrdersFilled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_orders_total",
			Help: "Broker order outcomes",
		},
		[]string{"status"}, // filled|rejected
	)

	mtxEquity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pipeline_equity",
			Help: "Account equity snapshot",
		},
	)

	mtxFreeCash = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pipeline_free_cash",
			Help: "Account free cash snapshot",
		},
	)

	mtxServiceUp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pipeline_service_up",
			Help: "1 when the health monitor considers a service alive",
		},
		[]string{"service"},
	)

	mtxDataLagSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pipeline_minute_data_lag_seconds",
			Help: "Age of the newest minute candle",
		},
	)
)

func init() {
	prometheus.MustRegister(
		mtxBarsClosed,
		mtxGapsDetected,
		mtxSignalsEmitted,
		mtxSignalsProcessed,
		mtxOrdersFilled,
		mtxEquity,
		mtxFreeCash,
		mtxServiceUp,
		mtxDataLagSeconds,
	)
}

// serveMetrics exposes /metrics on the configured port
func serveMetrics(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	log.Printf("📈 Metrics listening on %s/metrics", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Printf("⚠️  Metrics server failed: %v", err)
	}
}
