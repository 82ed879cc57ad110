package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	gatewayOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbbrowser_gateway_operations_total",
			Help: "Total number of gateway operations by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)
	gatewayOperationDurationMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dbbrowser_gateway_operation_duration_ms",
			Help:    "Gateway operation latency in milliseconds, connection open to close.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		},
		[]string{"operation"},
	)
	gatewayRowsReturned = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dbbrowser_gateway_rows_returned",
			Help:    "Number of rows returned by get_data calls.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		},
	)
	exportBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbbrowser_export_bytes_total",
			Help: "Total number of parquet bytes produced by table exports, by target.",
		},
		[]string{"target"},
	)
)

func init() {
	prometheus.MustRegister(
		gatewayOperationsTotal,
		gatewayOperationDurationMs,
		gatewayRowsReturned,
		exportBytesTotal,
	)
}

// ObserveGatewayOperation records one gateway call. outcome is "ok",
// "invalid_argument" or "storage_error".
func ObserveGatewayOperation(operation, outcome string, elapsed time.Duration) {
	gatewayOperationsTotal.WithLabelValues(operation, outcome).Inc()
	gatewayOperationDurationMs.WithLabelValues(operation).Observe(float64(elapsed.Milliseconds()))
}

func ObserveRowsReturned(rows int) {
	if rows < 0 {
		rows = 0
	}
	gatewayRowsReturned.Observe(float64(rows))
}

func AddExportBytes(target string, size int64) {
	if size <= 0 {
		return
	}
	exportBytesTotal.WithLabelValues(target).Add(float64(size))
}
