package prometrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	calls *prometheus.CounterVec

	callDuration *prometheus.HistogramVec

	logAppends *prometheus.CounterVec
)

func init() {
	calls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leap_rpc_calls_total",
			Help: "Total number of dispatched RPC calls",
		},
		[]string{"experiment", "func", "ok"},
	)
	callDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "leap_rpc_call_duration_seconds",
			Help:    "Duration of function invocations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"experiment", "func"},
	)
	logAppends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leap_log_appends_total",
			Help: "Total number of audit log entries written",
		},
		[]string{"experiment"},
	)
}

// ObserveCall records one dispatched call.
func ObserveCall(experiment, funcName string, ok bool, d time.Duration) {
	calls.WithLabelValues(experiment, funcName, strconv.FormatBool(ok)).Inc()
	callDuration.WithLabelValues(experiment, funcName).Observe(d.Seconds())
}

// CountLogAppend records one audit log append.
func CountLogAppend(experiment string) {
	logAppends.WithLabelValues(experiment).Inc()
}

// Handler returns the Prometheus HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
