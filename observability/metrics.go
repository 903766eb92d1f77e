package observability

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ContractMetrics tracks contract invocations processed by the host.
type ContractMetrics struct {
	invocations *prometheus.CounterVec
	errors      *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	released    prometheus.Gauge
	total       prometheus.Gauge
	height      prometheus.Gauge
}

// RPCMetrics tracks JSON-RPC traffic.
type RPCMetrics struct {
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	contractMetricsOnce sync.Once
	contractRegistry    *ContractMetrics

	rpcMetricsOnce sync.Once
	rpcRegistry    *RPCMetrics
)

// Contract returns the lazily-initialised contract metrics registry.
func Contract() *ContractMetrics {
	contractMetricsOnce.Do(func() {
		contractRegistry = &ContractMetrics{
			invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ecorelease",
				Subsystem: "contract",
				Name:      "invocations_total",
				Help:      "Contract invocations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ecorelease",
				Subsystem: "contract",
				Name:      "errors_total",
				Help:      "Rejected contract invocations segmented by operation and error kind.",
			}, []string{"operation", "kind"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "ecorelease",
				Subsystem: "contract",
				Name:      "invocation_duration_seconds",
				Help:      "Latency distribution for contract invocations including commit.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			released: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "ecorelease",
				Subsystem: "contract",
				Name:      "released_tokens",
				Help:      "Tokens released to the beneficiary so far.",
			}),
			total: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "ecorelease",
				Subsystem: "contract",
				Name:      "total_tokens",
				Help:      "Release ceiling recorded at instantiation.",
			}),
			height: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "ecorelease",
				Subsystem: "host",
				Name:      "committed_height",
				Help:      "Height of the last committed invocation.",
			}),
		}
		prometheus.MustRegister(
			contractRegistry.invocations,
			contractRegistry.errors,
			contractRegistry.latency,
			contractRegistry.released,
			contractRegistry.total,
			contractRegistry.height,
		)
	})
	return contractRegistry
}

// Observe records a finished invocation. kind is empty on success.
func (m *ContractMetrics) Observe(operation, kind string, duration time.Duration) {
	if m == nil {
		return
	}
	operation = normalizeLabel(operation)
	outcome := "success"
	if kind != "" {
		outcome = "error"
		m.errors.WithLabelValues(operation, normalizeLabel(kind)).Inc()
	}
	m.invocations.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetSupply publishes the release progress.
func (m *ContractMetrics) SetSupply(released, total int64) {
	if m == nil {
		return
	}
	m.released.Set(float64(released))
	m.total.Set(float64(total))
}

// SetHeight publishes the last committed height.
func (m *ContractMetrics) SetHeight(height int64) {
	if m == nil {
		return
	}
	m.height.Set(float64(height))
}

// RPC returns the lazily-initialised RPC metrics registry.
func RPC() *RPCMetrics {
	rpcMetricsOnce.Do(func() {
		rpcRegistry = &RPCMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ecorelease",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "ecorelease",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ecorelease",
				Subsystem: "rpc",
				Name:      "throttles_total",
				Help:      "Count of requests rejected due to throttling policies.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(
			rpcRegistry.requests,
			rpcRegistry.latency,
			rpcRegistry.throttles,
		)
	})
	return rpcRegistry
}

// Observe records the outcome of an RPC request.
func (m *RPCMetrics) Observe(method string, failed bool, duration time.Duration) {
	if m == nil {
		return
	}
	method = normalizeLabel(method)
	outcome := "success"
	if failed {
		outcome = "error"
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	m.latency.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter. Reasons should be stable
// strings such as "rate_limit".
func (m *RPCMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	m.throttles.WithLabelValues(normalizeLabel(reason)).Inc()
}

func normalizeLabel(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "unknown"
	}
	return v
}
