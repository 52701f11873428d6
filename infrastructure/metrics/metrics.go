// Package metrics provides Prometheus metrics collection for the sniper
// agent. It is the export layer: the hot path updates lock-free atomic
// counters (see AtomicMetrics), and a low-frequency export loop copies
// those into these Prometheus collectors for scraping.
package metrics

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kestrel-systems/sniper/infrastructure/runtime"
)

// Metrics holds all Prometheus metrics for the sniper agent.
type Metrics struct {
	CandidatesTotal     *prometheus.CounterVec
	CandidatesDropped   *prometheus.CounterVec
	CandidateQueueDepth prometheus.Gauge

	RPCRequestsTotal   *prometheus.CounterVec
	RPCRequestDuration *prometheus.HistogramVec
	RPCEndpointScore   *prometheus.GaugeVec
	RPCEndpointHealthy *prometheus.GaugeVec

	NonceLeasesActive   prometheus.Gauge
	NonceLeasesExpired  prometheus.Counter
	NonceRotationsTotal *prometheus.CounterVec

	TxBuildTotal     *prometheus.CounterVec
	TxBuildDuration  *prometheus.HistogramVec
	TxBroadcastTotal *prometheus.CounterVec

	PositionsOpen    prometheus.Gauge
	PositionsClosed  *prometheus.CounterVec
	RealizedPnLTotal prometheus.Counter

	ErrorsTotal *prometheus.CounterVec

	ServiceUptime prometheus.Gauge
	ServiceInfo   *prometheus.GaugeVec
}

// New creates a new Metrics instance registered against the default
// Prometheus registry.
func New(serviceName string) *Metrics {
	return NewWithRegistry(serviceName, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new Metrics instance with a custom registry.
func NewWithRegistry(serviceName string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		CandidatesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "candidates_total", Help: "Total candidates accepted by the sniffer"},
			[]string{"priority"},
		),
		CandidatesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "candidates_dropped_total", Help: "Total candidates dropped by the back-pressure policy"},
			[]string{"policy"},
		),
		CandidateQueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "candidate_queue_depth", Help: "Current depth of the candidate queue"},
		),

		RPCRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "rpc_requests_total", Help: "Total RPC requests issued"},
			[]string{"endpoint", "method", "status"},
		),
		RPCRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rpc_request_duration_seconds",
				Help:    "RPC request duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"endpoint", "method"},
		),
		RPCEndpointScore: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "rpc_endpoint_score", Help: "Current dynamic score of an RPC endpoint"},
			[]string{"endpoint", "tier"},
		),
		RPCEndpointHealthy: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "rpc_endpoint_healthy", Help: "1 if the endpoint is healthy, 0 otherwise"},
			[]string{"endpoint"},
		),

		NonceLeasesActive: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "nonce_leases_active", Help: "Currently held nonce leases"},
		),
		NonceLeasesExpired: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "nonce_leases_expired_total", Help: "Leases reclaimed by the reaper after TTL expiry"},
		),
		NonceRotationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "nonce_rotations_total", Help: "Authority rotation transitions"},
			[]string{"to_state"},
		),

		TxBuildTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "tx_build_total", Help: "Total transaction build attempts"},
			[]string{"status"},
		),
		TxBuildDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tx_build_duration_seconds",
				Help:    "Transaction build duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"stage"},
		),
		TxBroadcastTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "tx_broadcast_total", Help: "Total transaction broadcasts"},
			[]string{"route", "status"},
		),

		PositionsOpen: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "positions_open", Help: "Currently open positions"},
		),
		PositionsClosed: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "positions_closed_total", Help: "Closed positions"},
			[]string{"reason"},
		),
		RealizedPnLTotal: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "realized_pnl_native_total", Help: "Cumulative realized P&L in native units"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "errors_total", Help: "Total errors by category"},
			[]string{"category", "operation"},
		),

		ServiceUptime: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "service_uptime_seconds", Help: "Service uptime in seconds"},
		),
		ServiceInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "service_info", Help: "Service information"},
			[]string{"service", "version", "environment"},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.CandidatesTotal, m.CandidatesDropped, m.CandidateQueueDepth,
			m.RPCRequestsTotal, m.RPCRequestDuration, m.RPCEndpointScore, m.RPCEndpointHealthy,
			m.NonceLeasesActive, m.NonceLeasesExpired, m.NonceRotationsTotal,
			m.TxBuildTotal, m.TxBuildDuration, m.TxBroadcastTotal,
			m.PositionsOpen, m.PositionsClosed, m.RealizedPnLTotal,
			m.ErrorsTotal,
			m.ServiceUptime, m.ServiceInfo,
		)
	}

	m.ServiceInfo.WithLabelValues(serviceName, "0.1.0", getEnvironment()).Set(1)

	return m
}

// RecordRPCRequest records one RPC call against an endpoint.
func (m *Metrics) RecordRPCRequest(endpoint, method, status string, duration time.Duration) {
	m.RPCRequestsTotal.WithLabelValues(endpoint, method, status).Inc()
	m.RPCRequestDuration.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

// RecordError records an error by category and the operation it occurred in.
func (m *Metrics) RecordError(category, operation string) {
	m.ErrorsTotal.WithLabelValues(category, operation).Inc()
}

// RecordTxBuild records a build-stage duration.
func (m *Metrics) RecordTxBuild(stage string, duration time.Duration) {
	m.TxBuildDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// UpdateUptime updates the service uptime gauge.
func (m *Metrics) UpdateUptime(startTime time.Time) {
	m.ServiceUptime.Set(time.Since(startTime).Seconds())
}

func getEnvironment() string {
	return string(runtime.Env())
}

// Enabled returns whether Prometheus metrics should be exposed.
func Enabled() bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("METRICS_ENABLED")))
	if raw == "" {
		return true
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

var (
	globalMetrics *Metrics
	globalMu      sync.Mutex
)

// Init initializes the global metrics instance.
func Init(serviceName string) *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics == nil {
		globalMetrics = New(serviceName)
	}
	return globalMetrics
}

// Global returns the global metrics instance.
func Global() *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics == nil {
		globalMetrics = New("sniper")
	}
	return globalMetrics
}
