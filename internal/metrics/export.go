package metrics

import (
	"context"
	"time"

	inframetrics "github.com/kestrel-systems/sniper/infrastructure/metrics"
	"github.com/kestrel-systems/sniper/infrastructure/logging"
)

// Metric names used by the registry in metrics.go, matched on the
// export side against the corresponding infrastructure/metrics collector.
const (
	NameCandidatesAccepted = "candidates_accepted"
	NameCandidatesDropped  = "candidates_dropped"
	NameQueueDepth         = "candidate_queue_depth"
	NameRPCRequests        = "rpc_requests"
	NameRPCDuration        = "rpc_request_duration_ms"
	NameNonceLeasesActive  = "nonce_leases_active"
	NameNonceLeasesExpired = "nonce_leases_expired"
	NameTxBuildTotal       = "tx_build_total"
	NamePositionsOpen      = "positions_open"
	NameRealizedPnL        = "realized_pnl_native"
	NameErrorsTotal        = "errors_total"
)

// Export walks a snapshot of m and pushes scalar fields into reg,
// giving the (out-of-scope) HTTP exporter a Prometheus surface to
// scrape without coupling the hot path to the prometheus client.
func (m *Metrics) Export(reg *inframetrics.Metrics) {
	snap := m.Snapshot()

	if v, ok := snap.Gauges[NameQueueDepth]; ok {
		reg.CandidateQueueDepth.Set(v)
	}
	if v, ok := snap.Gauges[NameNonceLeasesActive]; ok {
		reg.NonceLeasesActive.Set(v)
	}
	if v, ok := snap.Gauges[NamePositionsOpen]; ok {
		reg.PositionsOpen.Set(v)
	}
	if v, ok := snap.FloatCounters[NameRealizedPnL]; ok {
		reg.RealizedPnLTotal.Add(v)
	}
}

// StartJSONExporter periodically logs a JSON-serializable snapshot of
// m to log, satisfying the "optional periodic JSON metrics export via
// a log sink" output. Runs until ctx is cancelled.
func StartJSONExporter(ctx context.Context, m *Metrics, log *logging.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := m.Snapshot()
			log.WithFields(map[string]interface{}{
				"counters":       snap.Counters,
				"float_counters": snap.FloatCounters,
				"gauges":         snap.Gauges,
			}).Info("metrics snapshot")
		}
	}
}
