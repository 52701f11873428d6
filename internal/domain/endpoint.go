package domain

import (
	"math"
	"sync/atomic"
	"time"
)

// EndpointState is the mutable health/scoring record the RPC pool keeps
// per configured endpoint. All fields the health loop and the request
// path touch concurrently are plain atomics rather than behind a mutex,
// so scoring a hundred endpoints never blocks a request in flight.
type EndpointState struct {
	Config EndpointConfig

	totalRequests      uint64
	totalErrors        uint64
	consecutiveFailures uint64
	lastLatencyMicros  uint64
	ewmaLatencyMicros  uint64 // stored as math.Float64bits
	healthy            uint32 // 0/1
	lastSuccessUnixNano int64
	cooldownUntilUnixNano int64
	score              uint64 // stored as math.Float64bits
}

// NewEndpointState seeds a fresh, healthy tracking record.
func NewEndpointState(cfg EndpointConfig) *EndpointState {
	e := &EndpointState{Config: cfg}
	atomic.StoreUint32(&e.healthy, 1)
	atomic.StoreUint64(&e.score, math.Float64bits(100))
	return e
}

// RecordSuccess folds a successful call's latency into the EWMA
// (alpha=0.2, per the pool's scoring formula) and resets the
// consecutive-failure streak.
func (e *EndpointState) RecordSuccess(latency time.Duration) {
	atomic.AddUint64(&e.totalRequests, 1)
	atomic.StoreUint64(&e.lastLatencyMicros, uint64(latency.Microseconds()))
	atomic.StoreInt64(&e.lastSuccessUnixNano, time.Now().UnixNano())
	atomic.StoreUint64(&e.consecutiveFailures, 0)

	const alpha = 0.2
	for {
		old := atomic.LoadUint64(&e.ewmaLatencyMicros)
		oldF := math.Float64frombits(old)
		var newF float64
		if oldF == 0 {
			newF = float64(latency.Microseconds())
		} else {
			newF = alpha*float64(latency.Microseconds()) + (1-alpha)*oldF
		}
		if atomic.CompareAndSwapUint64(&e.ewmaLatencyMicros, old, math.Float64bits(newF)) {
			break
		}
	}
}

// RecordFailure bumps the error and consecutive-failure counters.
func (e *EndpointState) RecordFailure() {
	atomic.AddUint64(&e.totalRequests, 1)
	atomic.AddUint64(&e.totalErrors, 1)
	atomic.AddUint64(&e.consecutiveFailures, 1)
}

// EWMALatencyMicros reads the current latency estimate.
func (e *EndpointState) EWMALatencyMicros() float64 {
	return math.Float64frombits(atomic.LoadUint64(&e.ewmaLatencyMicros))
}

// ConsecutiveFailures reads the current failure streak.
func (e *EndpointState) ConsecutiveFailures() uint64 {
	return atomic.LoadUint64(&e.consecutiveFailures)
}

// SuccessRate is total successes over total requests, 1.0 when no
// requests have been made yet (optimistic prior).
func (e *EndpointState) SuccessRate() float64 {
	total := atomic.LoadUint64(&e.totalRequests)
	if total == 0 {
		return 1.0
	}
	errs := atomic.LoadUint64(&e.totalErrors)
	return float64(total-errs) / float64(total)
}

// SetHealthy updates the coarse health flag the pool's selection filter
// checks before scoring.
func (e *EndpointState) SetHealthy(v bool) {
	if v {
		atomic.StoreUint32(&e.healthy, 1)
	} else {
		atomic.StoreUint32(&e.healthy, 0)
	}
}

// Healthy reads the coarse health flag.
func (e *EndpointState) Healthy() bool {
	return atomic.LoadUint32(&e.healthy) == 1
}

// EnterCooldown marks the endpoint unselectable until now+d.
func (e *EndpointState) EnterCooldown(d time.Duration) {
	atomic.StoreInt64(&e.cooldownUntilUnixNano, time.Now().Add(d).UnixNano())
}

// InCooldown reports whether the endpoint is still serving a cooldown.
func (e *EndpointState) InCooldown() bool {
	return time.Now().UnixNano() < atomic.LoadInt64(&e.cooldownUntilUnixNano)
}

// DynamicScore computes and caches the scoring formula:
//
//	score = 100 - latency_penalty - failure_penalty + tier_bonus + (success_rate-0.5)*40
//	latency_penalty = min(ewma_latency_ms/10, 50)
//	failure_penalty = min(consecutive_failures*10, 30)
//
// clamped to [0, 200].
func (e *EndpointState) DynamicScore() float64 {
	latencyMs := e.EWMALatencyMicros() / 1000
	latencyPenalty := math.Min(latencyMs/10, 50)
	failurePenalty := math.Min(float64(e.ConsecutiveFailures())*10, 30)
	tierBonus := e.Config.Tier.TierBonus()
	successRate := e.SuccessRate()

	s := 100 - latencyPenalty - failurePenalty + tierBonus + (successRate-0.5)*40
	if s < 0 {
		s = 0
	}
	if s > 200 {
		s = 200
	}
	atomic.StoreUint64(&e.score, math.Float64bits(s))
	return s
}

// CachedScore returns the last computed score without recomputing it.
func (e *EndpointState) CachedScore() float64 {
	return math.Float64frombits(atomic.LoadUint64(&e.score))
}

// EndpointStats is a snapshot of one endpoint's counters, safe to
// serialize or log. Each field is read atomically, but the fields are
// not read together as one consistent unit (see Snapshot).
type EndpointStats struct {
	URL                 string
	Tier                EndpointTier
	Healthy             bool
	TotalRequests       uint64
	TotalErrors         uint64
	ConsecutiveFailures uint64
	EWMALatencyMicros   float64
	Score               float64
	InCooldown          bool
}

// Snapshot captures EndpointStats atomically field-by-field. Individual
// loads can interleave with concurrent writers, but each field is
// always a value that existed at some instant during the call, which is
// the consistency level the pool's stats endpoint needs.
func (e *EndpointState) Snapshot() EndpointStats {
	return EndpointStats{
		URL:                 e.Config.URL,
		Tier:                e.Config.Tier,
		Healthy:             e.Healthy(),
		TotalRequests:       atomic.LoadUint64(&e.totalRequests),
		TotalErrors:         atomic.LoadUint64(&e.totalErrors),
		ConsecutiveFailures: e.ConsecutiveFailures(),
		EWMALatencyMicros:   e.EWMALatencyMicros(),
		Score:               e.CachedScore(),
		InCooldown:          e.InCooldown(),
	}
}
