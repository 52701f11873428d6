// Package rpcpool multiplexes calls across a set of RPC endpoints,
// scoring each one by latency, success rate and tier, and steering load
// away from unhealthy or cooling-down endpoints. Per-endpoint calls are
// wrapped in a circuit breaker (github.com/sony/gobreaker/v2) and a
// token-bucket limiter (golang.org/x/time/rate); account lookups go
// through a TTL cache (github.com/hashicorp/golang-lru/v2/expirable).
package rpcpool

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	agerrors "github.com/kestrel-systems/sniper/infrastructure/errors"
	"github.com/kestrel-systems/sniper/infrastructure/logging"
	"github.com/kestrel-systems/sniper/internal/domain"
)

// Caller issues the actual network call for a method against a chosen
// endpoint URL. The pool is transport-agnostic: tests substitute a fake
// Caller, production wires an HTTP JSON-RPC client.
type Caller interface {
	Call(ctx context.Context, endpointURL, method string, params any, out any) error
}

// AccountEntry is one cached getAccountInfo-shaped response.
type AccountEntry struct {
	Data      []byte
	Slot      uint64
	CachedAt  time.Time
}

type trackedEndpoint struct {
	state   *domain.EndpointState
	breaker *gobreaker.CircuitBreaker[any]
	limiter *rate.Limiter
}

// Pool is the RPC endpoint multiplexer. Per-endpoint stats are atomics
// (domain.EndpointState); the in-flight request count and the
// round-robin index are each guarded by a short mutex, and the account
// cache does its own internal locking. The endpoint slice is fixed at
// construction.
type Pool struct {
	log *logging.Logger

	endpoints []*trackedEndpoint
	caller    Caller

	currentIndex uint64
	currentMu    sync.Mutex // guards currentIndex's read-modify-write for the round-robin fallback

	accountCache *lru.LRU[domain.Mint, AccountEntry]

	activeRequests        int64
	activeMu              sync.Mutex
	maxConcurrentRequests uint64

	cooldownPeriod   time.Duration
	healthInterval   time.Duration
	staleTimeout     time.Duration

	cbFailureThreshold        int
	cbHalfOpenSuccessThreshold int

	healthEvents chan HealthChangeEvent

	stopOnce sync.Once
	stopCh   chan struct{}
}

// HealthChangeEvent is emitted whenever an endpoint's coarse health
// flag flips, for the supervisor or an operator dashboard to observe.
type HealthChangeEvent struct {
	URL       string
	Healthy   bool
	Timestamp time.Time
}

// New builds a Pool over cfg.RPCEndpoints. caller is the transport; log
// may be nil to discard logging.
func New(cfg *domain.Config, caller Caller, log *logging.Logger) *Pool {
	if log == nil {
		log = logging.New("rpcpool", "info", "json")
	}

	p := &Pool{
		log:                        log,
		caller:                     caller,
		accountCache:               lru.NewLRU[domain.Mint, AccountEntry](4096, nil, 500*time.Millisecond),
		maxConcurrentRequests:      cfg.MaxConcurrentRequests,
		cooldownPeriod:             cfg.CooldownDuration,
		healthInterval:             cfg.HealthCheckInterval,
		staleTimeout:               60 * time.Second,
		cbFailureThreshold:         cfg.CircuitBreakerFailureThreshold,
		cbHalfOpenSuccessThreshold: cfg.CircuitBreakerHalfOpenSuccessThreshold,
		healthEvents:               make(chan HealthChangeEvent, 100),
		stopCh:                     make(chan struct{}),
	}

	for _, ec := range cfg.RPCEndpoints {
		p.endpoints = append(p.endpoints, p.newTrackedEndpoint(ec))
	}

	return p
}

func (p *Pool) newTrackedEndpoint(cfg domain.EndpointConfig) *trackedEndpoint {
	settings := gobreaker.Settings{
		Name:        cfg.URL,
		MaxRequests: uint32(p.cbHalfOpenSuccessThreshold),
		Timeout:     p.cooldownPeriod,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(p.cbFailureThreshold)
		},
	}

	limit := rate.Inf
	if cfg.MaxRPS > 0 {
		limit = rate.Limit(cfg.MaxRPS)
	}

	return &trackedEndpoint{
		state:   domain.NewEndpointState(cfg),
		breaker: gobreaker.NewCircuitBreaker[any](settings),
		limiter: rate.NewLimiter(limit, int(cfg.MaxRPS)+1),
	}
}

// HealthEvents exposes the channel emitting health transitions.
func (p *Pool) HealthEvents() <-chan HealthChangeEvent {
	return p.healthEvents
}

func (p *Pool) emitHealthEvent(url string, healthy bool) {
	select {
	case p.healthEvents <- HealthChangeEvent{URL: url, Healthy: healthy, Timestamp: time.Now()}:
	default:
	}
}

// Call executes method against the best-scored endpoint currently
// available, recording latency/failure stats and tripping the
// endpoint's circuit breaker on repeated errors.
func (p *Pool) Call(ctx context.Context, method string, params, out any) error {
	ep, release, err := p.selectEndpoint()
	if err != nil {
		return err
	}
	defer release()

	if !ep.limiter.Allow() {
		return agerrors.RateLimited(ep.state.Config.URL)
	}

	start := time.Now()
	_, cbErr := ep.breaker.Execute(func() (any, error) {
		return nil, p.caller.Call(ctx, ep.state.Config.URL, method, params, out)
	})
	latency := time.Since(start)

	if cbErr != nil {
		ep.state.RecordFailure()
		if ep.state.ConsecutiveFailures() >= uint64(p.cbFailureThreshold) {
			p.transitionHealth(ep, false)
		}
		p.log.WithFields(map[string]interface{}{
			"endpoint": ep.state.Config.URL,
			"method":   method,
		}).WithError(cbErr).Debug("rpc call failed")
		return agerrors.RPCUnavailable(ep.state.Config.URL, cbErr)
	}

	ep.state.RecordSuccess(latency)
	ep.state.DynamicScore()
	if !ep.state.Healthy() {
		p.transitionHealth(ep, true)
	}
	return nil
}

func (p *Pool) transitionHealth(ep *trackedEndpoint, healthy bool) {
	if ep.state.Healthy() == healthy {
		return
	}
	ep.state.SetHealthy(healthy)
	if !healthy {
		ep.state.EnterCooldown(p.cooldownPeriod)
	}
	p.emitHealthEvent(ep.state.Config.URL, healthy)
}

// selectEndpoint implements load shedding, then weighted selection
// over the top-3 scored healthy/non-cooldown endpoints, falling back
// to round-robin when every candidate scores zero.
func (p *Pool) selectEndpoint() (*trackedEndpoint, func(), error) {
	p.activeMu.Lock()
	if uint64(p.activeRequests) >= p.maxConcurrentRequests {
		p.activeMu.Unlock()
		return nil, nil, agerrors.New(agerrors.ErrCodeRateLimited, "rpc pool overloaded, shedding load")
	}
	p.activeRequests++
	p.activeMu.Unlock()

	release := func() {
		p.activeMu.Lock()
		p.activeRequests--
		p.activeMu.Unlock()
	}

	type scored struct {
		ep    *trackedEndpoint
		score float64
	}

	candidates := make([]scored, 0, len(p.endpoints))
	for _, ep := range p.endpoints {
		if !ep.state.Healthy() || ep.state.InCooldown() {
			continue
		}
		candidates = append(candidates, scored{ep: ep, score: ep.state.DynamicScore()})
	}

	if len(candidates) == 0 {
		release()
		return nil, nil, agerrors.New(agerrors.ErrCodeRPCUnavailable, "no healthy rpc endpoints available")
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })

	top := candidates
	if len(top) > 3 {
		top = top[:3]
	}

	var totalWeight float64
	for _, c := range top {
		totalWeight += c.score
	}

	if totalWeight <= 0 {
		p.currentMu.Lock()
		idx := p.currentIndex % uint64(len(top))
		p.currentIndex++
		p.currentMu.Unlock()
		return top[idx].ep, release, nil
	}

	randomWeight := rand.Float64() * totalWeight
	cumulative := 0.0
	for _, c := range top {
		cumulative += c.score
		if cumulative >= randomWeight {
			return c.ep, release, nil
		}
	}
	return top[0].ep, release, nil
}

// GetAccountCached returns the cached account for mint if fresh,
// otherwise fetches it via Call and populates the cache.
func (p *Pool) GetAccountCached(ctx context.Context, mint domain.Mint) (AccountEntry, error) {
	if entry, ok := p.accountCache.Get(mint); ok {
		return entry, nil
	}

	var raw struct {
		Data []byte `json:"data"`
		Slot uint64 `json:"slot"`
	}
	if err := p.Call(ctx, "getAccountInfo", mint, &raw); err != nil {
		return AccountEntry{}, err
	}

	entry := AccountEntry{Data: raw.Data, Slot: raw.Slot, CachedAt: time.Now()}
	p.accountCache.Add(mint, entry)
	return entry, nil
}

// GetMultipleAccountsBatched serves cached hits directly and issues one
// batched getMultipleAccounts call for everything missing from the
// cache, rather than one getAccountInfo round trip per miss.
func (p *Pool) GetMultipleAccountsBatched(ctx context.Context, mints []domain.Mint) (map[domain.Mint]AccountEntry, error) {
	results := make(map[domain.Mint]AccountEntry, len(mints))

	var misses []domain.Mint
	for _, mint := range mints {
		if entry, ok := p.accountCache.Get(mint); ok {
			results[mint] = entry
			continue
		}
		misses = append(misses, mint)
	}

	if len(misses) == 0 {
		return results, nil
	}

	var raw struct {
		Values []struct {
			Data []byte `json:"data"`
			Slot uint64 `json:"slot"`
		} `json:"values"`
	}
	if err := p.Call(ctx, "getMultipleAccounts", misses, &raw); err != nil {
		if len(results) == 0 {
			return nil, err
		}
		return results, nil
	}

	now := time.Now()
	for i, mint := range misses {
		if i >= len(raw.Values) {
			break
		}
		entry := AccountEntry{Data: raw.Values[i].Data, Slot: raw.Values[i].Slot, CachedAt: now}
		p.accountCache.Add(mint, entry)
		results[mint] = entry
	}
	return results, nil
}

// Stats is a point-in-time snapshot of every endpoint for an operator
// dashboard or the /stats CLI command.
type Stats struct {
	TotalEndpoints   int
	HealthyEndpoints int
	Endpoints        []domain.EndpointStats
}

// Stats returns a snapshot of all tracked endpoints.
func (p *Pool) Stats() Stats {
	s := Stats{TotalEndpoints: len(p.endpoints)}
	for _, ep := range p.endpoints {
		snap := ep.state.Snapshot()
		s.Endpoints = append(s.Endpoints, snap)
		if snap.Healthy {
			s.HealthyEndpoints++
		}
	}
	return s
}

// RunHealthChecks blocks, calling getVersion/getSlot against every
// endpoint on healthInterval until ctx is cancelled or Stop is called.
func (p *Pool) RunHealthChecks(ctx context.Context) {
	ticker := time.NewTicker(p.healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.checkAllEndpoints(ctx)
		}
	}
}

func (p *Pool) checkAllEndpoints(ctx context.Context) {
	for _, ep := range p.endpoints {
		if ep.state.InCooldown() {
			continue
		}
		var version struct {
			SolanaCore string `json:"solana-core"`
		}
		versionErr := p.caller.Call(ctx, ep.state.Config.URL, "getVersion", nil, &version)

		var slot uint64
		slotErr := p.caller.Call(ctx, ep.state.Config.URL, "getSlot", nil, &slot)

		p.transitionHealth(ep, versionErr == nil && slotErr == nil)
	}
}

// Stop halts background health checking.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
}
