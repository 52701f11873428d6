package rpcpool

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kestrel-systems/sniper/internal/domain"
)

type fakeCaller struct {
	mu        sync.Mutex
	failURLs  map[string]bool
	callCount map[string]int
}

func newFakeCaller() *fakeCaller {
	return &fakeCaller{failURLs: map[string]bool{}, callCount: map[string]int{}}
}

func (f *fakeCaller) Call(ctx context.Context, endpointURL, method string, params, out any) error {
	f.mu.Lock()
	f.callCount[endpointURL]++
	fail := f.failURLs[endpointURL]
	f.mu.Unlock()
	if fail {
		return context.DeadlineExceeded
	}
	return nil
}

func testConfig() *domain.Config {
	cfg := domain.Default()
	cfg.MaxConcurrentRequests = 1000
	cfg.CooldownDuration = 50 * time.Millisecond
	cfg.CircuitBreakerFailureThreshold = 3
	cfg.CircuitBreakerHalfOpenSuccessThreshold = 2
	cfg.RPCEndpoints = []domain.EndpointConfig{
		{URL: "tpu-1", Tier: domain.TierTPU, Weight: 1, MaxRPS: 1000},
		{URL: "premium-1", Tier: domain.TierPremium, Weight: 1, MaxRPS: 1000},
		{URL: "standard-1", Tier: domain.TierStandard, Weight: 1, MaxRPS: 1000},
	}
	return cfg
}

func TestPool_CallRecordsSuccess(t *testing.T) {
	caller := newFakeCaller()
	p := New(testConfig(), caller, nil)

	for i := 0; i < 10; i++ {
		err := p.Call(context.Background(), "getAccountInfo", nil, nil)
		require.NoError(t, err)
	}

	stats := p.Stats()
	require.Equal(t, 3, stats.HealthyEndpoints)
}

func TestPool_PrefersTPUTier(t *testing.T) {
	caller := newFakeCaller()
	p := New(testConfig(), caller, nil)

	// Degrade premium/standard latency so TPU's tier bonus keeps it on top.
	for _, ep := range p.endpoints {
		if ep.state.Config.Tier != domain.TierTPU {
			ep.state.RecordSuccess(200 * time.Millisecond)
			ep.state.DynamicScore()
		} else {
			ep.state.RecordSuccess(time.Millisecond)
			ep.state.DynamicScore()
		}
	}

	tpuWins := 0
	for i := 0; i < 50; i++ {
		ep, release, err := p.selectEndpoint()
		require.NoError(t, err)
		if ep.state.Config.Tier == domain.TierTPU {
			tpuWins++
		}
		release()
	}
	require.Greater(t, tpuWins, 25)
}

func TestPool_UnhealthyEndpointExcludedFromSelection(t *testing.T) {
	caller := newFakeCaller()
	caller.failURLs["tpu-1"] = true
	cfg := testConfig()
	cfg.CircuitBreakerFailureThreshold = 1
	p := New(cfg, caller, nil)

	for i := 0; i < 5; i++ {
		_ = p.Call(context.Background(), "getAccountInfo", nil, nil)
	}

	for i := 0; i < 20; i++ {
		ep, release, err := p.selectEndpoint()
		require.NoError(t, err)
		require.NotEqual(t, "tpu-1", ep.state.Config.URL)
		release()
	}
}

func TestPool_LoadSheddingRejectsWhenOverloaded(t *testing.T) {
	caller := newFakeCaller()
	cfg := testConfig()
	cfg.MaxConcurrentRequests = 1
	p := New(cfg, caller, nil)

	_, release, err := p.selectEndpoint()
	require.NoError(t, err)
	defer release()

	_, _, err = p.selectEndpoint()
	require.Error(t, err)
}

func TestPool_NoHealthyEndpointsReturnsError(t *testing.T) {
	caller := newFakeCaller()
	p := New(testConfig(), caller, nil)
	for _, ep := range p.endpoints {
		ep.state.SetHealthy(false)
	}

	_, _, err := p.selectEndpoint()
	require.Error(t, err)
}

func TestPool_GetAccountCachedHitsCache(t *testing.T) {
	caller := newFakeCaller()
	p := New(testConfig(), caller, nil)

	var mint domain.Mint
	mint[0] = 1

	_, err := p.GetAccountCached(context.Background(), mint)
	require.NoError(t, err)

	totalBefore := 0
	for _, c := range caller.callCount {
		totalBefore += c
	}

	_, err = p.GetAccountCached(context.Background(), mint)
	require.NoError(t, err)

	totalAfter := 0
	for _, c := range caller.callCount {
		totalAfter += c
	}
	require.Equal(t, totalBefore, totalAfter)
}
