package txbuilder

import (
	"context"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	agerrors "github.com/kestrel-systems/sniper/infrastructure/errors"
)

// Simulator is the narrow RpcPool surface the simulation stage needs.
type Simulator interface {
	Call(ctx context.Context, method string, params, out any) error
}

// SimulationResult is the classified outcome of simulate_transaction.
type SimulationResult struct {
	Fatal   bool
	Reason  string
	LogLine string
}

// fatalSubstrings are the message fragments that make a simulation
// result fatal to the build, matching the documented classification.
var fatalSubstrings = []string{
	"InstructionError",
	"ProgramFailedToComplete",
	"ComputeBudgetExceeded",
	"InsufficientFunds",
}

func classifySimulation(errMessage string) SimulationResult {
	if errMessage == "" {
		return SimulationResult{}
	}
	for _, frag := range fatalSubstrings {
		if strings.Contains(errMessage, frag) {
			return SimulationResult{Fatal: true, Reason: frag, LogLine: errMessage}
		}
	}
	return SimulationResult{Fatal: false, Reason: "", LogLine: errMessage}
}

// SimulationCache is an LRU+TTL cache of simulation outcomes keyed by
// the SHA-256 of the ordered instruction bytes (never the blockhash).
type SimulationCache struct {
	cache *lru.LRU[[32]byte, SimulationResult]
}

// NewSimulationCache builds a cache of size (default 1000) with ttl
// (default 30s).
func NewSimulationCache(size int, ttl time.Duration) *SimulationCache {
	if size <= 0 {
		size = 1000
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &SimulationCache{cache: lru.NewLRU[[32]byte, SimulationResult](size, nil, ttl)}
}

// Simulate runs the simulation for ixs through sim, serving a cache hit
// when available. On a fatal classification it returns an error; on
// advisory or success it caches and returns nil.
func (c *SimulationCache) Simulate(ctx context.Context, sim Simulator, ixs []Instruction) error {
	key := simulationCacheKey(ixs)
	if cached, ok := c.cache.Get(key); ok {
		if cached.Fatal {
			return agerrors.SimulationRejected(cached.Reason)
		}
		return nil
	}

	simIxs := stripAdvanceNonce(ixs)

	var raw struct {
		Value struct {
			Err  interface{} `json:"err"`
			Logs []string    `json:"logs"`
		} `json:"value"`
	}
	if err := sim.Call(ctx, "simulateTransaction", simIxs, &raw); err != nil {
		return agerrors.Wrap(agerrors.ErrCodeSimulationRejected, "simulation call failed", err)
	}

	message := ""
	if raw.Value.Err != nil {
		if s, ok := raw.Value.Err.(string); ok {
			message = s
		} else {
			message = "simulation reported a non-success error value"
		}
	}

	result := classifySimulation(message)
	c.cache.Add(key, result)

	if result.Fatal {
		return agerrors.SimulationRejected(result.Reason)
	}
	return nil
}
