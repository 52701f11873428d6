// Package engine orchestrates the buy, auto-sell, and manual-command
// lifecycles: it consumes candidates from the sniffer's queue, drives
// the transaction builder and broadcaster, and keeps the position
// tracker and GUI bridge snapshot in sync.
package engine

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	agerrors "github.com/kestrel-systems/sniper/infrastructure/errors"
	"github.com/kestrel-systems/sniper/infrastructure/logging"
	inframetrics "github.com/kestrel-systems/sniper/infrastructure/metrics"
	"github.com/kestrel-systems/sniper/internal/domain"
	"github.com/kestrel-systems/sniper/internal/position"
	"github.com/kestrel-systems/sniper/internal/sniffer"
	"github.com/kestrel-systems/sniper/internal/txbuilder"
)

// autoSellInterval is the fixed tick period for the auto-sell evaluator.
const autoSellInterval = 333 * time.Millisecond

// PriceSource looks up the current on-chain price for mint, backed by
// RpcPool.GetAccountCached in production.
type PriceSource interface {
	CurrentPrice(ctx context.Context, mint domain.Mint) (float64, error)
}

// SnapshotPublisher is the GUI bridge's write side; the engine depends
// only on this narrow interface so it never needs to import the bridge
// package directly.
type SnapshotPublisher interface {
	Publish(snapshot domain.EngineSnapshot)
}

// EndpointCounter reports how many RPC endpoints are currently healthy,
// used to bound the quorum-blockhash fan-out width.
type EndpointCounter interface {
	HealthyEndpointCount() int
}

// noopPublisher discards snapshots when the engine is run without a
// GUI bridge attached (e.g. in tests).
type noopPublisher struct{}

func (noopPublisher) Publish(domain.EngineSnapshot) {}

// Engine wires together the tracker, builder, broadcaster and price
// source into the three cooperating tasks described for the buy path,
// auto-sell loop, and manual-command path.
type Engine struct {
	log     *logging.Logger
	cfg     *domain.Config
	metrics *inframetrics.Metrics

	tracker     *position.Tracker
	builder     *txbuilder.Builder
	simulator   txbuilder.Simulator
	broadcaster txbuilder.Broadcaster
	prices      PriceSource
	candidates  *sniffer.Queue
	snapshots   SnapshotPublisher
	endpoints   EndpointCounter

	commands chan Command

	state      atomic.Uint32
	stopLoss   atomic.Pointer[domain.StopLossConfig]
	takeProfit atomic.Pointer[domain.TakeProfitConfig]
}

// New builds an Engine. snapshots may be nil, in which case published
// snapshots are discarded.
func New(
	log *logging.Logger,
	cfg *domain.Config,
	m *inframetrics.Metrics,
	tracker *position.Tracker,
	builder *txbuilder.Builder,
	simulator txbuilder.Simulator,
	broadcaster txbuilder.Broadcaster,
	prices PriceSource,
	candidates *sniffer.Queue,
	snapshots SnapshotPublisher,
	endpoints EndpointCounter,
) *Engine {
	if snapshots == nil {
		snapshots = noopPublisher{}
	}

	e := &Engine{
		log:         log,
		cfg:         cfg,
		metrics:     m,
		tracker:     tracker,
		builder:     builder,
		simulator:   simulator,
		broadcaster: broadcaster,
		prices:      prices,
		candidates:  candidates,
		snapshots:   snapshots,
		endpoints:   endpoints,
		commands:    make(chan Command, 100),
	}
	e.state.Store(uint32(domain.StateSniffing))
	sl := cfg.StopLoss
	e.stopLoss.Store(&sl)
	tp := cfg.TakeProfit
	e.takeProfit.Store(&tp)
	return e
}

// State returns the engine's current bot state.
func (e *Engine) State() domain.BotState {
	return domain.BotState(e.state.Load())
}

func (e *Engine) setState(s domain.BotState) {
	e.state.Store(uint32(s))
}

// Commands returns the send side of the manual-command queue; the GUI
// bridge (or a CLI-facing adapter) pushes Command values here.
func (e *Engine) Commands() chan<- Command {
	return e.commands
}

// Run launches the buy path, auto-sell loop, and manual-command path
// as three cooperating tasks under a shared cancellation context. It
// blocks until ctx is cancelled or one task returns a non-nil error.
func (e *Engine) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return e.runBuyLoop(gctx) })
	g.Go(func() error { return e.runAutoSellLoop(gctx) })
	g.Go(func() error { return e.runCommandLoop(gctx) })

	return g.Wait()
}

// publishSnapshot assembles and pushes the current portfolio state to
// the GUI bridge.
func (e *Engine) publishSnapshot() {
	e.snapshots.Publish(domain.EngineSnapshot{
		ActivePositions: e.tracker.All(),
		BotState:        e.State(),
		TimestampUnix:   nowUnix(),
	})
}

// isRetryableForPriority applies the documented retry policy: High
// candidates retry transient errors up to max_retries_high times, Low
// candidates never retry.
func isRetryableForPriority(err error, priority domain.Priority, attempt, maxRetriesHigh int) bool {
	if !agerrors.IsRetryable(err) {
		return false
	}
	if priority != domain.PriorityHigh {
		return false
	}
	return attempt < maxRetriesHigh
}

// clampFraction clamps a requested sell percentage into [0, 1].
func clampFraction(percent float64) float64 {
	if percent <= 0 {
		return 0
	}
	if percent >= 100 {
		return 1
	}
	return percent / 100
}

func nowUnix() int64 {
	return time.Now().Unix()
}

// availableEndpoints reports the current healthy-endpoint count,
// defaulting to the configured minimum quorum size when no counter was
// wired (e.g. in unit tests).
func (e *Engine) availableEndpoints() int {
	if e.endpoints == nil {
		return e.cfg.MinBlockhashResponses
	}
	return e.endpoints.HealthyEndpointCount()
}
