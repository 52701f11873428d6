// Package guibridge is the one boundary between the engine and a GUI
// front-end: a single-writer, multi-reader snapshot pointer, a bounded
// price-update stream, and a bounded command queue whose commands carry
// their own acknowledgement channel. None of this package's types know anything about
// rendering; that is left entirely to the downstream consumer.
package guibridge

import (
	"sync/atomic"

	"github.com/kestrel-systems/sniper/internal/domain"
	"github.com/kestrel-systems/sniper/internal/engine"
)

// defaultCommandQueueCapacity is the bounded command queue's default
// size.
const defaultCommandQueueCapacity = 100

// defaultPriceQueueCapacity bounds the price-update stream.
const defaultPriceQueueCapacity = 256

// Bridge is the engine-facing write side and GUI-facing read side of
// the three channels described for the GUI boundary: snapshots, price
// updates, and commands/acks.
type Bridge struct {
	snapshot atomic.Pointer[domain.EngineSnapshot]

	prices   chan domain.PriceUpdate
	commands chan engine.Command
}

// New builds a Bridge with the default queue capacities.
func New() *Bridge {
	return &Bridge{
		prices:   make(chan domain.PriceUpdate, defaultPriceQueueCapacity),
		commands: make(chan engine.Command, defaultCommandQueueCapacity),
	}
}

// Publish atomically stores the latest snapshot. Readers observe it via
// Snapshot with a plain load, no locking.
func (b *Bridge) Publish(snapshot domain.EngineSnapshot) {
	s := snapshot
	b.snapshot.Store(&s)
}

// Snapshot returns the most recently published snapshot, or the zero
// value if none has been published yet.
func (b *Bridge) Snapshot() domain.EngineSnapshot {
	p := b.snapshot.Load()
	if p == nil {
		return domain.EngineSnapshot{}
	}
	return *p
}

// PushPrice offers a price update with try-send semantics: if the GUI's
// reader is slow and the queue is full, the update is dropped silently
// rather than blocking the publisher.
func (b *Bridge) PushPrice(u domain.PriceUpdate) bool {
	select {
	case b.prices <- u:
		return true
	default:
		return false
	}
}

// Prices returns the receive side of the price-update stream.
func (b *Bridge) Prices() <-chan domain.PriceUpdate {
	return b.prices
}

// SubmitCommand attempts to enqueue cmd, returning false (observable
// backpressure) if the command queue is at capacity.
func (b *Bridge) SubmitCommand(cmd engine.Command) bool {
	select {
	case b.commands <- cmd:
		return true
	default:
		return false
	}
}

// Commands exposes the receive side so the engine's command loop (or a
// forwarding adapter) can drain it. The engine itself owns a separate,
// internally-buffered command channel; callers typically forward
// values read here onto engine.Engine.Commands().
func (b *Bridge) Commands() <-chan engine.Command {
	return b.commands
}

var _ engine.SnapshotPublisher = (*Bridge)(nil)
