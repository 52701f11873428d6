// Package position implements the sharded concurrent map from mint to
// domain.Position that the engine, auto-sell evaluator, and manual
// command handler all mutate concurrently. True lock-free hashmaps
// aren't part of the language or stdlib, so sharding (16 independent
// sync.RWMutex-guarded buckets keyed by a hash of the mint) is the
// idiomatic Go approximation used here.
package position

import (
	"sync"
	"time"

	"github.com/kestrel-systems/sniper/internal/domain"
)

func unixTime(epochSeconds int64) time.Time {
	return time.Unix(epochSeconds, 0).UTC()
}

const shardCount = 16

type shard struct {
	mu       sync.RWMutex
	entries  map[domain.Mint]*domain.Position
}

// Tracker is the portfolio's open-position store.
type Tracker struct {
	shards [shardCount]*shard
}

// New builds an empty Tracker.
func New() *Tracker {
	t := &Tracker{}
	for i := range t.shards {
		t.shards[i] = &shard{entries: make(map[domain.Mint]*domain.Position)}
	}
	return t
}

func (t *Tracker) shardFor(mint domain.Mint) *shard {
	var h uint32
	for _, b := range mint {
		h = h*31 + uint32(b)
	}
	return t.shards[h%shardCount]
}

// RecordBuy inserts or replaces the position for mint, resetting sold
// and proceeds to zero.
func (t *Tracker) RecordBuy(mint domain.Mint, tokens, cost uint64, entryTimestamp int64) {
	s := t.shardFor(mint)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[mint] = &domain.Position{
		Mint:               mint,
		EntryTimestamp:      unixTime(entryTimestamp),
		InitialTokenAmount:  tokens,
		InitialCostNative:   cost,
		SoldTokenAmount:     0,
		TotalProceedsNative: 0,
		LastUpdate:          unixTime(entryTimestamp),
	}
}

// RecordSell adds to sold/proceeds, saturating sold at the initial
// amount, and removes the entry once it is fully exited.
func (t *Tracker) RecordSell(mint domain.Mint, tokens, proceeds uint64) (remaining uint64, closed bool, ok bool) {
	s := t.shardFor(mint)
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.entries[mint]
	if !exists {
		return 0, false, false
	}

	newSold := p.SoldTokenAmount + tokens
	if newSold > p.InitialTokenAmount || newSold < p.SoldTokenAmount /* overflow */ {
		newSold = p.InitialTokenAmount
	}
	p.SoldTokenAmount = newSold
	p.TotalProceedsNative += proceeds

	if p.IsFullyExited() {
		delete(s.entries, mint)
		return 0, true, true
	}
	return p.RemainingTokens(), false, true
}

// UpdatePrice writes last_seen_price and last_update for mint.
func (t *Tracker) UpdatePrice(mint domain.Mint, price float64, at int64) bool {
	s := t.shardFor(mint)
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.entries[mint]
	if !ok {
		return false
	}
	p.LastSeenPrice = price
	p.LastUpdate = unixTime(at)
	return true
}

// Get returns a copy of the position for mint, if present.
func (t *Tracker) Get(mint domain.Mint) (domain.Position, bool) {
	s := t.shardFor(mint)
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.entries[mint]
	if !ok {
		return domain.Position{}, false
	}
	return *p, true
}

// All returns a copy of every open position.
func (t *Tracker) All() []domain.Position {
	out := make([]domain.Position, 0)
	for _, s := range t.shards {
		s.mu.RLock()
		for _, p := range s.entries {
			out = append(out, *p)
		}
		s.mu.RUnlock()
	}
	return out
}

// Count returns the number of open positions across all shards.
func (t *Tracker) Count() int {
	total := 0
	for _, s := range t.shards {
		s.mu.RLock()
		total += len(s.entries)
		s.mu.RUnlock()
	}
	return total
}

// Remove deletes the position for mint unconditionally, returning
// whether it existed.
func (t *Tracker) Remove(mint domain.Mint) bool {
	s := t.shardFor(mint)
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.entries[mint]
	delete(s.entries, mint)
	return ok
}

// CanBuy reports whether the portfolio gate admits a new buy.
func (t *Tracker) CanBuy(enableMultiToken bool, maxConcurrentPositions int) bool {
	count := t.Count()
	if enableMultiToken {
		return count < maxConcurrentPositions
	}
	return count == 0
}
