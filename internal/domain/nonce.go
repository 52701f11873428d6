package domain

import (
	"sync/atomic"
	"time"
)

// NonceLease is an exclusive hold on one durable nonce account, handed
// out by the nonce manager's pool. Release is idempotent: the first
// caller to flip released wins, every later call is a no-op. This is
// the closest Go gets to the original's async-drop-releases-the-lease
// discipline — callers are expected to `defer lease.Release()` the
// moment they acquire one.
type NonceLease struct {
	NoncePubkey   Mint
	NonceBlockhash [32]byte
	AcquiredAt    time.Time
	TTL           time.Duration

	released uint32
	onRelease func(Mint)
}

// NewNonceLease constructs a lease; onRelease is invoked at most once,
// the moment Release (or expiry reaping) wins the release race.
func NewNonceLease(pubkey Mint, blockhash [32]byte, ttl time.Duration, onRelease func(Mint)) *NonceLease {
	return &NonceLease{
		NoncePubkey:    pubkey,
		NonceBlockhash: blockhash,
		AcquiredAt:     time.Now(),
		TTL:            ttl,
		onRelease:      onRelease,
	}
}

// IsExpired reports whether the lease has outlived its TTL.
func (l *NonceLease) IsExpired() bool {
	return time.Since(l.AcquiredAt) > l.TTL
}

// Released reports whether Release has already run to completion.
func (l *NonceLease) Released() bool {
	return atomic.LoadUint32(&l.released) == 1
}

// Release returns the nonce account to the pool. Safe to call multiple
// times or concurrently; only the winner runs onRelease.
func (l *NonceLease) Release() {
	if atomic.CompareAndSwapUint32(&l.released, 0, 1) {
		if l.onRelease != nil {
			l.onRelease(l.NoncePubkey)
		}
	}
}
