// Package noncemgr hands out exclusive leases on a fixed pool of
// durable nonce accounts, reclaims expired leases with a background
// reaper, and drives the authority-rotation approval workflow for
// those accounts.
package noncemgr

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	agerrors "github.com/kestrel-systems/sniper/infrastructure/errors"
	"github.com/kestrel-systems/sniper/infrastructure/logging"
	"github.com/kestrel-systems/sniper/internal/domain"
)

// BlockhashReader fetches the current stored blockhash for a nonce
// account, needed at lease time so the lease carries a usable
// advance-nonce instruction argument.
type BlockhashReader interface {
	ReadNonceBlockhash(ctx context.Context, noncePubkey domain.Mint) ([32]byte, error)
}

// Manager owns a fixed set of nonce accounts and hands out leases on
// them. A semaphore sized to the pool gates acquisition so callers
// block (with ctx) rather than racing over a channel of free slots.
type Manager struct {
	log *logging.Logger

	mu        sync.Mutex
	accounts  []domain.Mint
	available map[domain.Mint]bool
	leases    map[domain.Mint]*domain.NonceLease

	sem *semaphore.Weighted

	ttl    time.Duration
	reader BlockhashReader

	rotation *RotationManager

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New builds a Manager over accounts, each initially available.
func New(accounts []domain.Mint, ttl time.Duration, reader BlockhashReader, log *logging.Logger) *Manager {
	if log == nil {
		log = logging.New("noncemgr", "info", "json")
	}

	available := make(map[domain.Mint]bool, len(accounts))
	for _, a := range accounts {
		available[a] = true
	}

	m := &Manager{
		log:       log,
		accounts:  accounts,
		available: available,
		leases:    make(map[domain.Mint]*domain.NonceLease),
		sem:       semaphore.NewWeighted(int64(len(accounts))),
		ttl:       ttl,
		reader:    reader,
		stopCh:    make(chan struct{}),
	}
	m.rotation = NewRotationManager(log)
	return m
}

// Acquire blocks until a nonce account is free (or ctx is cancelled)
// and returns an exclusive lease on it. Callers must Release (or let
// the lease expire and be reaped) before the account becomes available
// again.
func (m *Manager) Acquire(ctx context.Context) (*domain.NonceLease, error) {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return nil, agerrors.Wrap(agerrors.ErrCodeNoncePoolExhausted, "nonce pool acquire cancelled", err)
	}

	m.mu.Lock()
	var chosen domain.Mint
	found := false
	for acct, free := range m.available {
		if free {
			chosen = acct
			found = true
			break
		}
	}
	if found {
		delete(m.available, chosen)
	}
	m.mu.Unlock()

	if !found {
		m.sem.Release(1)
		return nil, agerrors.NoncePoolExhausted()
	}

	var blockhash [32]byte
	if m.reader != nil {
		bh, err := m.reader.ReadNonceBlockhash(ctx, chosen)
		if err != nil {
			m.releaseAccount(chosen)
			return nil, err
		}
		blockhash = bh
	}

	lease := domain.NewNonceLease(chosen, blockhash, m.ttl, m.releaseAccount)

	m.mu.Lock()
	m.leases[chosen] = lease
	m.mu.Unlock()

	return lease, nil
}

// releaseAccount is the NonceLease.onRelease callback: it returns the
// account to the available pool and releases the semaphore permit.
// Idempotency is enforced upstream by NonceLease itself, so this always
// runs at most once per lease.
func (m *Manager) releaseAccount(acct domain.Mint) {
	m.mu.Lock()
	m.available[acct] = true
	delete(m.leases, acct)
	m.mu.Unlock()
	m.sem.Release(1)
}

// ActiveLeases returns the count of currently held leases.
func (m *Manager) ActiveLeases() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.leases)
}

// Rotation exposes the authority rotation state machine for this pool.
func (m *Manager) Rotation() *RotationManager {
	return m.rotation
}

// RunReaper blocks, scanning for expired leases on interval and
// reclaiming them, until ctx is cancelled or Stop is called. This is
// the nearest Go equivalent of the original's async-drop discipline:
// callers that forget (or crash before) releasing a lease still get it
// back after ttl.
func (m *Manager) RunReaper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.reapExpired()
		}
	}
}

func (m *Manager) reapExpired() {
	m.mu.Lock()
	var expired []*domain.NonceLease
	for _, lease := range m.leases {
		if lease.IsExpired() {
			expired = append(expired, lease)
		}
	}
	m.mu.Unlock()

	for _, lease := range expired {
		m.log.WithFields(map[string]interface{}{
			"nonce_pubkey": lease.NoncePubkey,
		}).Warn("reaping expired nonce lease")
		lease.Release()
	}
}

// Stop halts the reaper loop.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}
