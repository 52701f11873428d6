package noncemgr

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kestrel-systems/sniper/internal/domain"
)

type fakeReader struct{}

func (fakeReader) ReadNonceBlockhash(ctx context.Context, noncePubkey domain.Mint) ([32]byte, error) {
	var bh [32]byte
	bh[0] = noncePubkey[0]
	return bh, nil
}

func testAccounts(n int) []domain.Mint {
	accts := make([]domain.Mint, n)
	for i := range accts {
		accts[i][0] = byte(i + 1)
	}
	return accts
}

func TestManager_AcquireRelease(t *testing.T) {
	m := New(testAccounts(3), time.Minute, fakeReader{}, nil)

	lease, err := m.Acquire(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, m.ActiveLeases())

	lease.Release()
	require.Equal(t, 0, m.ActiveLeases())
}

func TestManager_ReleaseIsIdempotent(t *testing.T) {
	m := New(testAccounts(1), time.Minute, fakeReader{}, nil)
	lease, err := m.Acquire(context.Background())
	require.NoError(t, err)

	lease.Release()
	lease.Release()
	lease.Release()

	require.Equal(t, 0, m.ActiveLeases())
	// Pool must still be usable: exactly one account, one acquire should succeed.
	_, err = m.Acquire(context.Background())
	require.NoError(t, err)
}

func TestManager_NoDoubleAcquireUnderConcurrency(t *testing.T) {
	const resources = 10
	const workers = 1000

	m := New(testAccounts(resources), time.Minute, fakeReader{}, nil)

	seen := make(map[domain.Mint]int)
	var mu sync.Mutex
	var wg sync.WaitGroup

	sem := make(chan struct{}, resources) // bound in-flight leases so Acquire doesn't block forever in the test
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			lease, err := m.Acquire(ctx)
			if err != nil {
				return
			}
			mu.Lock()
			seen[lease.NoncePubkey]++
			mu.Unlock()
			lease.Release()
		}()
	}
	wg.Wait()

	require.Equal(t, 0, m.ActiveLeases())
	total := 0
	for _, c := range seen {
		total += c
	}
	require.Equal(t, workers, total)
}

func TestManager_AcquireBlocksWhenExhausted(t *testing.T) {
	m := New(testAccounts(1), time.Minute, fakeReader{}, nil)

	lease, err := m.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = m.Acquire(ctx)
	require.Error(t, err)

	lease.Release()
	_, err = m.Acquire(context.Background())
	require.NoError(t, err)
}

func TestManager_ReaperReclaimsExpiredLeases(t *testing.T) {
	m := New(testAccounts(1), 10*time.Millisecond, fakeReader{}, nil)

	_, err := m.Acquire(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, m.ActiveLeases())

	time.Sleep(20 * time.Millisecond)
	m.reapExpired()

	require.Equal(t, 0, m.ActiveLeases())
}
