package metrics

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMetrics_CounterAddsConcurrently(t *testing.T) {
	m := New()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.IncCounter("candidates_accepted")
		}()
	}
	wg.Wait()

	require.Equal(t, uint64(100), m.Snapshot().Counters["candidates_accepted"])
}

func TestMetrics_FloatCounterAccumulatesUnderContention(t *testing.T) {
	m := New()

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.AddFloatCounter("realized_pnl_native", 0.5)
		}()
	}
	wg.Wait()

	require.InDelta(t, 100.0, m.Snapshot().FloatCounters["realized_pnl_native"], 0.0001)
}

func TestMetrics_GaugeSetIsLastWriteWins(t *testing.T) {
	m := New()
	m.SetGauge("candidate_queue_depth", 3)
	m.SetGauge("candidate_queue_depth", 7)

	require.Equal(t, 7.0, m.Snapshot().Gauges["candidate_queue_depth"])
}

func TestMetrics_HistogramSnapshotSortsSamples(t *testing.T) {
	m := New()
	for _, v := range []float64{5, 1, 3, 2, 4} {
		m.Observe("tx_build_duration_ms", v)
	}

	snap := m.Snapshot().Histograms["tx_build_duration_ms"]
	require.Equal(t, uint64(5), snap.Count)
	require.Equal(t, []float64{1, 2, 3, 4, 5}, snap.Sorted)
	require.Equal(t, 5.0, snap.P99())
}

func TestMetrics_HistogramWrapsAtCapacity(t *testing.T) {
	m := New()
	for i := 0; i < histogramCapacity+10; i++ {
		m.Observe("h", float64(i))
	}

	snap := m.Snapshot().Histograms["h"]
	require.Equal(t, uint64(histogramCapacity+10), snap.Count)
	require.Len(t, snap.Sorted, histogramCapacity)
}

func TestMetrics_GlobalIsSingleton(t *testing.T) {
	require.Same(t, Global(), Global())
}
