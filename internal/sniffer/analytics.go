package sniffer

import (
	"context"
	"math"
	"sync/atomic"
	"time"
)

// Analytics stamps a Candidate's priority from a volume hint using two
// simultaneously-ticked EMAs. The hot path only fetch-adds into an
// atomic accumulator; both EMAs and the threshold are maintained by
// background ticks so classification never blocks on a lock.
//
// Cadence (spec ambiguity resolved explicitly): the short EMA ticks
// every 200ms, the long EMA and threshold tick every 400ms — exactly
// 2x the short interval.
type Analytics struct {
	accumulator uint64 // math.Float64bits
	sampleCount uint64

	shortEMA  uint64 // math.Float64bits
	longEMA   uint64 // math.Float64bits
	threshold uint64 // math.Float64bits

	alphaShort float64
	alphaLong  float64

	thresholdUpdateRate float64
	thresholdMin        float64
	thresholdMax        float64
}

const (
	shortTickInterval = 200 * time.Millisecond
	longTickInterval  = 400 * time.Millisecond
)

// NewAnalytics builds an Analytics block with the given EMA smoothing
// factors. The threshold starts at 1.0 and is clamped to [0.5, 5.0].
func NewAnalytics(alphaShort, alphaLong float64) *Analytics {
	a := &Analytics{
		alphaShort:           alphaShort,
		alphaLong:            alphaLong,
		thresholdUpdateRate:  1.0,
		thresholdMin:         0.5,
		thresholdMax:         5.0,
	}
	atomic.StoreUint64(&a.threshold, math.Float64bits(1.0))
	return a
}

// AccumulateVolume fetch-adds sample into the hot-path accumulator.
func (a *Analytics) AccumulateVolume(sample float64) {
	for {
		old := atomic.LoadUint64(&a.accumulator)
		newVal := math.Float64frombits(old) + sample
		if atomic.CompareAndSwapUint64(&a.accumulator, old, math.Float64bits(newVal)) {
			break
		}
	}
	atomic.AddUint64(&a.sampleCount, 1)
}

// drainAccumulator resets the accumulator and sample count, returning
// the per-tick average (0 if no samples arrived this tick).
func (a *Analytics) drainAccumulator() float64 {
	total := math.Float64frombits(atomic.SwapUint64(&a.accumulator, 0))
	count := atomic.SwapUint64(&a.sampleCount, 0)
	if count == 0 {
		return 0
	}
	return total / float64(count)
}

func (a *Analytics) tickShort() {
	avg := a.drainAccumulator()
	old := math.Float64frombits(atomic.LoadUint64(&a.shortEMA))
	updated := a.alphaShort*avg + (1-a.alphaShort)*old
	atomic.StoreUint64(&a.shortEMA, math.Float64bits(updated))
}

func (a *Analytics) tickLong() {
	short := math.Float64frombits(atomic.LoadUint64(&a.shortEMA))
	oldLong := math.Float64frombits(atomic.LoadUint64(&a.longEMA))
	newLong := a.alphaLong*short + (1-a.alphaLong)*oldLong
	atomic.StoreUint64(&a.longEMA, math.Float64bits(newLong))

	oldThreshold := math.Float64frombits(atomic.LoadUint64(&a.threshold))
	ratio := 0.0
	if newLong > 0 {
		ratio = short/newLong - 1
	}
	updated := oldThreshold + a.thresholdUpdateRate*ratio*0.1
	if updated < a.thresholdMin {
		updated = a.thresholdMin
	}
	if updated > a.thresholdMax {
		updated = a.thresholdMax
	}
	atomic.StoreUint64(&a.threshold, math.Float64bits(updated))
}

// LongEMA returns the current long-window EMA value.
func (a *Analytics) LongEMA() float64 {
	return math.Float64frombits(atomic.LoadUint64(&a.longEMA))
}

// Threshold returns the current classification threshold.
func (a *Analytics) Threshold() float64 {
	return math.Float64frombits(atomic.LoadUint64(&a.threshold))
}

// Classify stamps High iff volumeHint exceeds long_ema * threshold.
func (a *Analytics) Classify(volumeHint float64) bool {
	return volumeHint > a.LongEMA()*a.Threshold()
}

// Run drives both ticks until ctx is cancelled. The short tick fires
// every shortTickInterval; every second short tick also fires the long
// tick, keeping the 2x cadence without two independent tickers racing
// on the same fields.
func (a *Analytics) Run(ctx context.Context) {
	ticker := time.NewTicker(shortTickInterval)
	defer ticker.Stop()

	ticks := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.tickShort()
			ticks++
			if ticks%2 == 0 {
				a.tickLong()
			}
		}
	}
}
