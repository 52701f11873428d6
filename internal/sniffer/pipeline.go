// Package sniffer converts an upstream stream of opaque transaction
// frames into a bounded sequence of domain.Candidate records, applying
// cheap inline filters at every stage so only genuinely interesting
// frames are ever fully deserialized.
package sniffer

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"sync/atomic"
	"time"

	"github.com/kestrel-systems/sniper/infrastructure/errors"
	"github.com/kestrel-systems/sniper/infrastructure/resilience"
	"github.com/kestrel-systems/sniper/internal/domain"
	"github.com/kestrel-systems/sniper/internal/metrics"
)

// FrameSource abstracts the blockchain node subscription stream: a
// lazy sequence of opaque byte frames. Implementations own
// reconnection at the transport level; Receive (below) handles
// application-level re-subscription.
type FrameSource interface {
	// Next blocks until a frame is available, ctx is cancelled, or the
	// stream disconnects (in which case it returns an error).
	Next(ctx context.Context) ([]byte, error)
}

// Frame size bounds from the Sanity stage.
const (
	minFrameSize = 64
	maxFrameSize = 1232

	accountKeysRegionStart = 67
	accountKeysRegionEnd   = 512
)

// programIDs of interest for the Prefilter stage: the token program
// and the target liquidity program. 32 bytes each, matching an
// on-chain program address.
type ProgramIDs struct {
	TokenProgram    [32]byte
	LiquidityProgram [32]byte
}

// Pipeline wires the seven sniffer stages together and hands validated
// candidates to a bounded Queue.
type Pipeline struct {
	source     FrameSource
	programs   ProgramIDs
	analytics  *Analytics
	telemetry  *TelemetryRing
	queue      *Queue
	metrics    *metrics.Metrics
	traceSeq   uint64

	reconnect resilience.RetryConfig

	highCongestionThresholdUs int64
	lowCongestionThresholdUs  int64
	sendMaxRetries            int
	avgHandoffWaitUs          uint64 // math.Float64bits, EWMA

	extractErrors map[ExtractErrorKind]uint64
}

// ExtractErrorKind enumerates the Extract stage's failure modes.
type ExtractErrorKind string

const (
	ExtractTooSmall             ExtractErrorKind = "too_small"
	ExtractInvalidMint          ExtractErrorKind = "invalid_mint"
	ExtractOutOfBounds          ExtractErrorKind = "out_of_bounds"
	ExtractDeserializationFailed ExtractErrorKind = "deserialization_failed"
)

// NewPipeline builds a Pipeline reading from source, filtering for
// programs, classifying via analytics, handing off onto queue.
func NewPipeline(source FrameSource, programs ProgramIDs, analytics *Analytics, telemetry *TelemetryRing, queue *Queue, m *metrics.Metrics, cfg *domain.Config) *Pipeline {
	return &Pipeline{
		source:    source,
		programs:  programs,
		analytics: analytics,
		telemetry: telemetry,
		queue:     queue,
		metrics:   m,
		reconnect: resilience.RetryConfig{
			MaxAttempts:  1000000, // effectively governed by ctx cancellation; capped below
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     10 * time.Second,
			Multiplier:   2.0,
			Jitter:       0.2,
		},
		highCongestionThresholdUs: int64(cfg.HighCongestionThresholdMicros),
		lowCongestionThresholdUs:  int64(cfg.LowCongestionThresholdMicros),
		sendMaxRetries:            cfg.SendMaxRetries,
		extractErrors:             make(map[ExtractErrorKind]uint64),
	}
}

// Run drives the pipeline until ctx is cancelled. Each frame runs
// Receive→Sanity→Prefilter→Extract→Security→Classify→Handoff serially
// on this goroutine; callers run multiple Pipelines (one per
// connection) for parallelism.
func (p *Pipeline) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		frame, err := p.receive(ctx)
		if err != nil {
			return err
		}
		if frame == nil {
			continue
		}

		p.processFrame(frame)
	}
}

// receive consumes the next frame, reconnecting with exponential
// backoff and jitter on disconnect. It returns a non-nil error only
// once reconnection attempts are exhausted or ctx is cancelled.
func (p *Pipeline) receive(ctx context.Context) ([]byte, error) {
	frame, err := p.source.Next(ctx)
	if err == nil {
		p.telemetry.Record(EventBytesReceived, len(frame))
		p.metrics.IncCounter("frames_received")
		return frame, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	reconnectErr := resilience.Retry(ctx, p.reconnect, func() error {
		f, rerr := p.source.Next(ctx)
		if rerr != nil {
			return rerr
		}
		frame = f
		return nil
	})
	if reconnectErr != nil {
		return nil, errors.RPCUnavailable("stream", reconnectErr)
	}
	p.telemetry.Record(EventBytesReceived, len(frame))
	return frame, nil
}

func (p *Pipeline) processFrame(frame []byte) {
	if !sanity(frame) {
		return
	}

	if !prefilter(frame, p.programs) {
		p.telemetry.Record(EventPrefilterRejected, len(frame))
		return
	}
	p.telemetry.Record(EventPrefilterPassed, len(frame))

	candidate, kind, ok := extract(frame, p.traceSeq)
	p.traceSeq++
	if !ok {
		p.extractErrors[kind]++
		p.metrics.IncCounter("extract_errors_" + string(kind))
		return
	}
	p.telemetry.Record(EventCandidateExtracted, len(frame))

	if !inlineSecurity(&candidate) {
		p.telemetry.Record(EventSecurityRejected, len(frame))
		return
	}
	p.telemetry.Record(EventSecurityPassed, len(frame))

	p.analytics.AccumulateVolume(candidate.PriceHint)
	if p.analytics.Classify(candidate.PriceHint) {
		candidate.Priority = domain.PriorityHigh
	} else {
		candidate.Priority = domain.PriorityLow
	}

	p.handoff(candidate)
}

// sanity enforces size bounds and rejects degenerate/vote-shaped
// frames before any further processing.
func sanity(frame []byte) bool {
	if len(frame) < minFrameSize || len(frame) > maxFrameSize {
		return false
	}
	if isAllBytes(frame, 0x00) || isAllBytes(frame, 0xFF) {
		return false
	}
	// Vote-shaped heuristic: first byte zero or length < 128.
	if frame[0] == 0 || len(frame) < 128 {
		return false
	}
	return true
}

func isAllBytes(frame []byte, b byte) bool {
	for _, v := range frame {
		if v != b {
			return false
		}
	}
	return true
}

// prefilter does a zero-copy scan for the program IDs of interest.
// The account-keys region is scanned first since it yields 90%+ of
// hits; the rest of the frame is scanned only on a region miss.
func prefilter(frame []byte, programs ProgramIDs) bool {
	lo, hi := accountKeysRegionStart, accountKeysRegionEnd
	if hi > len(frame) {
		hi = len(frame)
	}
	if lo < len(frame) {
		if containsProgramID(frame[lo:hi], programs) {
			return true
		}
	}

	if lo < len(frame) {
		if containsProgramID(frame[:lo], programs) {
			return true
		}
	}
	if hi < len(frame) {
		if containsProgramID(frame[hi:], programs) {
			return true
		}
	}
	return false
}

func containsProgramID(region []byte, programs ProgramIDs) bool {
	return bytes.Contains(region, programs.TokenProgram[:]) ||
		bytes.Contains(region, programs.LiquidityProgram[:])
}

// extract assembles a Candidate with bounds-checked offsets. This is
// the non-prod_parse path: a full structured deserialization is a
// build-time feature the spec defers to an external parser, so this
// always uses the bounds-checked layout.
func extract(frame []byte, traceSeq uint64) (domain.Candidate, ExtractErrorKind, bool) {
	const (
		mintOffset     = 8
		mintLen        = 32
		priceHintOffset = 40
		numAccountsOffset = 48
		accountsOffset = 49
	)

	if len(frame) < accountsOffset {
		return domain.Candidate{}, ExtractTooSmall, false
	}

	var c domain.Candidate
	copy(c.Mint[:], frame[mintOffset:mintOffset+mintLen])
	if c.Mint.IsZero() {
		return domain.Candidate{}, ExtractInvalidMint, false
	}

	if priceHintOffset+8 > len(frame) {
		return domain.Candidate{}, ExtractOutOfBounds, false
	}
	bits := binary.LittleEndian.Uint64(frame[priceHintOffset : priceHintOffset+8])
	c.PriceHint = math.Float64frombits(bits)

	numAccounts := int(frame[numAccountsOffset])
	if numAccounts > domain.MaxAccounts {
		numAccounts = domain.MaxAccounts
	}
	need := accountsOffset + numAccounts*32
	if need > len(frame) {
		return domain.Candidate{}, ExtractOutOfBounds, false
	}
	for i := 0; i < numAccounts; i++ {
		start := accountsOffset + i*32
		copy(c.Accounts[i][:], frame[start:start+32])
	}
	c.NumAccounts = numAccounts
	c.TraceID = traceSeq

	return c, "", true
}

// inlineSecurity rejects zero mints, suspicious key patterns, and
// non-finite or negative price hints.
func inlineSecurity(c *domain.Candidate) bool {
	if err := c.Validate(); err != nil {
		return false
	}
	for i := 0; i < c.NumAccounts; i++ {
		if isAllBytes(c.Accounts[i][:], 0xFF) {
			return false
		}
		if hasIdenticalFirstFour(c.Accounts[i]) {
			return false
		}
	}
	return true
}

func hasIdenticalFirstFour(m domain.Mint) bool {
	return m[0] == m[1] && m[1] == m[2] && m[2] == m[3]
}

// handoff enqueues a fully-validated candidate using the configured
// drop policy. High-priority candidates get a bounded number of
// blocking retries, gated by the adaptive congestion override: above
// high_congestion_threshold_us average wait, blocking retries are
// skipped entirely (force DropNewest); below
// low_congestion_threshold_us, the full retry budget is allowed.
func (p *Pipeline) handoff(c domain.Candidate) {
	start := time.Now()
	sent := p.queue.Push(c)
	p.recordHandoffWait(time.Since(start))
	if sent {
		p.telemetry.Record(EventHandoffSent, 0)
		p.metrics.IncCounter("candidates_accepted")
		return
	}

	if c.Priority == domain.PriorityHigh && p.avgWaitUs() < p.highCongestionThresholdUs {
		for attempt := 0; attempt < p.sendMaxRetries; attempt++ {
			time.Sleep(50 * time.Microsecond)
			if p.queue.Push(c) {
				p.telemetry.Record(EventHandoffSent, 0)
				p.metrics.IncCounter("candidates_accepted")
				return
			}
		}
	}

	p.telemetry.Record(EventHandoffDropped, 0)
	p.metrics.IncCounter("candidates_dropped")
}

func (p *Pipeline) recordHandoffWait(d time.Duration) {
	const alpha = 0.2
	for {
		old := atomicLoadFloat(&p.avgHandoffWaitUs)
		updated := alpha*float64(d.Microseconds()) + (1-alpha)*old
		if atomicCASFloat(&p.avgHandoffWaitUs, old, updated) {
			return
		}
	}
}

func (p *Pipeline) avgWaitUs() int64 {
	return int64(atomicLoadFloat(&p.avgHandoffWaitUs))
}

func atomicLoadFloat(addr *uint64) float64 {
	return math.Float64frombits(atomic.LoadUint64(addr))
}

func atomicCASFloat(addr *uint64, old, newVal float64) bool {
	return atomic.CompareAndSwapUint64(addr, math.Float64bits(old), math.Float64bits(newVal))
}
