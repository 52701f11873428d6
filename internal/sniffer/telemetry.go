package sniffer

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventKind names one telemetry event stamped at a pipeline stage
// boundary. Tracing in the hot path uses these events, never ad-hoc
// logging, so off-line analysis can reconstruct per-stage yield.
type EventKind string

const (
	EventBytesReceived     EventKind = "bytes_received"
	EventPrefilterPassed   EventKind = "prefilter_passed"
	EventPrefilterRejected EventKind = "prefilter_rejected"
	EventCandidateExtracted EventKind = "candidate_extracted"
	EventSecurityPassed    EventKind = "security_passed"
	EventSecurityRejected  EventKind = "security_rejected"
	EventHandoffSent       EventKind = "handoff_sent"
	EventHandoffDropped    EventKind = "handoff_dropped"
)

// Event is one stamped occurrence of a pipeline stage boundary.
type Event struct {
	Kind EventKind
	At   time.Time
	Size int
}

// TelemetryRing is a fixed-capacity ring buffer of recent pipeline
// events, sampled into a zerolog sink so hot-path tracing never pays
// the cost of a fully-structured logger on every frame.
type TelemetryRing struct {
	log zerolog.Logger

	mu       sync.Mutex
	buf      []Event
	next     int
	filled   bool
	capacity int
}

// NewTelemetryRing builds a ring of the given capacity logging through
// zl (tests that don't care pass a logger writing to io.Discard).
func NewTelemetryRing(capacity int, zl zerolog.Logger) *TelemetryRing {
	if capacity <= 0 {
		capacity = 10000
	}
	return &TelemetryRing{
		log:      zl,
		buf:      make([]Event, capacity),
		capacity: capacity,
	}
}

// Record appends an event, overwriting the oldest entry once the ring
// is full, and emits it through zerolog at debug level.
func (r *TelemetryRing) Record(kind EventKind, size int) {
	ev := Event{Kind: kind, At: time.Now(), Size: size}

	r.mu.Lock()
	r.buf[r.next] = ev
	r.next = (r.next + 1) % r.capacity
	if r.next == 0 {
		r.filled = true
	}
	r.mu.Unlock()

	r.log.Debug().Str("kind", string(kind)).Int("size", size).Msg("pipeline event")
}

// Snapshot returns a copy of the currently-retained events, oldest
// first.
func (r *TelemetryRing) Snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.filled {
		out := make([]Event, r.next)
		copy(out, r.buf[:r.next])
		return out
	}

	out := make([]Event, r.capacity)
	copy(out, r.buf[r.next:])
	copy(out[r.capacity-r.next:], r.buf[:r.next])
	return out
}
