package sniffer

import (
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestTelemetryRing_SnapshotReturnsOldestFirstBeforeWrap(t *testing.T) {
	r := NewTelemetryRing(4, zerolog.New(io.Discard))
	r.Record(EventBytesReceived, 1)
	r.Record(EventPrefilterPassed, 2)

	snap := r.Snapshot()
	require.Len(t, snap, 2)
	require.Equal(t, EventBytesReceived, snap[0].Kind)
	require.Equal(t, EventPrefilterPassed, snap[1].Kind)
}

func TestTelemetryRing_WrapsAndPreservesOrder(t *testing.T) {
	r := NewTelemetryRing(3, zerolog.New(io.Discard))
	kinds := []EventKind{EventBytesReceived, EventPrefilterPassed, EventPrefilterRejected, EventCandidateExtracted, EventSecurityPassed}
	for _, k := range kinds {
		r.Record(k, 0)
	}

	snap := r.Snapshot()
	require.Len(t, snap, 3)
	require.Equal(t, []EventKind{EventPrefilterRejected, EventCandidateExtracted, EventSecurityPassed}, []EventKind{snap[0].Kind, snap[1].Kind, snap[2].Kind})
}
