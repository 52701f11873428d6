package txbuilder

import (
	"context"
	"sync"

	agerrors "github.com/kestrel-systems/sniper/infrastructure/errors"
)

// BlockhashSource is the narrow surface of RpcPool the quorum reader
// needs: one call issues one getLatestBlockhash request against
// whichever endpoint the pool currently scores best, so fanning the
// same call out concurrently spreads it across the pool's top-scored
// endpoints under weighted-random selection.
type BlockhashSource interface {
	Call(ctx context.Context, method string, params, out any) error
}

// BlockhashResponse is one endpoint's answer to getLatestBlockhash.
type BlockhashResponse struct {
	Blockhash [32]byte
	Slot      uint64
}

// QuorumBlockhash issues getLatestBlockhash concurrently to
// min(minResponses, availableEndpoints) requests and returns the first
// blockhash that appears in at least minResponses responses whose
// slots differ by at most maxSlotDiff. availableEndpoints bounds the
// fan-out width (there's no point firing more concurrent requests than
// the pool has endpoints to answer them from).
func QuorumBlockhash(ctx context.Context, source BlockhashSource, minResponses, availableEndpoints, maxSlotDiff int) (BlockhashResponse, error) {
	fanOut := minResponses
	if availableEndpoints < fanOut {
		fanOut = availableEndpoints
	}

	type result struct {
		resp BlockhashResponse
		err  error
	}

	results := make(chan result, fanOut)
	var wg sync.WaitGroup
	for i := 0; i < fanOut; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var raw struct {
				Value struct {
					Blockhash string `json:"blockhash"`
				} `json:"value"`
				Context struct {
					Slot uint64 `json:"slot"`
				} `json:"context"`
			}
			err := source.Call(ctx, "getLatestBlockhash", nil, &raw)
			if err != nil {
				results <- result{err: err}
				return
			}
			var bh [32]byte
			copy(bh[:], raw.Value.Blockhash)
			results <- result{resp: BlockhashResponse{Blockhash: bh, Slot: raw.Context.Slot}}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var collected []BlockhashResponse
	for r := range results {
		if r.err != nil {
			continue
		}
		collected = append(collected, r.resp)

		if quorumReached(collected, minResponses, maxSlotDiff) {
			return bestQuorumAnswer(collected, minResponses, maxSlotDiff), nil
		}
	}

	if len(collected) < minResponses {
		return BlockhashResponse{}, agerrors.BlockhashQuorumFailed(len(collected), minResponses)
	}
	return BlockhashResponse{}, agerrors.BlockhashQuorumFailed(len(collected), minResponses)
}

// quorumReached reports whether any group of minResponses collected
// answers carry the same blockhash with slots within maxSlotDiff of
// each other.
func quorumReached(collected []BlockhashResponse, minResponses, maxSlotDiff int) bool {
	for _, anchor := range collected {
		count := 0
		for _, c := range collected {
			if c.Blockhash == anchor.Blockhash && slotDiff(anchor.Slot, c.Slot) <= uint64(maxSlotDiff) {
				count++
			}
		}
		if count >= minResponses {
			return true
		}
	}
	return false
}

func bestQuorumAnswer(collected []BlockhashResponse, minResponses, maxSlotDiff int) BlockhashResponse {
	for _, anchor := range collected {
		count := 0
		for _, c := range collected {
			if c.Blockhash == anchor.Blockhash && slotDiff(anchor.Slot, c.Slot) <= uint64(maxSlotDiff) {
				count++
			}
		}
		if count >= minResponses {
			return anchor
		}
	}
	return collected[0]
}

func slotDiff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}
