package engine

import (
	"context"

	"github.com/kestrel-systems/sniper/internal/domain"
	"github.com/kestrel-systems/sniper/internal/txbuilder"
)

// runBuyLoop dequeues candidates and attempts a buy for each, honoring
// the portfolio gate and the paused/emergency-stopped states.
func (e *Engine) runBuyLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		c := e.candidates.Pop()

		switch e.State() {
		case domain.StatePaused, domain.StateEmergencyStopped:
			continue
		}

		if !e.tracker.CanBuy(e.cfg.EnableMultiToken, int(e.cfg.MaxConcurrentPositions)) {
			continue
		}

		e.attemptBuy(ctx, c)
	}
}

// attemptBuy runs one candidate through the build/broadcast/record
// cycle, retrying transient failures per the documented priority
// policy before giving up and counting the error.
func (e *Engine) attemptBuy(ctx context.Context, c domain.Candidate) {
	var lastErr error

	for attempt := 0; ; attempt++ {
		req := txbuilder.BuildRequest{
			Priority: txbuilder.CriticalSniper,
			ProgramInstructions: []txbuilder.Instruction{
				{Kind: txbuilder.KindProgram, ProgramID: txbuilder.SystemProgramID, Accounts: append([]domain.Mint{c.Mint}, c.Accounts[:c.NumAccounts]...)},
			},
			BaseFeeMicroLamports: e.cfg.BaseFeeMicroLamports,
			CongestionMultiplier: 1.0,
			AllowListProgramIDs:  e.cfg.AllowListProgramIDs,
			MinQuorumResponses:   e.cfg.MinBlockhashResponses,
			AvailableEndpoints:   e.availableEndpoints(),
			MaxSlotDiffSlots:     int(e.cfg.MaxSlotDiff),
			ComputeUnitLimit:     e.cfg.ComputeUnitLimit,
			SimulationEnabled:    e.cfg.SimulationEnabled,
			Placeholder:          true,
		}

		out, err := e.builder.Build(ctx, e.simulator, req)
		if err != nil {
			lastErr = err
			if isRetryableForPriority(err, c.Priority, attempt, e.cfg.MaxRetriesHigh) {
				continue
			}
			break
		}

		sig, err := e.broadcaster.Broadcast(ctx, out.IntoTx())
		if err != nil {
			lastErr = err
			if isRetryableForPriority(err, c.Priority, attempt, e.cfg.MaxRetriesHigh) {
				continue
			}
			break
		}

		out.ReleaseNonce()
		e.tracker.RecordBuy(c.Mint, e.estimateTokensOut(c), e.estimateCostNative(), nowUnix())
		e.setState(domain.StatePassiveToken)
		e.publishSnapshot()

		e.log.WithFields(map[string]interface{}{
			"mint":      c.Mint,
			"signature": sig,
			"trace_id":  c.TraceID,
		}).Info("buy executed")
		return
	}

	e.log.WithFields(map[string]interface{}{
		"mint":     c.Mint,
		"trace_id": c.TraceID,
	}).WithError(lastErr).Error("buy failed")
}

// estimateTokensOut and estimateCostNative stand in for the DEX-specific
// swap-quote math this build omits; a real integration reads the quote
// from the simulated transaction's return data instead.
func (e *Engine) estimateTokensOut(c domain.Candidate) uint64 {
	if c.PriceHint <= 0 {
		return 0
	}
	return uint64(float64(e.cfg.BaseFeeMicroLamports) / c.PriceHint)
}

func (e *Engine) estimateCostNative() uint64 {
	return e.cfg.BaseFeeMicroLamports
}
