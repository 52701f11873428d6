package engine

import (
	"context"

	"github.com/kestrel-systems/sniper/internal/domain"
	"github.com/kestrel-systems/sniper/internal/txbuilder"
)

// executeSell builds, simulates, broadcasts and records a sell of
// fraction of pos's remaining tokens, priced against the position's
// last-seen price. It is shared by the manual-command path and the
// auto-sell loop.
func (e *Engine) executeSell(ctx context.Context, pos domain.Position, fraction float64, priority txbuilder.OperationPriority) error {
	remaining := pos.RemainingTokens()
	tokensToSell := uint64(float64(remaining) * fraction)
	if tokensToSell == 0 {
		return nil
	}

	req := txbuilder.BuildRequest{
		Priority: priority,
		ProgramInstructions: []txbuilder.Instruction{
			{Kind: txbuilder.KindProgram, ProgramID: txbuilder.SystemProgramID, Accounts: []domain.Mint{pos.Mint}},
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
		return err
	}

	sig, err := e.broadcaster.Broadcast(ctx, out.IntoTx())
	if err != nil {
		// out is dropped without releasing; the reaper reclaims the
		// lease (if any) on TTL expiry.
		return err
	}
	out.ReleaseNonce()

	proceedsNative := uint64(float64(tokensToSell) * pos.LastSeenPrice * e.cfg.UnitScale)
	_, closed, _ := e.tracker.RecordSell(pos.Mint, tokensToSell, proceedsNative)

	e.log.WithFields(map[string]interface{}{
		"mint":      pos.Mint,
		"signature": sig,
		"tokens":    tokensToSell,
		"closed":    closed,
	}).Info("sell executed")

	if closed && e.tracker.Count() == 0 && e.State() == domain.StatePassiveToken {
		e.setState(domain.StateSniffing)
	}

	e.publishSnapshot()
	return nil
}
