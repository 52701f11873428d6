package engine

import (
	"context"
	"time"

	"github.com/kestrel-systems/sniper/internal/domain"
	"github.com/kestrel-systems/sniper/internal/txbuilder"
)

// runAutoSellLoop fires every autoSellInterval, refreshing each
// position's price, evaluating the stop-loss/take-profit rules in
// order, and executing a sell when one fires. All errors are logged
// and the loop continues on the next tick.
func (e *Engine) runAutoSellLoop(ctx context.Context) error {
	ticker := time.NewTicker(autoSellInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if e.State() == domain.StateEmergencyStopped {
				continue
			}
			e.evaluatePositions(ctx)
		}
	}
}

func (e *Engine) evaluatePositions(ctx context.Context) {
	for _, pos := range e.tracker.All() {
		price, err := e.prices.CurrentPrice(ctx, pos.Mint)
		if err != nil {
			e.log.WithFields(map[string]interface{}{"mint": pos.Mint}).WithError(err).Warn("auto-sell price lookup failed")
			continue
		}
		e.tracker.UpdatePrice(pos.Mint, price, nowUnix())

		pos, ok := e.tracker.Get(pos.Mint)
		if !ok {
			continue
		}

		pnl := domain.CalculatePnL(pos, price, e.cfg.UnitScale)
		fraction, priority, fires := e.evaluateRules(pnl)
		if !fires {
			continue
		}

		if err := e.executeSell(ctx, pos, fraction, priority); err != nil {
			e.log.WithFields(map[string]interface{}{"mint": pos.Mint}).WithError(err).Warn("auto-sell execute failed")
		}
	}
}

// evaluateRules short-circuits on stop-loss first, matching the
// documented precedence: stop-loss always wins over take-profit when
// both qualify on the same tick.
func (e *Engine) evaluateRules(pnl domain.PnL) (fraction float64, priority txbuilder.OperationPriority, fires bool) {
	sl := e.stopLoss.Load()
	if sl != nil && sl.Enabled && pnl.PnLPercent <= sl.ThresholdPercent {
		return 1.0, txbuilder.CriticalSniper, true
	}

	tp := e.takeProfit.Load()
	if tp != nil && tp.Enabled && pnl.PnLPercent >= tp.ThresholdPercent {
		return clampFraction(tp.SellPercent), txbuilder.Utility, true
	}

	return 0, 0, false
}
