package domain

import "time"

// Position is held in the PositionTracker, keyed by Mint. Sold never
// exceeds Initial (saturating arithmetic); when they're equal the entry
// is removed atomically by the tracker.
type Position struct {
	Mint                Mint
	EntryTimestamp      time.Time
	InitialTokenAmount  uint64
	InitialCostNative   uint64
	SoldTokenAmount     uint64
	TotalProceedsNative uint64
	LastSeenPrice       float64
	LastUpdate          time.Time
}

// RemainingTokens returns the tokens not yet sold out of this position.
func (p *Position) RemainingTokens() uint64 {
	if p.SoldTokenAmount >= p.InitialTokenAmount {
		return 0
	}
	return p.InitialTokenAmount - p.SoldTokenAmount
}

// IsFullyExited reports whether the entire initial position has been sold.
func (p *Position) IsFullyExited() bool {
	return p.SoldTokenAmount >= p.InitialTokenAmount
}

// PnL is the result of evaluating a Position against a current price. It
// is a pure function of (Position, price): two calls with identical
// inputs always yield identical results.
type PnL struct {
	CurrentValueNative float64
	TotalValueNative   float64
	PnLNative          float64
	PnLPercent         float64
}

// CalculatePnL computes unrealized + realized P&L for p at the given
// price. unitScale converts base-unit token amounts into whole tokens
// (e.g. 10^-decimals); pass 1.0 if the price is already base-unit-scaled.
func CalculatePnL(p Position, price, unitScale float64) PnL {
	remaining := float64(p.RemainingTokens())
	currentValue := remaining * price * unitScale
	totalValue := float64(p.TotalProceedsNative) + currentValue
	pnlNative := totalValue - float64(p.InitialCostNative)

	var pnlPercent float64
	if p.InitialCostNative != 0 {
		pnlPercent = pnlNative / float64(p.InitialCostNative) * 100
	}

	return PnL{
		CurrentValueNative: currentValue,
		TotalValueNative:   totalValue,
		PnLNative:          pnlNative,
		PnLPercent:         pnlPercent,
	}
}
