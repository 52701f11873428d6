package engine

import (
	"context"

	"github.com/kestrel-systems/sniper/internal/domain"
	"github.com/kestrel-systems/sniper/internal/txbuilder"
)

// CommandKind identifies one of the manual-command path's operations.
type CommandKind uint8

const (
	CmdSell CommandKind = iota
	CmdSetStopLoss
	CmdSetTakeProfit
	CmdClearStrategy
	CmdSetTradingMode
	CmdSetMultiTokenMode
	CmdEmergencyStop
)

// Command is one manual instruction pushed onto the engine's command
// queue, typically forwarded from the GUI bridge. Ack, if non-nil,
// receives exactly one CommandResult before the command path moves on
// to the next command.
type Command struct {
	Kind CommandKind

	SellMint    domain.Mint
	SellPercent float64

	StopLoss   domain.StopLossConfig
	TakeProfit domain.TakeProfitConfig

	TradingMode     domain.BotState
	EnableMultiToken bool

	Ack chan CommandResult
}

// CommandResult is the acknowledgment every manual command receives on
// its response channel; silent failure is not permitted on this path.
type CommandResult struct {
	Success bool
	Message string
	Reason  string
}

func ackSuccess(cmd Command, message string) {
	if cmd.Ack == nil {
		return
	}
	cmd.Ack <- CommandResult{Success: true, Message: message}
}

func ackError(cmd Command, reason string) {
	if cmd.Ack == nil {
		return
	}
	cmd.Ack <- CommandResult{Success: false, Reason: reason}
}

// runCommandLoop consumes Command values until ctx is cancelled,
// dispatching each to the matching engine operation and always
// producing exactly one acknowledgment.
func (e *Engine) runCommandLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-e.commands:
			e.dispatchCommand(ctx, cmd)
		}
	}
}

func (e *Engine) dispatchCommand(ctx context.Context, cmd Command) {
	switch cmd.Kind {
	case CmdSell:
		e.handleManualSell(ctx, cmd)
	case CmdSetStopLoss:
		sl := cmd.StopLoss
		e.stopLoss.Store(&sl)
		ackSuccess(cmd, "stop-loss updated")
	case CmdSetTakeProfit:
		tp := cmd.TakeProfit
		e.takeProfit.Store(&tp)
		ackSuccess(cmd, "take-profit updated")
	case CmdClearStrategy:
		e.stopLoss.Store(&domain.StopLossConfig{Enabled: false})
		e.takeProfit.Store(&domain.TakeProfitConfig{Enabled: false})
		ackSuccess(cmd, "strategy cleared")
	case CmdSetTradingMode:
		e.setState(cmd.TradingMode)
		ackSuccess(cmd, "trading mode updated")
	case CmdSetMultiTokenMode:
		e.cfg.EnableMultiToken = cmd.EnableMultiToken
		ackSuccess(cmd, "multi-token mode updated")
	case CmdEmergencyStop:
		e.setState(domain.StateEmergencyStopped)
		ackSuccess(cmd, "emergency stop engaged")
	default:
		ackError(cmd, "unknown command")
	}
}

// handleManualSell executes an operator-requested sell of percent of
// the remaining tokens in mint's position, independent of the
// stop-loss/take-profit rules.
func (e *Engine) handleManualSell(ctx context.Context, cmd Command) {
	pos, ok := e.tracker.Get(cmd.SellMint)
	if !ok {
		ackError(cmd, "no open position for mint")
		return
	}

	fraction := clampFraction(cmd.SellPercent)
	if fraction <= 0 {
		ackError(cmd, "sell percent must be greater than zero")
		return
	}

	if err := e.executeSell(ctx, pos, fraction, txbuilder.Utility); err != nil {
		ackError(cmd, err.Error())
		return
	}
	ackSuccess(cmd, "sell executed")
}
