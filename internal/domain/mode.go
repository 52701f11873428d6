package domain

// BotState is the engine's coarse operating mode, consulted by the buy
// path (paused → skip) and transitioned by the auto-sell loop when the
// last tracked position closes.
type BotState uint8

const (
	// StateSniffing is the default mode: the buy path actively consumes
	// candidates from the queue.
	StateSniffing BotState = iota
	// StatePassiveToken means at least one position is open; the engine
	// still sniffs but manual trading-mode commands may pause buying.
	StatePassiveToken
	// StatePaused means the buy path skips every dequeued candidate.
	StatePaused
	// StateEmergencyStopped means all trading (buy and auto-sell) has
	// been halted by an EmergencyStop command; only manual Sell commands
	// still execute, to allow an operator to unwind positions by hand.
	StateEmergencyStopped
)

func (s BotState) String() string {
	switch s {
	case StateSniffing:
		return "sniffing"
	case StatePassiveToken:
		return "passive_token"
	case StatePaused:
		return "paused"
	case StateEmergencyStopped:
		return "emergency_stopped"
	default:
		return "unknown"
	}
}
