// Package controlapi exposes the engine's manual-command path over a
// small HTTP JSON API, letting an operator CLI issue commands against
// a running daemon without either side knowing about the other's
// process boundary.
package controlapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kestrel-systems/sniper/infrastructure/hex"
	"github.com/kestrel-systems/sniper/infrastructure/ratelimit"
	"github.com/kestrel-systems/sniper/internal/domain"
	"github.com/kestrel-systems/sniper/internal/engine"
)

// ackTimeout bounds how long a request waits for the engine to
// acknowledge a submitted command before replying with a timeout error.
const ackTimeout = 10 * time.Second

// commandRequest is the wire shape of a POST /command body.
type commandRequest struct {
	Kind             string  `json:"kind"`
	SellMint         string  `json:"sell_mint,omitempty"`
	SellPercent      float64 `json:"sell_percent,omitempty"`
	StopLossEnabled  bool    `json:"stop_loss_enabled,omitempty"`
	StopLossPercent  float64 `json:"stop_loss_percent,omitempty"`
	TakeProfitEnabled bool    `json:"take_profit_enabled,omitempty"`
	TakeProfitPercent float64 `json:"take_profit_percent,omitempty"`
	TakeProfitSell    float64 `json:"take_profit_sell_percent,omitempty"`
	TradingMode       string  `json:"trading_mode,omitempty"`
	EnableMultiToken  bool    `json:"enable_multi_token,omitempty"`
}

type commandResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
}

var kindByName = map[string]engine.CommandKind{
	"sell":                 engine.CmdSell,
	"set_stop_loss":        engine.CmdSetStopLoss,
	"set_take_profit":      engine.CmdSetTakeProfit,
	"clear_strategy":       engine.CmdClearStrategy,
	"set_trading_mode":     engine.CmdSetTradingMode,
	"set_multi_token_mode": engine.CmdSetMultiTokenMode,
	"emergency_stop":       engine.CmdEmergencyStop,
}

var modeByName = map[string]domain.BotState{
	"sniffing":        domain.StateSniffing,
	"passive_token":   domain.StatePassiveToken,
	"paused":          domain.StatePaused,
	"emergency_stopped": domain.StateEmergencyStopped,
}

// Server wraps the engine's command submission channel in an HTTP
// handler.
type Server struct {
	submit  func(engine.Command) bool
	limiter *ratelimit.RateLimiter
}

// New builds a Server that forwards accepted commands via submit
// (typically a GUI bridge's SubmitCommand, or the engine's Commands()
// channel directly via a try-send wrapper). A single server-wide rate
// limit (5 requests/s, burst 10), shared by all callers, guards the
// command path from a caller hammering emergency-stop or sell.
func New(submit func(engine.Command) bool) *Server {
	return &Server{
		submit:  submit,
		limiter: ratelimit.New(ratelimit.RateLimitConfig{RequestsPerSecond: 5, Burst: 10}),
	}
}

// Handler returns the mux entry point for POST /command.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/command", s.handleCommand)
	return rateLimited(s.limiter, mux)
}

func rateLimited(limiter *ratelimit.RateLimiter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			writeJSON(w, http.StatusTooManyRequests, commandResponse{Success: false, Message: "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, commandResponse{Success: false, Message: "invalid request body", Reason: err.Error()})
		return
	}

	cmd, err := toCommand(req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, commandResponse{Success: false, Message: "invalid command", Reason: err.Error()})
		return
	}

	ack := make(chan engine.CommandResult, 1)
	cmd.Ack = ack

	if !s.submit(cmd) {
		writeJSON(w, http.StatusServiceUnavailable, commandResponse{Success: false, Message: "command queue full", Reason: "backpressure"})
		return
	}

	select {
	case res := <-ack:
		writeJSON(w, http.StatusOK, commandResponse{Success: res.Success, Message: res.Message, Reason: res.Reason})
	case <-time.After(ackTimeout):
		writeJSON(w, http.StatusGatewayTimeout, commandResponse{Success: false, Message: "timed out waiting for acknowledgment"})
	}
}

func toCommand(req commandRequest) (engine.Command, error) {
	kind, ok := kindByName[req.Kind]
	if !ok {
		return engine.Command{}, fmt.Errorf("unknown command kind %q", req.Kind)
	}

	cmd := engine.Command{
		Kind:             kind,
		SellPercent:      req.SellPercent,
		StopLoss:         domain.StopLossConfig{Enabled: req.StopLossEnabled, ThresholdPercent: req.StopLossPercent},
		TakeProfit:       domain.TakeProfitConfig{Enabled: req.TakeProfitEnabled, ThresholdPercent: req.TakeProfitPercent, SellPercent: req.TakeProfitSell},
		EnableMultiToken: req.EnableMultiToken,
	}

	if req.SellMint != "" {
		b, ok := hex.TryDecode(req.SellMint)
		if !ok || len(b) != len(domain.Mint{}) {
			return engine.Command{}, fmt.Errorf("sell_mint must be a 32-byte hex string")
		}
		copy(cmd.SellMint[:], b)
	}

	if req.TradingMode != "" {
		mode, ok := modeByName[req.TradingMode]
		if !ok {
			return engine.Command{}, fmt.Errorf("unknown trading_mode %q", req.TradingMode)
		}
		cmd.TradingMode = mode
	}

	return cmd, nil
}

func writeJSON(w http.ResponseWriter, status int, body commandResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
