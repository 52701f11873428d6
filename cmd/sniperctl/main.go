// Command sniperctl issues manual commands against a running sniper
// daemon's control API: sell, strategy adjustments, mode switches, and
// the emergency stop.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type clientOpts struct {
	addr    string
	timeout time.Duration
}

func main() {
	opts := &clientOpts{}

	root := &cobra.Command{
		Use:   "sniperctl",
		Short: "Controls a running sniper daemon",
	}
	root.PersistentFlags().StringVar(&opts.addr, "addr", defaultAddr(), "sniper daemon control API base URL")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 15*time.Second, "HTTP request timeout")

	root.AddCommand(
		sellCmd(opts),
		setStopLossCmd(opts),
		setTakeProfitCmd(opts),
		clearStrategyCmd(opts),
		setTradingModeCmd(opts),
		setMultiTokenModeCmd(opts),
		emergencyStopCmd(opts),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func defaultAddr() string {
	if v := strings.TrimSpace(os.Getenv("SNIPER_CONTROL_ADDR")); v != "" {
		return v
	}
	return "http://localhost:9091"
}

func sellCmd(opts *clientOpts) *cobra.Command {
	var mint string
	var percent float64
	cmd := &cobra.Command{
		Use:   "sell",
		Short: "Sell a percentage of a held position",
		RunE: func(cmd *cobra.Command, args []string) error {
			return postCommand(opts, map[string]any{
				"kind":         "sell",
				"sell_mint":    mint,
				"sell_percent": percent,
			})
		},
	}
	cmd.Flags().StringVar(&mint, "mint", "", "hex-encoded mint of the position to sell")
	cmd.Flags().Float64Var(&percent, "percent", 100, "percentage of remaining tokens to sell (0-100]")
	cmd.MarkFlagRequired("mint")
	return cmd
}

func setStopLossCmd(opts *clientOpts) *cobra.Command {
	var enabled bool
	var threshold float64
	cmd := &cobra.Command{
		Use:   "set-stop-loss",
		Short: "Configure the stop-loss rule",
		RunE: func(cmd *cobra.Command, args []string) error {
			return postCommand(opts, map[string]any{
				"kind":              "set_stop_loss",
				"stop_loss_enabled": enabled,
				"stop_loss_percent": threshold,
			})
		},
	}
	cmd.Flags().BoolVar(&enabled, "enabled", true, "enable the stop-loss rule")
	cmd.Flags().Float64Var(&threshold, "threshold-percent", -10, "PnL percent at or below which to trigger")
	return cmd
}

func setTakeProfitCmd(opts *clientOpts) *cobra.Command {
	var enabled bool
	var threshold, sellPercent float64
	cmd := &cobra.Command{
		Use:   "set-take-profit",
		Short: "Configure the take-profit rule",
		RunE: func(cmd *cobra.Command, args []string) error {
			return postCommand(opts, map[string]any{
				"kind":                     "set_take_profit",
				"take_profit_enabled":      enabled,
				"take_profit_percent":      threshold,
				"take_profit_sell_percent": sellPercent,
			})
		},
	}
	cmd.Flags().BoolVar(&enabled, "enabled", true, "enable the take-profit rule")
	cmd.Flags().Float64Var(&threshold, "threshold-percent", 50, "PnL percent at or above which to trigger")
	cmd.Flags().Float64Var(&sellPercent, "sell-percent", 50, "percentage of remaining tokens to sell when triggered")
	return cmd
}

func clearStrategyCmd(opts *clientOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-strategy",
		Short: "Clear stop-loss and take-profit rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			return postCommand(opts, map[string]any{"kind": "clear_strategy"})
		},
	}
}

func setTradingModeCmd(opts *clientOpts) *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "set-trading-mode",
		Short: "Force the bot into a specific mode",
		RunE: func(cmd *cobra.Command, args []string) error {
			return postCommand(opts, map[string]any{
				"kind":         "set_trading_mode",
				"trading_mode": mode,
			})
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "sniffing", "one of: sniffing, passive_token, paused, emergency_stopped")
	return cmd
}

func setMultiTokenModeCmd(opts *clientOpts) *cobra.Command {
	var enabled bool
	cmd := &cobra.Command{
		Use:   "set-multi-token-mode",
		Short: "Toggle holding multiple concurrent positions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return postCommand(opts, map[string]any{
				"kind":               "set_multi_token_mode",
				"enable_multi_token": enabled,
			})
		},
	}
	cmd.Flags().BoolVar(&enabled, "enabled", true, "allow more than one concurrent position")
	return cmd
}

func emergencyStopCmd(opts *clientOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "emergency-stop",
		Short: "Halt all buy, sell, and sniffing activity immediately",
		RunE: func(cmd *cobra.Command, args []string) error {
			return postCommand(opts, map[string]any{"kind": "emergency_stop"})
		},
	}
}

type commandResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
}

func postCommand(opts *clientOpts, body map[string]any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("sniperctl: encode request: %w", err)
	}

	client := &http.Client{Timeout: opts.timeout}
	resp, err := client.Post(strings.TrimRight(opts.addr, "/")+"/command", "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("sniperctl: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("sniperctl: read response: %w", err)
	}

	var result commandResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("sniperctl: decode response: %w", err)
	}

	if !result.Success {
		return fmt.Errorf("command rejected: %s (%s)", result.Message, result.Reason)
	}
	fmt.Println(result.Message)
	return nil
}
