package controlapi

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kestrel-systems/sniper/internal/engine"
)

func TestToCommand_Sell(t *testing.T) {
	mint := make([]byte, 32)
	mint[0] = 0xAB

	req := commandRequest{
		Kind:        "sell",
		SellMint:    hex.EncodeToString(mint),
		SellPercent: 50,
	}
	cmd, err := toCommand(req)
	require.NoError(t, err)
	require.Equal(t, engine.CmdSell, cmd.Kind)
	require.Equal(t, 50.0, cmd.SellPercent)
	require.Equal(t, byte(0xAB), cmd.SellMint[0])
}

func TestToCommand_RejectsUnknownKind(t *testing.T) {
	_, err := toCommand(commandRequest{Kind: "nonsense"})
	require.Error(t, err)
}

func TestToCommand_RejectsBadSellMint(t *testing.T) {
	_, err := toCommand(commandRequest{Kind: "sell", SellMint: "not-hex"})
	require.Error(t, err)
}

func TestToCommand_RejectsUnknownTradingMode(t *testing.T) {
	_, err := toCommand(commandRequest{Kind: "set_trading_mode", TradingMode: "bogus"})
	require.Error(t, err)
}

func TestToCommand_EmergencyStopNeedsNoFields(t *testing.T) {
	cmd, err := toCommand(commandRequest{Kind: "emergency_stop"})
	require.NoError(t, err)
	require.Equal(t, engine.CmdEmergencyStop, cmd.Kind)
}

func TestHandleCommand_AcksSuccess(t *testing.T) {
	submit := func(cmd engine.Command) bool {
		cmd.Ack <- engine.CommandResult{Success: true, Message: "done"}
		return true
	}
	srv := New(submit)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	body, _ := json.Marshal(map[string]any{"kind": "emergency_stop"})
	resp, err := http.Post(ts.URL+"/command", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out commandResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.True(t, out.Success)
	require.Equal(t, "done", out.Message)
}

func TestHandleCommand_RejectsWhenQueueFull(t *testing.T) {
	submit := func(cmd engine.Command) bool { return false }
	srv := New(submit)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	body, _ := json.Marshal(map[string]any{"kind": "emergency_stop"})
	resp, err := http.Post(ts.URL+"/command", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHandleCommand_RejectsNonPost(t *testing.T) {
	srv := New(func(engine.Command) bool { return true })
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/command")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHandleCommand_RejectsInvalidBody(t *testing.T) {
	srv := New(func(engine.Command) bool { return true })
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/command", "application/json", bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
