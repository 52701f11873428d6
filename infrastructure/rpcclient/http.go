// Package rpcclient is the one piece of transport the rest of the
// agent never sees directly: a JSON-RPC 2.0 caller over HTTP,
// satisfying rpcpool.Caller. Rate limiting and circuit breaking happen
// one layer up in rpcpool, which does not retry a failed call; this
// package only knows how to serialize a request and deserialize a
// response.
package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// HTTPCaller issues JSON-RPC 2.0 requests over a shared *http.Client.
type HTTPCaller struct {
	client *http.Client
	nextID atomic.Uint64
}

// NewHTTPCaller builds a caller with the given per-request timeout.
func NewHTTPCaller(timeout time.Duration) *HTTPCaller {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPCaller{client: &http.Client{Timeout: timeout}}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Call POSTs a JSON-RPC request to endpointURL and decodes the result
// into out.
func (c *HTTPCaller) Call(ctx context.Context, endpointURL, method string, params, out any) error {
	reqBody, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("rpcclient: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("rpcclient: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("rpcclient: do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("rpcclient: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rpcclient: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return fmt.Errorf("rpcclient: decode envelope: %w", err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if out == nil || len(rpcResp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return fmt.Errorf("rpcclient: decode result: %w", err)
	}
	return nil
}
