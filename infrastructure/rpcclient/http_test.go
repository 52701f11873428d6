package rpcclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHTTPCaller_DecodesResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "2.0", req.JSONRPC)
		require.Equal(t, "getHealth", req.Method)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"status":"ok"}}`))
	}))
	defer srv.Close()

	c := NewHTTPCaller(0)
	var out struct {
		Status string `json:"status"`
	}
	err := c.Call(context.Background(), srv.URL, "getHealth", nil, &out)
	require.NoError(t, err)
	require.Equal(t, "ok", out.Status)
}

func TestHTTPCaller_ReturnsRPCError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"boom"}}`))
	}))
	defer srv.Close()

	c := NewHTTPCaller(0)
	err := c.Call(context.Background(), srv.URL, "getHealth", nil, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "boom")
}

func TestHTTPCaller_NonOKStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("oops"))
	}))
	defer srv.Close()

	c := NewHTTPCaller(0)
	err := c.Call(context.Background(), srv.URL, "getHealth", nil, nil)
	require.Error(t, err)
}

func TestHTTPCaller_AssignsIncreasingIDs(t *testing.T) {
	var ids []uint64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		ids = append(ids, req.ID)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":null}`))
	}))
	defer srv.Close()

	c := NewHTTPCaller(0)
	require.NoError(t, c.Call(context.Background(), srv.URL, "a", nil, nil))
	require.NoError(t, c.Call(context.Background(), srv.URL, "b", nil, nil))

	require.Len(t, ids, 2)
	require.NotEqual(t, ids[0], ids[1])
}
