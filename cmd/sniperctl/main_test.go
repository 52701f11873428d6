package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultAddr_FallsBackWithoutEnv(t *testing.T) {
	os.Unsetenv("SNIPER_CONTROL_ADDR")
	require.Equal(t, "http://localhost:9091", defaultAddr())
}

func TestDefaultAddr_UsesEnvWhenSet(t *testing.T) {
	os.Setenv("SNIPER_CONTROL_ADDR", "http://example:1234")
	defer os.Unsetenv("SNIPER_CONTROL_ADDR")
	require.Equal(t, "http://example:1234", defaultAddr())
}

func TestPostCommand_SucceedsOnSuccess(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"message":"ok"}`))
	}))
	defer ts.Close()

	err := postCommand(&clientOpts{addr: ts.URL, timeout: time.Second}, map[string]any{"kind": "emergency_stop"})
	require.NoError(t, err)
}

func TestPostCommand_ReturnsErrorOnRejection(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":false,"message":"nope","reason":"bad"}`))
	}))
	defer ts.Close()

	err := postCommand(&clientOpts{addr: ts.URL, timeout: time.Second}, map[string]any{"kind": "emergency_stop"})
	require.Error(t, err)
}
