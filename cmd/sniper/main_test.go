package main

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kestrel-systems/sniper/internal/domain"
)

func TestDerivedNonceAccounts_FallsBackToPlaceholders(t *testing.T) {
	os.Unsetenv("SNIPER_NONCE_ACCOUNTS_HEX")
	cfg := domain.Default()
	cfg.NoncePoolSize = 3

	accounts := derivedNonceAccounts(cfg)
	require.Len(t, accounts, 3)
	require.Equal(t, byte(1), accounts[0][0])
	require.Equal(t, byte(2), accounts[1][0])
}

func TestDerivedNonceAccounts_UsesEnvWhenValid(t *testing.T) {
	hexID := "ab" + stringRepeat("00", 31)
	os.Setenv("SNIPER_NONCE_ACCOUNTS_HEX", hexID)
	defer os.Unsetenv("SNIPER_NONCE_ACCOUNTS_HEX")

	cfg := domain.Default()
	cfg.NoncePoolSize = 5

	accounts := derivedNonceAccounts(cfg)
	require.Len(t, accounts, 1)
	require.Equal(t, byte(0xab), accounts[0][0])
}

func TestLoadProgramIDs_MapsFirstTwoEntries(t *testing.T) {
	cfg := domain.Default()
	var a, b domain.Mint
	a[0] = 1
	b[0] = 2
	cfg.AllowListProgramIDs = []domain.Mint{a, b}

	ids := loadProgramIDs(cfg)
	require.Equal(t, [32]byte(a), ids.TokenProgram)
	require.Equal(t, [32]byte(b), ids.LiquidityProgram)
}

func TestLoadProgramIDs_HandlesEmptyList(t *testing.T) {
	cfg := domain.Default()
	cfg.AllowListProgramIDs = nil

	ids := loadProgramIDs(cfg)
	require.Equal(t, [32]byte{}, ids.TokenProgram)
	require.Equal(t, [32]byte{}, ids.LiquidityProgram)
}

func stringRepeat(s string, n int) string {
	out := make([]byte, 0, len(s)*n)
	for i := 0; i < n; i++ {
		out = append(out, s...)
	}
	return string(out)
}
