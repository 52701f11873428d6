package rpcpool

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kestrel-systems/sniper/internal/domain"
)

type nonceAccountCaller struct {
	data string
}

func (c *nonceAccountCaller) Call(ctx context.Context, endpointURL, method string, params, out any) error {
	raw := fmt.Sprintf(`{"value":{"data":["%s","base64"]}}`, c.data)
	return json.Unmarshal([]byte(raw), out)
}

func encodeNonceAccountData(blockhash [32]byte) string {
	data := make([]byte, nonceBlockhashOffset+32)
	copy(data[nonceBlockhashOffset:], blockhash[:])
	return base64.StdEncoding.EncodeToString(data)
}

func TestNonceBlockhashReader_ReadsStoredBlockhash(t *testing.T) {
	var want [32]byte
	want[0] = 0xAB
	want[31] = 0xCD

	caller := &nonceAccountCaller{data: encodeNonceAccountData(want)}
	p := New(testConfig(), caller, nil)
	r := NewNonceBlockhashReader(p)

	var nonce domain.Mint
	nonce[0] = 1

	got, err := r.ReadNonceBlockhash(context.Background(), nonce)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestNonceBlockhashReader_RejectsShortAccountData(t *testing.T) {
	short := base64.StdEncoding.EncodeToString(make([]byte, 10))
	caller := &nonceAccountCaller{data: short}
	p := New(testConfig(), caller, nil)
	r := NewNonceBlockhashReader(p)

	var nonce domain.Mint
	nonce[0] = 1

	_, err := r.ReadNonceBlockhash(context.Background(), nonce)
	require.Error(t, err)
}
