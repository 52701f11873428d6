package rpcpool

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/kestrel-systems/sniper/internal/domain"
)

// nonceBlockhashOffset is the byte offset into a durable nonce
// account's data at which the stored blockhash begins: a 4-byte
// version tag, a 4-byte state tag, then the 32-byte authority
// pubkey precede it.
const nonceBlockhashOffset = 40

// NonceBlockhashReader adapts Pool into noncemgr.BlockhashReader by
// reading the nonce account's data and slicing out the stored
// blockhash, bypassing the account cache since a nonce's blockhash
// must always be current at acquisition time.
type NonceBlockhashReader struct {
	pool *Pool
}

// NewNonceBlockhashReader wraps pool.
func NewNonceBlockhashReader(pool *Pool) *NonceBlockhashReader {
	return &NonceBlockhashReader{pool: pool}
}

// ReadNonceBlockhash fetches noncePubkey's account data directly
// (uncached) and extracts the stored blockhash.
func (r *NonceBlockhashReader) ReadNonceBlockhash(ctx context.Context, noncePubkey domain.Mint) ([32]byte, error) {
	var raw struct {
		Value struct {
			Data []string `json:"data"`
		} `json:"value"`
	}
	if err := r.pool.Call(ctx, "getAccountInfo", noncePubkey, &raw); err != nil {
		return [32]byte{}, err
	}
	if len(raw.Value.Data) == 0 {
		return [32]byte{}, fmt.Errorf("rpcpool: empty nonce account data for %x", noncePubkey)
	}

	data, err := base64.StdEncoding.DecodeString(raw.Value.Data[0])
	if err != nil {
		return [32]byte{}, fmt.Errorf("rpcpool: decode nonce account data: %w", err)
	}
	if len(data) < nonceBlockhashOffset+32 {
		return [32]byte{}, fmt.Errorf("rpcpool: nonce account data too short: %d bytes", len(data))
	}

	var bh [32]byte
	copy(bh[:], data[nonceBlockhashOffset:nonceBlockhashOffset+32])
	return bh, nil
}
