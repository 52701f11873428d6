package engine

import (
	"context"
	"math"

	"github.com/kestrel-systems/sniper/internal/domain"
	"github.com/kestrel-systems/sniper/internal/rpcpool"
)

// RpcPoolPriceSource adapts rpcpool.Pool's cached account lookup into a
// PriceSource, decoding the pool account's price as a little-endian
// float64 at the start of the account data, matching the layout the
// sniffer's extraction stage already assumes for a price hint.
type RpcPoolPriceSource struct {
	pool *rpcpool.Pool
}

// NewRpcPoolPriceSource wraps pool.
func NewRpcPoolPriceSource(pool *rpcpool.Pool) *RpcPoolPriceSource {
	return &RpcPoolPriceSource{pool: pool}
}

// CurrentPrice fetches and decodes the cached account for mint.
func (s *RpcPoolPriceSource) CurrentPrice(ctx context.Context, mint domain.Mint) (float64, error) {
	entry, err := s.pool.GetAccountCached(ctx, mint)
	if err != nil {
		return 0, err
	}
	if len(entry.Data) < 8 {
		return 0, domain.ErrInvalidPriceHint
	}

	var bits uint64
	for i := 0; i < 8; i++ {
		bits |= uint64(entry.Data[i]) << (8 * i)
	}
	price := math.Float64frombits(bits)
	if math.IsNaN(price) || math.IsInf(price, 0) || price < 0 {
		return 0, domain.ErrInvalidPriceHint
	}
	return price, nil
}

// HealthyEndpointCount satisfies EndpointCounter by delegating to the
// pool's own health tracking.
func (s *RpcPoolPriceSource) HealthyEndpointCount() int {
	return s.pool.Stats().HealthyEndpoints
}

var _ PriceSource = (*RpcPoolPriceSource)(nil)
var _ EndpointCounter = (*RpcPoolPriceSource)(nil)
