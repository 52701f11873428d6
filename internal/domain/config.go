package domain

import "time"

// DropPolicy selects how the sniffer's handoff stage behaves when the
// candidate queue is full.
type DropPolicy string

const (
	DropNewest DropPolicy = "drop_newest"
	DropOldest DropPolicy = "drop_oldest"
	Block      DropPolicy = "block"
)

// EndpointTier ranks an RPC endpoint's priority class; lower-latency,
// higher-trust tiers get a scoring bonus.
type EndpointTier string

const (
	TierTPU      EndpointTier = "tpu"
	TierPremium  EndpointTier = "premium"
	TierStandard EndpointTier = "standard"
	TierFallback EndpointTier = "fallback"
)

// TierBonus returns the scoring bonus spec.md §4.2 assigns to each tier.
func (t EndpointTier) TierBonus() float64 {
	switch t {
	case TierTPU:
		return 20
	case TierPremium:
		return 10
	case TierStandard:
		return 0
	case TierFallback:
		return -10
	default:
		return 0
	}
}

// EndpointConfig is one configured RPC endpoint.
type EndpointConfig struct {
	URL      string
	Tier     EndpointTier
	Weight   float64
	MaxRPS   float64
}

// StopLossConfig configures the auto-sell stop-loss rule.
type StopLossConfig struct {
	Enabled          bool
	ThresholdPercent float64
}

// TakeProfitConfig configures the auto-sell take-profit rule.
type TakeProfitConfig struct {
	Enabled          bool
	ThresholdPercent float64
	SellPercent      float64
}

// Config is the plain record loaded once at startup and exposed
// read-only to every component (spec.md §3 "Configuration").
type Config struct {
	EnforceNonce          bool
	NonceLeaseTTL         time.Duration
	NoncePoolSize         uint32
	MaxConcurrentPositions uint32
	EnableMultiToken      bool
	RPCEndpoints          []EndpointConfig
	CandidateQueueCapacity uint32
	DropPolicy            DropPolicy
	BatchSize             uint32
	BatchTimeout          time.Duration
	EMAAlphaShort         float64
	EMAAlphaLong          float64
	HealthCheckInterval   time.Duration
	CooldownDuration      time.Duration
	MaxConcurrentRequests uint64

	CircuitBreakerFailureThreshold        int
	CircuitBreakerHalfOpenSuccessThreshold int

	StopLoss   StopLossConfig
	TakeProfit TakeProfitConfig

	MinBlockhashResponses int
	MaxSlotDiff           uint64

	SimulationEnabled  bool
	SimulationCacheTTL time.Duration
	SimulationCacheSize int

	HighCongestionThresholdMicros uint64
	LowCongestionThresholdMicros  uint64
	SendMaxRetries                int

	GracefulShutdownTimeout time.Duration
	MaxRetriesHigh          int

	LogLevel  string
	LogFormat string

	MetricsNamespace string
	MetricsPort      int

	BaseFeeMicroLamports uint64
	ComputeUnitLimit     uint32
	AllowListProgramIDs  []Mint
	UnitScale            float64
}

// Default returns the documented defaults for every tunable (spec.md §3).
func Default() *Config {
	return &Config{
		EnforceNonce:           true,
		NonceLeaseTTL:          30 * time.Second,
		NoncePoolSize:          10,
		MaxConcurrentPositions: 1,
		EnableMultiToken:       false,
		CandidateQueueCapacity: 1024,
		DropPolicy:             DropNewest,
		BatchSize:              16,
		BatchTimeout:           50 * time.Millisecond,
		EMAAlphaShort:          0.2,
		EMAAlphaLong:           0.05,
		HealthCheckInterval:    5 * time.Second,
		CooldownDuration:       30 * time.Second,
		MaxConcurrentRequests:  1000,

		CircuitBreakerFailureThreshold:         5,
		CircuitBreakerHalfOpenSuccessThreshold:  3,

		StopLoss:   StopLossConfig{Enabled: true, ThresholdPercent: -10},
		TakeProfit: TakeProfitConfig{Enabled: true, ThresholdPercent: 50, SellPercent: 50},

		MinBlockhashResponses: 2,
		MaxSlotDiff:           10,

		SimulationEnabled:   true,
		SimulationCacheTTL:  30 * time.Second,
		SimulationCacheSize: 1000,

		HighCongestionThresholdMicros: 1000,
		LowCongestionThresholdMicros:  100,
		SendMaxRetries:                3,

		GracefulShutdownTimeout: 5 * time.Second,
		MaxRetriesHigh:          3,

		LogLevel:  "info",
		LogFormat: "json",

		MetricsNamespace: "sniper",
		MetricsPort:      9090,

		BaseFeeMicroLamports: 5000,
		ComputeUnitLimit:     200000,
		UnitScale:            1.0,
	}
}
