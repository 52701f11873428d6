// Package config provides unified configuration loading: a TOML file
// read with github.com/BurntSushi/toml, then overridden field-by-field
// by environment variables, plus the small env/CSV/duration parsing
// helpers every entry point needs.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	agerhex "github.com/kestrel-systems/sniper/infrastructure/hex"
	"github.com/kestrel-systems/sniper/internal/domain"
)

// =============================================================================
// Environment Helpers
// =============================================================================

// GetEnv retrieves an environment variable with optional default.
func GetEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvBool retrieves a boolean environment variable with optional default.
// Accepts: "true", "1", "yes", "y" (case-insensitive) as true.
func GetEnvBool(key string, defaultValue bool) bool {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultValue
	}
	lower := strings.ToLower(val)
	return lower == "true" || lower == "1" || lower == "yes" || lower == "y"
}

// GetEnvInt retrieves an integer environment variable with optional default.
func GetEnvInt(key string, defaultValue int) int {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// GetEnvFloat retrieves a float64 environment variable with optional default.
func GetEnvFloat(key string, defaultValue float64) float64 {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// ParseEnvDuration parses a duration from the environment variable with the given key.
func ParseEnvDuration(key string) (time.Duration, bool) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0, false
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

// SplitAndTrimCSV splits a CSV string and trims each part. Empty values
// are filtered out.
func SplitAndTrimCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// =============================================================================
// File document
// =============================================================================

// endpointDoc mirrors one [[rpc_endpoints]] TOML table.
type endpointDoc struct {
	URL    string  `toml:"url"`
	Tier   string  `toml:"tier"`
	Weight float64 `toml:"weight"`
	MaxRPS float64 `toml:"max_rps"`
}

// fileDoc is the on-disk shape of the TOML config file. Every field is
// optional; anything left unset keeps domain.Default()'s value.
type fileDoc struct {
	EnforceNonce           *bool          `toml:"enforce_nonce"`
	NonceLeaseTTLSeconds   *int           `toml:"nonce_lease_ttl_seconds"`
	NoncePoolSize          *int           `toml:"nonce_pool_size"`
	MaxConcurrentPositions *int           `toml:"max_concurrent_positions"`
	EnableMultiToken       *bool          `toml:"enable_multi_token"`
	RPCEndpoints           []endpointDoc  `toml:"rpc_endpoints"`
	CandidateQueueCapacity *int           `toml:"candidate_queue_capacity"`
	DropPolicy             *string        `toml:"drop_policy"`
	BatchSize              *int           `toml:"batch_size"`
	BatchTimeoutMillis     *int           `toml:"batch_timeout_ms"`
	EMAAlphaShort          *float64       `toml:"ema_alpha_short"`
	EMAAlphaLong           *float64       `toml:"ema_alpha_long"`
	HealthCheckIntervalMs  *int           `toml:"health_check_interval_ms"`
	CooldownMs             *int           `toml:"cooldown_ms"`
	MaxConcurrentRequests  *int           `toml:"max_concurrent_requests"`

	CircuitBreakerFailureThreshold         *int `toml:"circuit_breaker_failure_threshold"`
	CircuitBreakerHalfOpenSuccessThreshold *int `toml:"circuit_breaker_half_open_success_threshold"`

	StopLossEnabled           *bool    `toml:"stop_loss_enabled"`
	StopLossThresholdPercent  *float64 `toml:"stop_loss_threshold_percent"`
	TakeProfitEnabled         *bool    `toml:"take_profit_enabled"`
	TakeProfitThresholdPercent *float64 `toml:"take_profit_threshold_percent"`
	TakeProfitSellPercent     *float64 `toml:"take_profit_sell_percent"`

	MinBlockhashResponses *int    `toml:"min_blockhash_responses"`
	MaxSlotDiff           *int    `toml:"max_slot_diff"`

	SimulationEnabled   *bool `toml:"simulation_enabled"`
	SimulationCacheSize *int  `toml:"simulation_cache_size"`

	LogLevel         *string `toml:"log_level"`
	LogFormat        *string `toml:"log_format"`
	MetricsNamespace *string `toml:"metrics_namespace"`
	MetricsPort      *int    `toml:"metrics_port"`

	BaseFeeMicroLamports *int      `toml:"base_fee_micro_lamports"`
	ComputeUnitLimit     *int      `toml:"compute_unit_limit"`
	AllowListProgramIDs  []string  `toml:"allow_list_program_ids"`
	UnitScale            *float64  `toml:"unit_scale"`
}

// Load reads path (if non-empty and present) as TOML over domain.Default(),
// then applies environment-variable overrides, and returns the result.
// A missing path is not an error: env vars and defaults still apply.
func Load(path string) (*domain.Config, error) {
	cfg := domain.Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			var doc fileDoc
			if _, err := toml.DecodeFile(path, &doc); err != nil {
				return nil, fmt.Errorf("config: decode %s: %w", path, err)
			}
			applyFileDoc(cfg, &doc)
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: stat %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyFileDoc(cfg *domain.Config, doc *fileDoc) {
	if doc.EnforceNonce != nil {
		cfg.EnforceNonce = *doc.EnforceNonce
	}
	if doc.NonceLeaseTTLSeconds != nil {
		cfg.NonceLeaseTTL = time.Duration(*doc.NonceLeaseTTLSeconds) * time.Second
	}
	if doc.NoncePoolSize != nil {
		cfg.NoncePoolSize = uint32(*doc.NoncePoolSize)
	}
	if doc.MaxConcurrentPositions != nil {
		cfg.MaxConcurrentPositions = uint32(*doc.MaxConcurrentPositions)
	}
	if doc.EnableMultiToken != nil {
		cfg.EnableMultiToken = *doc.EnableMultiToken
	}
	if len(doc.RPCEndpoints) > 0 {
		cfg.RPCEndpoints = make([]domain.EndpointConfig, 0, len(doc.RPCEndpoints))
		for _, e := range doc.RPCEndpoints {
			cfg.RPCEndpoints = append(cfg.RPCEndpoints, domain.EndpointConfig{
				URL:    e.URL,
				Tier:   domain.EndpointTier(strings.ToLower(e.Tier)),
				Weight: e.Weight,
				MaxRPS: e.MaxRPS,
			})
		}
	}
	if doc.CandidateQueueCapacity != nil {
		cfg.CandidateQueueCapacity = uint32(*doc.CandidateQueueCapacity)
	}
	if doc.DropPolicy != nil {
		cfg.DropPolicy = domain.DropPolicy(*doc.DropPolicy)
	}
	if doc.BatchSize != nil {
		cfg.BatchSize = uint32(*doc.BatchSize)
	}
	if doc.BatchTimeoutMillis != nil {
		cfg.BatchTimeout = time.Duration(*doc.BatchTimeoutMillis) * time.Millisecond
	}
	if doc.EMAAlphaShort != nil {
		cfg.EMAAlphaShort = *doc.EMAAlphaShort
	}
	if doc.EMAAlphaLong != nil {
		cfg.EMAAlphaLong = *doc.EMAAlphaLong
	}
	if doc.HealthCheckIntervalMs != nil {
		cfg.HealthCheckInterval = time.Duration(*doc.HealthCheckIntervalMs) * time.Millisecond
	}
	if doc.CooldownMs != nil {
		cfg.CooldownDuration = time.Duration(*doc.CooldownMs) * time.Millisecond
	}
	if doc.MaxConcurrentRequests != nil {
		cfg.MaxConcurrentRequests = uint64(*doc.MaxConcurrentRequests)
	}
	if doc.CircuitBreakerFailureThreshold != nil {
		cfg.CircuitBreakerFailureThreshold = *doc.CircuitBreakerFailureThreshold
	}
	if doc.CircuitBreakerHalfOpenSuccessThreshold != nil {
		cfg.CircuitBreakerHalfOpenSuccessThreshold = *doc.CircuitBreakerHalfOpenSuccessThreshold
	}
	if doc.StopLossEnabled != nil {
		cfg.StopLoss.Enabled = *doc.StopLossEnabled
	}
	if doc.StopLossThresholdPercent != nil {
		cfg.StopLoss.ThresholdPercent = *doc.StopLossThresholdPercent
	}
	if doc.TakeProfitEnabled != nil {
		cfg.TakeProfit.Enabled = *doc.TakeProfitEnabled
	}
	if doc.TakeProfitThresholdPercent != nil {
		cfg.TakeProfit.ThresholdPercent = *doc.TakeProfitThresholdPercent
	}
	if doc.TakeProfitSellPercent != nil {
		cfg.TakeProfit.SellPercent = *doc.TakeProfitSellPercent
	}
	if doc.MinBlockhashResponses != nil {
		cfg.MinBlockhashResponses = *doc.MinBlockhashResponses
	}
	if doc.MaxSlotDiff != nil {
		cfg.MaxSlotDiff = uint64(*doc.MaxSlotDiff)
	}
	if doc.SimulationEnabled != nil {
		cfg.SimulationEnabled = *doc.SimulationEnabled
	}
	if doc.SimulationCacheSize != nil {
		cfg.SimulationCacheSize = *doc.SimulationCacheSize
	}
	if doc.LogLevel != nil {
		cfg.LogLevel = *doc.LogLevel
	}
	if doc.LogFormat != nil {
		cfg.LogFormat = *doc.LogFormat
	}
	if doc.MetricsNamespace != nil {
		cfg.MetricsNamespace = *doc.MetricsNamespace
	}
	if doc.MetricsPort != nil {
		cfg.MetricsPort = *doc.MetricsPort
	}
	if doc.BaseFeeMicroLamports != nil {
		cfg.BaseFeeMicroLamports = uint64(*doc.BaseFeeMicroLamports)
	}
	if doc.ComputeUnitLimit != nil {
		cfg.ComputeUnitLimit = uint32(*doc.ComputeUnitLimit)
	}
	if len(doc.AllowListProgramIDs) > 0 {
		cfg.AllowListProgramIDs = decodeMintList(doc.AllowListProgramIDs)
	}
	if doc.UnitScale != nil {
		cfg.UnitScale = *doc.UnitScale
	}
}

// decodeMintList parses hex-encoded 32-byte program IDs, skipping any
// entry that isn't valid hex or isn't exactly 32 bytes.
func decodeMintList(raw []string) []domain.Mint {
	out := make([]domain.Mint, 0, len(raw))
	for _, s := range raw {
		b, ok := agerhex.TryDecode(s)
		if !ok || len(b) != len(domain.Mint{}) {
			continue
		}
		var m domain.Mint
		copy(m[:], b)
		out = append(out, m)
	}
	return out
}

// applyEnvOverrides mutates cfg in place with SNIPER_-prefixed env vars.
// Scalar fields are overridable this way, plus AllowListProgramIDs as a
// comma-separated list in SNIPER_ALLOW_LIST_PROGRAM_IDS. RPCEndpoints
// is file-only: it has no env override.
func applyEnvOverrides(cfg *domain.Config) {
	cfg.EnforceNonce = GetEnvBool("SNIPER_ENFORCE_NONCE", cfg.EnforceNonce)
	if d, ok := ParseEnvDuration("SNIPER_NONCE_LEASE_TTL"); ok {
		cfg.NonceLeaseTTL = d
	}
	cfg.NoncePoolSize = uint32(GetEnvInt("SNIPER_NONCE_POOL_SIZE", int(cfg.NoncePoolSize)))
	cfg.MaxConcurrentPositions = uint32(GetEnvInt("SNIPER_MAX_CONCURRENT_POSITIONS", int(cfg.MaxConcurrentPositions)))
	cfg.EnableMultiToken = GetEnvBool("SNIPER_ENABLE_MULTI_TOKEN", cfg.EnableMultiToken)
	cfg.CandidateQueueCapacity = uint32(GetEnvInt("SNIPER_CANDIDATE_QUEUE_CAPACITY", int(cfg.CandidateQueueCapacity)))
	if v := GetEnv("SNIPER_DROP_POLICY", ""); v != "" {
		cfg.DropPolicy = domain.DropPolicy(v)
	}
	cfg.BatchSize = uint32(GetEnvInt("SNIPER_BATCH_SIZE", int(cfg.BatchSize)))
	if d, ok := ParseEnvDuration("SNIPER_BATCH_TIMEOUT"); ok {
		cfg.BatchTimeout = d
	}
	cfg.EMAAlphaShort = GetEnvFloat("SNIPER_EMA_ALPHA_SHORT", cfg.EMAAlphaShort)
	cfg.EMAAlphaLong = GetEnvFloat("SNIPER_EMA_ALPHA_LONG", cfg.EMAAlphaLong)
	if d, ok := ParseEnvDuration("SNIPER_HEALTH_CHECK_INTERVAL"); ok {
		cfg.HealthCheckInterval = d
	}
	if d, ok := ParseEnvDuration("SNIPER_COOLDOWN_DURATION"); ok {
		cfg.CooldownDuration = d
	}
	cfg.MaxConcurrentRequests = uint64(GetEnvInt("SNIPER_MAX_CONCURRENT_REQUESTS", int(cfg.MaxConcurrentRequests)))
	cfg.CircuitBreakerFailureThreshold = GetEnvInt("SNIPER_CB_FAILURE_THRESHOLD", cfg.CircuitBreakerFailureThreshold)
	cfg.CircuitBreakerHalfOpenSuccessThreshold = GetEnvInt("SNIPER_CB_HALF_OPEN_SUCCESS_THRESHOLD", cfg.CircuitBreakerHalfOpenSuccessThreshold)
	cfg.StopLoss.Enabled = GetEnvBool("SNIPER_STOP_LOSS_ENABLED", cfg.StopLoss.Enabled)
	cfg.StopLoss.ThresholdPercent = GetEnvFloat("SNIPER_STOP_LOSS_THRESHOLD_PERCENT", cfg.StopLoss.ThresholdPercent)
	cfg.TakeProfit.Enabled = GetEnvBool("SNIPER_TAKE_PROFIT_ENABLED", cfg.TakeProfit.Enabled)
	cfg.TakeProfit.ThresholdPercent = GetEnvFloat("SNIPER_TAKE_PROFIT_THRESHOLD_PERCENT", cfg.TakeProfit.ThresholdPercent)
	cfg.TakeProfit.SellPercent = GetEnvFloat("SNIPER_TAKE_PROFIT_SELL_PERCENT", cfg.TakeProfit.SellPercent)
	cfg.LogLevel = GetEnv("SNIPER_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = GetEnv("SNIPER_LOG_FORMAT", cfg.LogFormat)
	cfg.MetricsNamespace = GetEnv("SNIPER_METRICS_NAMESPACE", cfg.MetricsNamespace)
	cfg.MetricsPort = GetEnvInt("SNIPER_METRICS_PORT", cfg.MetricsPort)
	cfg.BaseFeeMicroLamports = uint64(GetEnvInt("SNIPER_BASE_FEE_MICRO_LAMPORTS", int(cfg.BaseFeeMicroLamports)))
	cfg.ComputeUnitLimit = uint32(GetEnvInt("SNIPER_COMPUTE_UNIT_LIMIT", int(cfg.ComputeUnitLimit)))
	if v := GetEnv("SNIPER_ALLOW_LIST_PROGRAM_IDS", ""); v != "" {
		cfg.AllowListProgramIDs = decodeMintList(SplitAndTrimCSV(v))
	}
	cfg.UnitScale = GetEnvFloat("SNIPER_UNIT_SCALE", cfg.UnitScale)
}
