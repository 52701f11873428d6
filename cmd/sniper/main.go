// Command sniper is the agent's daemon entry point: it loads
// configuration, wires every internal subsystem together, and runs
// until an operating-system interrupt triggers a graceful stop.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/kestrel-systems/sniper/infrastructure/config"
	"github.com/kestrel-systems/sniper/infrastructure/controlapi"
	"github.com/kestrel-systems/sniper/infrastructure/framesource"
	"github.com/kestrel-systems/sniper/infrastructure/hex"
	"github.com/kestrel-systems/sniper/infrastructure/logging"
	inframetrics "github.com/kestrel-systems/sniper/infrastructure/metrics"
	"github.com/kestrel-systems/sniper/infrastructure/rpcclient"
	"github.com/kestrel-systems/sniper/internal/domain"
	"github.com/kestrel-systems/sniper/internal/engine"
	"github.com/kestrel-systems/sniper/internal/guibridge"
	agmetrics "github.com/kestrel-systems/sniper/internal/metrics"
	"github.com/kestrel-systems/sniper/internal/noncemgr"
	"github.com/kestrel-systems/sniper/internal/position"
	"github.com/kestrel-systems/sniper/internal/rpcpool"
	"github.com/kestrel-systems/sniper/internal/signer"
	"github.com/kestrel-systems/sniper/internal/sniffer"
	"github.com/kestrel-systems/sniper/internal/txbuilder"
)

type flags struct {
	configPath  string
	mode        string
	verbose     bool
	metricsPort int
}

func main() {
	f := &flags{}

	root := &cobra.Command{
		Use:   "sniper",
		Short: "Runs the sniping agent daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), f)
		},
	}
	root.Flags().StringVar(&f.configPath, "config", "config.toml", "path to the TOML configuration file")
	root.Flags().StringVar(&f.mode, "mode", "simulation", "operating mode: simulation or production")
	root.Flags().BoolVar(&f.verbose, "verbose", false, "enable debug-level logging")
	root.Flags().IntVar(&f.metricsPort, "metrics-port", 0, "override the configured metrics port (0 keeps the config value)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, f *flags) error {
	if f.mode != "simulation" && f.mode != "production" {
		return fmt.Errorf("sniper: invalid --mode %q (expected simulation or production)", f.mode)
	}

	cfg, err := config.Load(f.configPath)
	if err != nil {
		return fmt.Errorf("sniper: load config: %w", err)
	}

	logLevel := cfg.LogLevel
	if f.verbose {
		logLevel = "debug"
	}
	log := logging.New("sniper", logLevel, cfg.LogFormat)

	if f.metricsPort > 0 {
		cfg.MetricsPort = f.metricsPort
	}

	promMetrics := inframetrics.Init(cfg.MetricsNamespace)
	engineMetrics := agmetrics.Global()

	sig, err := buildSigner()
	if err != nil {
		return fmt.Errorf("sniper: build signer: %w", err)
	}
	pubkey := sig.PublicKey()
	log.WithFields(map[string]interface{}{
		"pubkey": hex.EncodeWithPrefix(pubkey[:]),
		"mode":   f.mode,
	}).Info("signer ready")

	caller := rpcclient.NewHTTPCaller(10 * time.Second)
	pool := rpcpool.New(cfg, caller, log)
	defer pool.Stop()

	nonceReader := rpcpool.NewNonceBlockhashReader(pool)
	nonceAccounts := derivedNonceAccounts(cfg)
	nonces := noncemgr.New(nonceAccounts, cfg.NonceLeaseTTL, nonceReader, log)
	defer nonces.Stop()

	simCache := txbuilder.NewSimulationCache(cfg.SimulationCacheSize, cfg.SimulationCacheTTL)
	builder := txbuilder.NewBuilder(nonces, pool, simCache, sig)

	var broadcaster txbuilder.Broadcaster = txbuilder.NewLocalBroadcaster(pool)

	tracker := position.New()
	candidates := sniffer.NewQueue(int(cfg.CandidateQueueCapacity), cfg.DropPolicy)
	bridge := guibridge.New()
	priceSource := engine.NewRpcPoolPriceSource(pool)

	eng := engine.New(log, cfg, promMetrics, tracker, builder, pool, broadcaster, priceSource, candidates, bridge, priceSource)

	analytics := sniffer.NewAnalytics(cfg.EMAAlphaShort, cfg.EMAAlphaLong)
	telemetry := sniffer.NewTelemetryRing(10000, zerolog.New(os.Stdout).With().Timestamp().Logger())
	frameAddr := config.GetEnv("SNIPER_FRAME_SOURCE_ADDR", "127.0.0.1:9999")
	source := framesource.NewTCPSource(frameAddr, 5*time.Second)
	defer source.Close()

	pipeline := sniffer.NewPipeline(source, loadProgramIDs(cfg), analytics, telemetry, candidates, engineMetrics, cfg)

	supervisor := sniffer.NewSupervisor(log)
	supervisor.Register(sniffer.Worker{Name: "sniffer-pipeline", Critical: true, Run: pipeline.Run})
	supervisor.Register(sniffer.Worker{Name: "sniffer-analytics", Critical: false, Run: func(ctx context.Context) error {
		analytics.Run(ctx)
		return nil
	}})
	supervisor.Register(sniffer.Worker{Name: "nonce-reaper", Critical: false, Run: func(ctx context.Context) error {
		nonces.RunReaper(ctx, cfg.NonceLeaseTTL/2)
		return nil
	}})
	supervisor.Register(sniffer.Worker{Name: "rpc-health", Critical: false, Run: func(ctx context.Context) error {
		pool.RunHealthChecks(ctx)
		return nil
	}})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	supervisor.Start(runCtx)

	engineErrCh := make(chan error, 1)
	go func() { engineErrCh <- eng.Run(runCtx) }()

	go forwardBridgeCommands(runCtx, bridge, eng)

	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler: promhttp.Handler(),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithFields(nil).WithError(err).Error("metrics server exited")
		}
	}()

	controlPort := config.GetEnvInt("SNIPER_CONTROL_PORT", 9091)
	controlServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", controlPort),
		Handler: controlapi.New(engineCommandSubmitter(eng)).Handler(),
	}
	go func() {
		if err := controlServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithFields(nil).WithError(err).Error("control server exited")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.WithFields(nil).Info("shutdown signal received")
	case err := <-engineErrCh:
		if err != nil {
			log.WithFields(nil).WithError(err).Error("engine exited")
		}
	}

	cancel()
	supervisor.Stop(cfg.GracefulShutdownTimeout)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.GracefulShutdownTimeout)
	defer shutdownCancel()
	_ = metricsServer.Shutdown(shutdownCtx)
	_ = controlServer.Shutdown(shutdownCtx)

	return nil
}

// engineCommandSubmitter adapts the engine's send-only command channel
// into a try-send submitter for the control API, so a slow or wedged
// engine observably rejects a command rather than hanging the request.
func engineCommandSubmitter(eng *engine.Engine) func(engine.Command) bool {
	return func(cmd engine.Command) bool {
		select {
		case eng.Commands() <- cmd:
			return true
		default:
			return false
		}
	}
}

// forwardBridgeCommands drains GUI-submitted commands and hands them to
// the engine, keeping the bridge's queue and the engine's command
// channel as two independently-bounded stages rather than one shared
// channel the GUI and the engine both hold references to.
func forwardBridgeCommands(ctx context.Context, bridge *guibridge.Bridge, eng *engine.Engine) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-bridge.Commands():
			select {
			case eng.Commands() <- cmd:
			case <-ctx.Done():
				return
			}
		}
	}
}

func buildSigner() (signer.Signer, error) {
	if seed := config.GetEnv("SNIPER_SIGNER_SEED_HEX", ""); seed != "" {
		return signer.NewLocalSignerFromHexSeed(seed)
	}
	return signer.NewLocalSigner()
}

// derivedNonceAccounts turns cfg.NoncePoolSize into a deterministic
// slate of placeholder nonce-account identities pending real account
// provisioning; production deployments set SNIPER_NONCE_ACCOUNTS_HEX
// to the real, comma-separated on-chain nonce account list.
func derivedNonceAccounts(cfg *domain.Config) []domain.Mint {
	if raw := config.GetEnv("SNIPER_NONCE_ACCOUNTS_HEX", ""); raw != "" {
		var accounts []domain.Mint
		for _, s := range config.SplitAndTrimCSV(raw) {
			b, ok := hex.TryDecode(s)
			if !ok || len(b) != len(domain.Mint{}) {
				continue
			}
			var m domain.Mint
			copy(m[:], b)
			accounts = append(accounts, m)
		}
		if len(accounts) > 0 {
			return accounts
		}
	}

	accounts := make([]domain.Mint, cfg.NoncePoolSize)
	for i := range accounts {
		accounts[i][0] = byte(i + 1)
	}
	return accounts
}

func loadProgramIDs(cfg *domain.Config) sniffer.ProgramIDs {
	var ids sniffer.ProgramIDs
	if len(cfg.AllowListProgramIDs) > 0 {
		ids.TokenProgram = cfg.AllowListProgramIDs[0]
	}
	if len(cfg.AllowListProgramIDs) > 1 {
		ids.LiquidityProgram = cfg.AllowListProgramIDs[1]
	}
	return ids
}
