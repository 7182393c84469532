package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"felixpad/config"
	"felixpad/core/events"
	"felixpad/explorer"
	"felixpad/native/amm"
	"felixpad/native/presale"
	"felixpad/native/token"
	"felixpad/observability/logging"
	"felixpad/observability/otel"
	"felixpad/rpc"
	"felixpad/state"
	"felixpad/storage"
)

var genesisAppliedKey = []byte("genesis/applied")

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("FELIXPAD_ENV"))

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup("felixpadd", env, cfg.LogFile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.OtelEnabled {
		shutdown, err := otel.Init(ctx, otel.Config{
			ServiceName: "felixpadd",
			Environment: env,
			Endpoint:    cfg.OtelEndpoint,
			Insecure:    cfg.OtelInsecure,
		})
		if err != nil {
			logger.Error("Failed to initialise telemetry", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Warn("Telemetry shutdown failed", slog.Any("error", err))
			}
		}()
	}

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		logger.Error("Failed to open state database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	manager := state.NewManager(db)
	if err := applyGenesis(manager, cfg); err != nil {
		logger.Error("Failed to apply genesis allocation", slog.Any("error", err))
		os.Exit(1)
	}

	tokens := token.NewLedger(manager)
	pools := amm.NewPoolSet(manager, tokens, config.Address(cfg.PoolVault))

	engine := presale.NewEngine(manager, tokens, pools)
	engine.SetVault(config.Address(cfg.Vault))
	engine.SetFeeCollector(config.Address(cfg.FeeCollector))
	engine.SetFeeOwner(config.Address(cfg.FeeOwner))
	if err := engine.InitFee(cfg.FeeBps); err != nil {
		logger.Error("Failed to seed fee policy", slog.Any("error", err))
		os.Exit(1)
	}
	manager.Finalise()

	emitters := make([]events.Emitter, 0, 1)
	if cfg.ExplorerEnabled {
		index, err := explorer.Open(cfg.ExplorerDSN, logger)
		if err != nil {
			logger.Error("Failed to open explorer index", slog.Any("error", err))
			os.Exit(1)
		}
		defer index.Close()
		emitters = append(emitters, index)
	}
	engine.SetEmitter(events.NewFanout(emitters...))

	server := rpc.NewServer(engine, tokens, manager, logger, cfg.RateLimitPerSecond)
	handler := otelhttp.NewHandler(server.Handler(), "felixpadd.rpc")

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("RPC server listening", slog.String("address", cfg.ListenAddress))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("RPC server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown failed", slog.Any("error", err))
	}
	logger.Info("Shutdown complete")
}

// applyGenesis seeds native balances exactly once per data directory.
func applyGenesis(manager *state.Manager, cfg *config.Config) error {
	var applied bool
	ok, err := manager.KVGet(genesisAppliedKey, &applied)
	if err != nil {
		return err
	}
	if ok && applied {
		return nil
	}
	for addr, amount := range cfg.GenesisAlloc {
		wei, ok := new(big.Int).SetString(strings.TrimSpace(amount), 10)
		if !ok {
			return fmt.Errorf("invalid genesis amount %q", amount)
		}
		if err := manager.Credit(config.Address(addr), wei); err != nil {
			return err
		}
	}
	if err := manager.KVPut(genesisAppliedKey, true); err != nil {
		return err
	}
	manager.Finalise()
	return nil
}
