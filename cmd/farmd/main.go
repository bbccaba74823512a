package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"stakefarm/config"
	"stakefarm/core/events"
	"stakefarm/core/types"
	"stakefarm/native/bank"
	"stakefarm/native/farming"
	"stakefarm/observability"
	"stakefarm/observability/logging"
	"stakefarm/rpc"
	"stakefarm/storage"
)

// eventBridge forwards engine events into the structured log and the
// prometheus registry.
type eventBridge struct {
	logger  *slog.Logger
	metrics *observability.FarmMetrics
}

func (b eventBridge) Emit(evt events.Event) {
	raw, ok := evt.(interface{ Event() *types.Event })
	if !ok {
		return
	}
	payload := raw.Event()
	if payload == nil {
		return
	}
	attrs := make([]any, 0, len(payload.Attributes)*2)
	for k, v := range payload.Attributes {
		attrs = append(attrs, slog.String(k, v))
	}
	b.logger.Info(payload.Type, attrs...)

	switch payload.Type {
	case farming.EventTypePeriodAdvanced:
		b.metrics.ObservePeriodAdvance()
	case farming.EventTypeIssuanceRefused:
		b.metrics.ObserveIssuanceRefusal(payload.Attributes["stream"])
	}
}

func main() {
	configFile := flag.String("config", "./farmd.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("FARMD_ENV"))

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := logging.Setup("farmd", env, logging.Options{
		Path:       cfg.LogPath,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})

	schedule, err := cfg.Schedule()
	if err != nil {
		logger.Error("Failed to build schedule", slog.Any("error", err))
		os.Exit(1)
	}
	supplyCap, err := cfg.SupplyCap()
	if err != nil {
		logger.Error("Failed to parse supply cap", slog.Any("error", err))
		os.Exit(1)
	}
	moduleAddr, err := config.ParseAddress(cfg.ModuleAddress)
	if err != nil {
		logger.Error("Invalid module address", slog.Any("error", err))
		os.Exit(1)
	}
	othersAddr, err := config.ParseAddress(cfg.OthersAddress)
	if err != nil {
		logger.Error("Invalid others address", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("Failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	ledger := bank.NewLedger()
	minter := bank.NewMinter(ledger, supplyCap)
	custody := bank.NewModuleCustody(ledger, moduleAddr)

	engine, err := farming.NewEngine(schedule, cfg.StartTick)
	if err != nil {
		logger.Error("Failed to construct engine", slog.Any("error", err))
		os.Exit(1)
	}
	engine.SetCustody(custody)
	engine.SetIssuer(minter)
	engine.SetModuleAddress(moduleAddr)
	engine.SetOthersAddress(othersAddr)
	engine.SetLogger(logger)
	engine.SetEmitter(eventBridge{logger: logger, metrics: observability.Metrics()})

	if restored, err := bank.LoadState(db, ledger, minter); err != nil {
		logger.Error("Failed to restore ledger snapshot", slog.Any("error", err))
		os.Exit(1)
	} else if restored {
		logger.Info("Restored ledger snapshot")
	} else {
		genesis, err := cfg.GenesisBalances()
		if err != nil {
			logger.Error("Invalid genesis balances", slog.Any("error", err))
			os.Exit(1)
		}
		for addr, amount := range genesis {
			if err := ledger.Credit(addr, amount); err != nil {
				logger.Error("Failed to seed genesis balance", slog.Any("error", err))
				os.Exit(1)
			}
		}
		if len(genesis) > 0 {
			logger.Info("Seeded genesis balances", slog.Int("accounts", len(genesis)))
		}
	}
	if restored, err := engine.LoadState(db); err != nil {
		logger.Error("Failed to restore farm snapshot", slog.Any("error", err))
		os.Exit(1)
	} else if restored {
		logger.Info("Restored farm snapshot")
	}
	observability.Metrics().SetTotalStaked(engine.TotalStaked())

	server := rpc.NewServer(engine, logger, cfg.RPCRequestsPerMinute, cfg.RPCBurst)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Starting JSON-RPC server", slog.String("addr", cfg.ListenAddress))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("RPC server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Warn("HTTP shutdown incomplete", slog.Any("error", err))
	}
	if err := engine.SaveState(db); err != nil {
		logger.Error("Failed to persist farm snapshot", slog.Any("error", err))
	}
	if err := bank.SaveState(db, ledger, minter); err != nil {
		logger.Error("Failed to persist ledger snapshot", slog.Any("error", err))
	}
}
