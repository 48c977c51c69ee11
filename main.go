package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tablesage/tablesage/pkg/adapters/datasource"
	_ "github.com/tablesage/tablesage/pkg/adapters/datasource/all"
	"github.com/tablesage/tablesage/pkg/config"
	"github.com/tablesage/tablesage/pkg/handlers"
	"github.com/tablesage/tablesage/pkg/jobs"
	"github.com/tablesage/tablesage/pkg/llm"
	"github.com/tablesage/tablesage/pkg/logging"
	"github.com/tablesage/tablesage/pkg/retry"
	"github.com/tablesage/tablesage/pkg/services"
	"github.com/tablesage/tablesage/pkg/storage"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Server.Env, cfg.Server.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting tablesage",
		zap.String("version", Version),
		zap.String("env", cfg.Server.Env),
		zap.String("addr", cfg.Server.Addr),
		zap.Strings("engines", engineNames()),
	)

	manager := datasource.NewManager(logger)
	sessions := services.NewSessionCache()

	fileSpecs, err := services.LoadConnectionsFile(cfg.ConnectionsFile)
	if err != nil {
		logger.Fatal("failed to load connections file", zap.Error(err))
	}
	registry := services.NewConnectionRegistry(manager, sessions, nil, fileSpecs, logger)

	var gateway *llm.Gateway
	if cfg.LLMEnabled() {
		client, err := llm.NewClient(&llm.Config{
			Provider:    cfg.LLM.Provider,
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.Model,
			APIKey:      cfg.LLM.APIKey,
			Temperature: float64(cfg.LLM.Temperature),
		}, logger)
		if err != nil {
			logger.Fatal("failed to build llm client", zap.Error(err))
		}
		ledger := llm.NewCostLedger(cfg.LLM.MaxCostUSD)
		prices := llm.NewPriceTable(cfg.LLM.PricePerK, cfg.LLM.FallbackPricePerK)
		gateway = llm.NewGateway(client, ledger, prices, logger)
		gateway.SetRetry(&retry.Config{
			MaxAttempts:  cfg.Retry.MaxAttempts,
			InitialWait:  time.Duration(cfg.Retry.InitialWaitMS) * time.Millisecond,
			MaxWait:      time.Duration(cfg.Retry.MaxWaitMS) * time.Millisecond,
			Multiplier:   2.0,
			JitterFactor: 0.1,
		})
	} else {
		logger.Warn("no llm credentials configured, generation will use deterministic fallbacks")
	}

	store, err := storage.NewDocumentStore(cfg.Metadata.OutputDir, logger)
	if err != nil {
		logger.Fatal("failed to open document store", zap.Error(err))
	}

	pipeline := services.NewPipeline(registry, gateway, logger)
	semantic := services.NewSemanticModelService(store, logger)
	jobManager := jobs.NewManager(logger)

	server := handlers.NewServer(registry, pipeline, semantic, store, jobManager, logger)
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.Fatal("server failed", zap.Error(err))
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownSeconds)*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Warn("http shutdown incomplete", zap.Error(err))
	}

	jobManager.Shutdown()
	manager.Close()
	logger.Info("stopped")
}

func engineNames() []string {
	engines := datasource.RegisteredEngines()
	out := make([]string, len(engines))
	for i, e := range engines {
		out[i] = string(e)
	}
	return out
}
