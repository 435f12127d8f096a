package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"proxynexus/internal/shared/config"
	"proxynexus/internal/shared/logger"
	"proxynexus/internal/shared/types"
	"proxynexus/orchestrator"
	"proxynexus/pool/coordinator"
	"proxynexus/pool/extractor"
	"proxynexus/pool/storage"
	"proxynexus/pool/validate"
)

func main() {
	configDir := flag.String("configdir", "configs", "Path to config directory")
	flag.Parse()

	iniPath := filepath.Join(*configDir, "poold.ini")
	sourcesPath := filepath.Join(*configDir, "sources.json")

	cfg := types.NewDefaultConfig()
	if err := config.LoadIni(cfg, iniPath); err != nil {
		// Use standard fmt before logger is initialized.
		fmt.Fprintf(os.Stderr, "Fatal: Failed to load config file '%s': %v\n", iniPath, err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.LogConf); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal: Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	store, err := storage.Open(ctx, cfg.StoreConf.StateDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open store.")
	}
	defer store.Close()

	sources := func() ([]*types.SourceProfile, error) {
		return config.LoadSources(sourcesPath)
	}
	coord := coordinator.New(cfg.CoordinatorConf, sources, extractor.DefaultRegistry(), store)
	pipeline := validate.NewPipeline(cfg.ValidateConf, cfg.ScoringConf, nil)

	executors := orchestrator.BuildExecutors(coord, pipeline, store, cfg.ValidateConf)
	orch := orchestrator.New(cfg.OrchestratorConf, store, executors)
	if err := orch.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start orchestrator.")
	}

	scheduler := orchestrator.NewScheduler(cfg.SchedulerConf, orch)
	if err := scheduler.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start scheduler.")
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info().Msg("Shutdown signal received.")
	scheduler.Stop()
	orch.Stop()
}
