package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/polymind-ai/polymind/api"
	"github.com/polymind-ai/polymind/config"
	"github.com/polymind-ai/polymind/internal/metrics"
	"github.com/polymind-ai/polymind/internal/server"
	"github.com/polymind-ai/polymind/llm"
	"github.com/polymind-ai/polymind/market"
	"github.com/polymind-ai/polymind/pipeline"
	"github.com/polymind-ai/polymind/research"
	"github.com/polymind-ai/polymind/search"
	"github.com/polymind-ai/polymind/store"
	"github.com/polymind-ai/polymind/venue"
	"github.com/polymind-ai/polymind/workflow"
)

// deps is everything a run needs, assembled from config.
type deps struct {
	store     store.Store
	provider  market.Provider
	graph     *workflow.Graph[pipeline.RunState]
	collector *metrics.Collector
	cfg       *config.Config
	logger    *zap.Logger
}

func buildDeps(cfg *config.Config, logger *zap.Logger) (*deps, error) {
	st, err := store.New(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint store: %w", err)
	}

	provider := market.NewGammaClient(cfg.Market.BaseURL, cfg.Market.Scan, logger)
	completions := llm.NewOpenAIClient(cfg.LLM, logger)
	searcher := search.NewTavilyClient(cfg.Search, logger)
	clob := venue.NewCLOBClient(cfg.Venue.CLOB, logger)

	researcher := research.NewResearcher(completions, searcher, cfg.Research, logger)
	collector := metrics.NewCollector("polymind")

	graph, err := pipeline.BuildGraph(pipeline.Options{
		LLM:              completions,
		Venue:            clob,
		Balance:          clob,
		Researcher:       researcher,
		Sizing:           cfg.Trade,
		MaxTurns:         cfg.Research.MaxTurns,
		MaxRegenerations: cfg.Pipeline.MaxRegenerations,
		Metrics:          collector,
		Logger:           logger,
	})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("build run graph: %w", err)
	}

	return &deps{
		store:     st,
		provider:  provider,
		graph:     graph,
		collector: collector,
		cfg:       cfg,
		logger:    logger,
	}, nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "start the run-control HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger, err := initLogger(cfg.Log)
			if err != nil {
				return err
			}
			defer logger.Sync()
			return runServe(cfg, logger)
		},
	}
}

func runServe(cfg *config.Config, logger *zap.Logger) error {
	d, err := buildDeps(cfg, logger)
	if err != nil {
		return err
	}
	defer d.store.Close()

	mgr := pipeline.NewManager(pipeline.ManagerConfig{
		Graph:       d.graph,
		Store:       d.store,
		Metrics:     d.collector,
		Logger:      logger,
		MaxAnalysts: cfg.Pipeline.MaxAnalysts,
		MaxSteps:    cfg.Pipeline.MaxSteps,
	})

	handler := api.NewHandler(mgr, d.provider, d.store, logger)
	apiSrv := server.NewManager(handler.Router(), server.Config{
		Addr:            cfg.Server.Addr,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, logger)
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", d.collector.Handler())
	metricsSrv := server.NewManager(metricsMux, server.Config{
		Addr:            cfg.Server.MetricsAddr,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, logger)

	if err := apiSrv.Start(); err != nil {
		return err
	}
	if err := metricsSrv.Start(); err != nil {
		apiSrv.Shutdown(context.Background())
		return err
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-apiSrv.Errors():
		logger.Error("API server exited", zap.Error(err))
	case err := <-metricsSrv.Errors():
		logger.Error("metrics server exited", zap.Error(err))
	}

	ctx := context.Background()
	if err := apiSrv.Shutdown(ctx); err != nil {
		logger.Error("API server shutdown failed", zap.Error(err))
	}
	if err := metricsSrv.Shutdown(ctx); err != nil {
		logger.Error("metrics server shutdown failed", zap.Error(err))
	}

	// In-flight runs checkpoint as they go; wait for them rather than
	// abandoning a run between a stage and its checkpoint.
	logger.Info("waiting for in-flight runs")
	mgr.Wait()
	return nil
}
