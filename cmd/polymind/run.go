package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/polymind-ai/polymind/market"
	"github.com/polymind-ai/polymind/pipeline"
	"github.com/polymind-ai/polymind/workflow"
)

func newRunCmd() *cobra.Command {
	var (
		flagMaxAnalysts int
		flagResume      string
		flagScanOnly    bool
	)

	cmd := &cobra.Command{
		Use:   "run [condition-id]",
		Short: "execute one pipeline run to completion",
		Long: `Executes one research-then-trade run in the foreground and prints the
final state as JSON. With no condition ID the market scanner picks the
top candidate. --resume continues a previously checkpointed run instead.`,
		Args: cobra.MaximumNArgs(1),
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

			d, err := buildDeps(cfg, logger)
			if err != nil {
				return err
			}
			defer d.store.Close()
			ctx := cmd.Context()

			if flagScanOnly {
				return printScan(ctx, d)
			}

			executor := workflow.NewExecutor(d.graph, d.store, logger,
				workflow.WithMaxSteps[pipeline.RunState](cfg.Pipeline.MaxSteps))

			if flagResume != "" {
				final, err := executor.Resume(ctx, flagResume)
				if err != nil && !errors.Is(err, workflow.ErrRunCompleted) {
					return reportRunFailure(flagResume, final, err)
				}
				return printFinal(flagResume, final)
			}

			mkt, err := pickMarket(ctx, d, args)
			if err != nil {
				return err
			}
			maxAnalysts := flagMaxAnalysts
			if maxAnalysts <= 0 {
				maxAnalysts = cfg.Pipeline.MaxAnalysts
			}

			runID := uuid.NewString()
			logger.Info("starting foreground run",
				zap.String("run_id", runID),
				zap.String("question", mkt.Question),
			)
			final, err := executor.Run(ctx, runID, pipeline.RunState{
				Market:      *mkt,
				MaxAnalysts: maxAnalysts,
			})
			if err != nil {
				return reportRunFailure(runID, final, err)
			}
			return printFinal(runID, final)
		},
	}

	cmd.Flags().IntVar(&flagMaxAnalysts, "max-analysts", 0, "analyst count (default from config)")
	cmd.Flags().StringVar(&flagResume, "resume", "", "resume the given run ID")
	cmd.Flags().BoolVar(&flagScanOnly, "scan", false, "list candidate markets and exit")
	return cmd
}

func pickMarket(ctx context.Context, d *deps, args []string) (*market.Market, error) {
	if len(args) == 1 {
		m, err := d.provider.Get(ctx, args[0])
		if err != nil {
			return nil, fmt.Errorf("fetch market %s: %w", args[0], err)
		}
		return m, nil
	}
	candidates, err := d.provider.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("market scan: %w", err)
	}
	if len(candidates) == 0 {
		return nil, errors.New("scanner found no tradable markets")
	}
	return &candidates[0], nil
}

func printScan(ctx context.Context, d *deps) error {
	candidates, err := d.provider.Scan(ctx)
	if err != nil {
		return fmt.Errorf("market scan: %w", err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(candidates)
}

func printFinal(runID string, final pipeline.RunState) error {
	out := struct {
		RunID string            `json:"run_id"`
		State pipeline.RunState `json:"state"`
	}{RunID: runID, State: final}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func reportRunFailure(runID string, final pipeline.RunState, err error) error {
	_ = printFinal(runID, final)
	return fmt.Errorf("run %s failed: %w", runID, err)
}
