package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/polymind-ai/polymind/internal/metrics"
	"github.com/polymind-ai/polymind/market"
	"github.com/polymind-ai/polymind/store"
	"github.com/polymind-ai/polymind/workflow"
)

// Manager owns run execution: it creates run IDs, drives the executor on
// background goroutines, and serves run status from the checkpoint store.
type Manager struct {
	executor *workflow.Executor[RunState]
	store    store.Store
	metrics  *metrics.Collector
	logger   *zap.Logger

	maxAnalysts int

	mu sync.Mutex
	wg sync.WaitGroup
	// active guards against concurrent execution of the same run.
	active map[string]struct{}
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	Graph       *workflow.Graph[RunState]
	Store       store.Store
	Metrics     *metrics.Collector
	Logger      *zap.Logger
	MaxAnalysts int
	MaxSteps    int
}

// NewManager creates a run manager over a compiled graph.
func NewManager(cfg ManagerConfig) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxAnalysts <= 0 {
		cfg.MaxAnalysts = 3
	}
	var opts []workflow.ExecutorOption[RunState]
	if cfg.MaxSteps > 0 {
		opts = append(opts, workflow.WithMaxSteps[RunState](cfg.MaxSteps))
	}
	if cfg.Metrics != nil {
		opts = append(opts, workflow.WithStageObserver[RunState](cfg.Metrics.StageExecuted))
	}
	return &Manager{
		executor:    workflow.NewExecutor(cfg.Graph, cfg.Store, logger, opts...),
		store:       cfg.Store,
		metrics:     cfg.Metrics,
		logger:      logger.With(zap.String("component", "manager")),
		maxAnalysts: cfg.MaxAnalysts,
		active:      make(map[string]struct{}),
	}
}

// ErrRunActive is returned when a run is already executing.
var ErrRunActive = errors.New("run is currently executing")

// StartRun validates the market and launches a new run in the background,
// returning its ID immediately.
func (m *Manager) StartRun(ctx context.Context, mkt market.Market, maxAnalysts int) (string, error) {
	if err := mkt.Validate(); err != nil {
		return "", fmt.Errorf("market rejected: %w", err)
	}
	if maxAnalysts <= 0 {
		maxAnalysts = m.maxAnalysts
	}
	runID := uuid.NewString()
	initial := RunState{Market: mkt, MaxAnalysts: maxAnalysts}

	if !m.launch(runID, func(runCtx context.Context) error {
		_, err := m.executor.Run(runCtx, runID, initial)
		return err
	}) {
		return "", ErrRunActive
	}
	if m.metrics != nil {
		m.metrics.RunStarted()
	}
	m.logger.Info("run started",
		zap.String("run_id", runID),
		zap.String("condition_id", mkt.ConditionID),
	)
	return runID, nil
}

// Resume continues a suspended or failed run in the background. It verifies
// the run exists and is resumable before returning.
func (m *Manager) Resume(ctx context.Context, runID string) error {
	cp, err := m.store.Latest(ctx, runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return workflow.ErrRunNotFound
		}
		return err
	}
	if cp.Status == store.StatusCompleted {
		return workflow.ErrRunCompleted
	}

	if !m.launch(runID, func(runCtx context.Context) error {
		_, err := m.executor.Resume(runCtx, runID)
		return err
	}) {
		return ErrRunActive
	}
	if m.metrics != nil {
		m.metrics.RunResumed()
	}
	m.logger.Info("run resumed", zap.String("run_id", runID))
	return nil
}

// Status returns the latest checkpoint for a run.
func (m *Manager) Status(ctx context.Context, runID string) (*store.Checkpoint, error) {
	return m.executor.State(ctx, runID)
}

// Wait blocks until all background runs finish; for shutdown and tests.
func (m *Manager) Wait() { m.wg.Wait() }

// launch runs fn on a background goroutine, reporting false if the run is
// already executing. Runs detach from the caller's context: an API request
// ending must not abort research in flight.
func (m *Manager) launch(runID string, fn func(context.Context) error) bool {
	m.mu.Lock()
	if _, busy := m.active[runID]; busy {
		m.mu.Unlock()
		return false
	}
	m.active[runID] = struct{}{}
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			m.mu.Lock()
			delete(m.active, runID)
			m.mu.Unlock()
		}()

		err := fn(context.Background())
		switch {
		case err == nil:
			if m.metrics != nil {
				m.metrics.RunCompleted()
			}
		case errors.Is(err, workflow.ErrRunCompleted):
			// Resuming an already-finished run is not a failure.
		default:
			if m.metrics != nil {
				m.metrics.RunFailed()
			}
			m.logger.Error("run failed", zap.String("run_id", runID), zap.Error(err))
		}
	}()
	return true
}
