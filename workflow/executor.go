package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/polymind-ai/polymind/store"
)

const defaultMaxSteps = 100

// Executor drives a compiled graph for one run at a time. After every stage
// it persists the updated state to the checkpoint store keyed by run
// identifier; writes within one run are strictly serialized. A nil store
// disables persistence, which is how fan-out children run (resume
// granularity is the parent stage, not the child's internal progress).
type Executor[S any] struct {
	graph    *Graph[S]
	store    store.Store
	logger   *zap.Logger
	maxSteps int
	observer StageObserver
}

// StageObserver is called after every stage execution, successful or not.
type StageObserver func(stage string, d time.Duration, err error)

// ExecutorOption configures an Executor.
type ExecutorOption[S any] func(*Executor[S])

// WithMaxSteps sets the per-run stage execution ceiling. The ceiling is what
// guarantees termination for graphs with router back-edges.
func WithMaxSteps[S any](n int) ExecutorOption[S] {
	return func(e *Executor[S]) {
		if n > 0 {
			e.maxSteps = n
		}
	}
}

// WithStageObserver registers a per-stage observer, typically a metrics
// recorder.
func WithStageObserver[S any](fn StageObserver) ExecutorOption[S] {
	return func(e *Executor[S]) { e.observer = fn }
}

// NewExecutor creates an executor for a compiled graph.
func NewExecutor[S any](g *Graph[S], st store.Store, logger *zap.Logger, opts ...ExecutorOption[S]) *Executor[S] {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Executor[S]{
		graph:    g,
		store:    st,
		logger:   logger.With(zap.String("component", "executor"), zap.String("graph", g.Name())),
		maxSteps: defaultMaxSteps,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes a fresh run from the graph's entry stage.
func (e *Executor[S]) Run(ctx context.Context, runID string, initial S) (S, error) {
	if !e.graph.compiled {
		var zero S
		return zero, &Error{Code: CodeConfig, Message: fmt.Sprintf("graph %s: not compiled", e.graph.name)}
	}
	e.logger.Info("run started", zap.String("run_id", runID), zap.String("entry", e.graph.entry))
	return e.loop(ctx, runID, initial, e.graph.entry)
}

// Resume continues a run from its latest checkpoint. The stage recorded as
// completed is not re-executed; execution picks up at the resolved next
// stage (or re-executes the failed stage for a failed run).
func (e *Executor[S]) Resume(ctx context.Context, runID string) (S, error) {
	var zero S
	if e.store == nil {
		return zero, fmt.Errorf("resume requires a checkpoint store")
	}
	cp, err := e.store.Latest(ctx, runID)
	if err != nil {
		if err == store.ErrNotFound {
			return zero, ErrRunNotFound
		}
		return zero, err
	}

	var state S
	if err := json.Unmarshal(cp.State, &state); err != nil {
		return zero, fmt.Errorf("failed to decode checkpointed state: %w", err)
	}

	switch cp.Status {
	case store.StatusCompleted:
		return state, ErrRunCompleted
	case store.StatusFailed:
		e.logger.Info("resuming failed run",
			zap.String("run_id", runID),
			zap.String("failed_stage", cp.FailedStage),
		)
		return e.loop(ctx, runID, state, cp.FailedStage)
	default:
		if cp.Next == "" {
			return state, ErrRunCompleted
		}
		e.logger.Info("resuming run",
			zap.String("run_id", runID),
			zap.String("next", cp.Next),
			zap.Int("version", cp.Version),
		)
		return e.loop(ctx, runID, state, cp.Next)
	}
}

// State returns the latest checkpoint for a run without executing anything.
func (e *Executor[S]) State(ctx context.Context, runID string) (*store.Checkpoint, error) {
	if e.store == nil {
		return nil, fmt.Errorf("no checkpoint store configured")
	}
	cp, err := e.store.Latest(ctx, runID)
	if err == store.ErrNotFound {
		return nil, ErrRunNotFound
	}
	return cp, err
}

// loop runs stages starting at current until a terminal stage or failure.
func (e *Executor[S]) loop(ctx context.Context, runID string, state S, current string) (S, error) {
	prev := ""
	for steps := 0; current != ""; steps++ {
		if steps >= e.maxSteps {
			err := &Error{Code: CodeExhausted, Stage: current,
				Message: fmt.Sprintf("run exceeded step ceiling (%d)", e.maxSteps)}
			e.saveFailed(ctx, runID, prev, current, state, err)
			return state, err
		}
		if err := ctx.Err(); err != nil {
			// Aborted between stages: the last checkpoint stands, nothing
			// is re-applied until an explicit resume.
			return state, err
		}

		// On failure executeStage returns the stage's best-known state so
		// markers written before the failing call (submission attempts)
		// survive into the failure checkpoint.
		stageStart := time.Now()
		next, newState, err := e.executeStage(ctx, runID, prev, current, state)
		if e.observer != nil {
			e.observer(current, time.Since(stageStart), err)
		}
		if err != nil {
			e.saveFailed(ctx, runID, prev, current, newState, err)
			return newState, err
		}
		state = newState

		status := store.StatusRunning
		if next == "" {
			status = store.StatusCompleted
		}
		if err := e.save(ctx, runID, current, next, status, state); err != nil {
			return state, fmt.Errorf("checkpoint after stage %s: %w", current, err)
		}

		prev = current
		current = next
	}
	e.logger.Info("run completed", zap.String("run_id", runID))
	return state, nil
}

// executeStage runs one stage or fan-out and resolves its successor.
func (e *Executor[S]) executeStage(ctx context.Context, runID, prev, current string, state S) (string, S, error) {
	started := time.Now()

	if f, ok := e.graph.fanouts[current]; ok {
		newState, n, err := f.run(ctx, e, runID, state)
		if err != nil {
			return "", state, &Error{Code: CodeStage, Stage: current, Message: "fan-out failed", Cause: err}
		}
		next := f.next
		if n == 0 {
			next = f.empty
		}
		e.logger.Debug("fan-out completed",
			zap.String("run_id", runID),
			zap.String("stage", current),
			zap.Int("children", n),
			zap.Duration("duration", time.Since(started)),
		)
		return next, newState, nil
	}

	fn, ok := e.graph.stages[current]
	if !ok {
		return "", state, &Error{Code: CodeConfig, Stage: current, Message: "unknown stage"}
	}

	stageCtx := e.withCheckpointer(ctx, runID, prev, current)
	newState, err := fn(stageCtx, state)
	if err != nil {
		return "", newState, &Error{Code: CodeStage, Stage: current, Message: "stage failed", Cause: err}
	}

	e.logger.Debug("stage completed",
		zap.String("run_id", runID),
		zap.String("stage", current),
		zap.Duration("duration", time.Since(started)),
	)

	if r, ok := e.graph.routers[current]; ok {
		target, err := r.decide(ctx, newState)
		if err != nil {
			return "", newState, &Error{Code: CodeStage, Stage: current, Message: "router failed", Cause: err}
		}
		if !r.allows(target) {
			return "", newState, &Error{Code: CodeConfig, Stage: current,
				Message: fmt.Sprintf("router returned undeclared stage %q (declared: %v)", target, r.targets)}
		}
		return target, newState, nil
	}
	return e.graph.edges[current], newState, nil
}

func (e *Executor[S]) save(ctx context.Context, runID, stage, next string, status store.Status, state S) error {
	if e.store == nil {
		return nil
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to serialize state: %w", err)
	}
	return e.store.Save(ctx, &store.Checkpoint{
		RunID:     runID,
		Stage:     stage,
		Next:      next,
		Status:    status,
		State:     raw,
		CreatedAt: time.Now(),
	})
}

// saveFailed records a terminal failed checkpoint with the state as of the
// failure, the failing stage name, and the error cause.
func (e *Executor[S]) saveFailed(ctx context.Context, runID, lastCompleted, failedStage string, state S, cause error) {
	e.logger.Error("run failed",
		zap.String("run_id", runID),
		zap.String("failed_stage", failedStage),
		zap.Error(cause),
	)
	if e.store == nil {
		return
	}
	raw, err := json.Marshal(state)
	if err != nil {
		e.logger.Error("failed to serialize state for failure checkpoint", zap.Error(err))
		return
	}
	saveErr := e.store.Save(context.WithoutCancel(ctx), &store.Checkpoint{
		RunID:       runID,
		Stage:       lastCompleted,
		Status:      store.StatusFailed,
		FailedStage: failedStage,
		Error:       cause.Error(),
		State:       raw,
		CreatedAt:   time.Now(),
	})
	if saveErr != nil {
		e.logger.Error("failed to write failure checkpoint", zap.Error(saveErr))
	}
}

// runFanout executes a fan-out: spawn the child seeds, run each child's
// subflow to completion on its own goroutine, and merge the outputs via the
// declared join once all children have reported. Zero children skips the
// subflow entirely; the executor then takes the empty edge.
func runFanout[S, C any](ctx context.Context, ex *Executor[S], runID, name string, spec FanoutSpec[S, C], state S) (S, int, error) {
	children := spec.Spawn(state)
	n := len(children)
	if n == 0 {
		return state, 0, nil
	}

	ex.logger.Info("fanning out",
		zap.String("run_id", runID),
		zap.String("stage", name),
		zap.Int("children", n),
	)

	outputs := make([]C, n)
	grp, grpCtx := errgroup.WithContext(ctx)
	for i, seed := range children {
		grp.Go(func() error {
			sub := NewExecutor(spec.Sub, nil, ex.logger, WithMaxSteps[C](ex.maxSteps))
			out, err := sub.Run(grpCtx, fmt.Sprintf("%s#%s.%d", runID, name, i), seed)
			if err != nil {
				return fmt.Errorf("branch %d: %w", i, err)
			}
			outputs[i] = out
			return nil
		})
	}
	// Any branch failure fails the whole fan-out; the join never sees a
	// partial set of outputs.
	if err := grp.Wait(); err != nil {
		return state, n, err
	}
	return spec.Join(state, outputs), n, nil
}
