package workflow

import (
	"context"
	"encoding/json"
	"time"

	"github.com/polymind-ai/polymind/store"
)

// checkpointerKey is the context key for the intra-stage checkpoint hook.
type checkpointerKey struct{}

type checkpointer func(v any) error

// withCheckpointer stores a checkpoint hook in the stage context. The hook
// persists a running checkpoint whose Next is the in-progress stage, so a
// resume re-executes that stage from its beginning.
func (e *Executor[S]) withCheckpointer(ctx context.Context, runID, prev, current string) context.Context {
	if e.store == nil {
		return ctx
	}
	hook := checkpointer(func(v any) error {
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return e.store.Save(ctx, &store.Checkpoint{
			RunID:     runID,
			Stage:     prev,
			Next:      current,
			Status:    store.StatusRunning,
			State:     raw,
			CreatedAt: time.Now(),
		})
	})
	return context.WithValue(ctx, checkpointerKey{}, hook)
}

// CheckpointNow persists an intra-stage snapshot of the run state. A stage
// calls this before an external effect it cannot retry (order submission),
// so a crash between the write and the effect's confirmation is detectable
// on resume. In a storeless executor (fan-out children) it is a no-op.
func CheckpointNow(ctx context.Context, state any) error {
	v := ctx.Value(checkpointerKey{})
	if v == nil {
		return nil
	}
	hook, ok := v.(checkpointer)
	if !ok {
		return nil
	}
	return hook(state)
}
