package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newBackends constructs one store per backend so the contract tests run
// against all of them.
func newBackends(t *testing.T) map[string]Store {
	t.Helper()

	mr := miniredis.RunT(t)
	redisStore := NewRedisStoreWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test:")

	sqliteStore, err := NewSQLiteStore("file::memory:?cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqliteStore.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  redisStore,
		"sqlite": sqliteStore,
	}
}

func newCheckpoint(runID, stage, next string, status Status) *Checkpoint {
	state, _ := json.Marshal(map[string]string{"stage": stage})
	return &Checkpoint{
		RunID:  runID,
		Stage:  stage,
		Next:   next,
		Status: status,
		State:  state,
	}
}

func TestStore_SaveAssignsIncreasingVersions(t *testing.T) {
	t.Parallel()
	for name, s := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			cp1 := newCheckpoint("run-1", "create_analysts", "conduct_interviews", StatusRunning)
			require.NoError(t, s.Save(ctx, cp1))
			cp2 := newCheckpoint("run-1", "conduct_interviews", "write_recommendation", StatusRunning)
			require.NoError(t, s.Save(ctx, cp2))

			assert.Equal(t, 1, cp1.Version)
			assert.Equal(t, 2, cp2.Version)
			assert.NotEmpty(t, cp1.ID)
		})
	}
}

func TestStore_LatestReturnsHighestVersion(t *testing.T) {
	t.Parallel()
	for name, s := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, s.Save(ctx, newCheckpoint("run-2", "a", "b", StatusRunning)))
			require.NoError(t, s.Save(ctx, newCheckpoint("run-2", "b", "", StatusCompleted)))

			latest, err := s.Latest(ctx, "run-2")
			require.NoError(t, err)
			assert.Equal(t, 2, latest.Version)
			assert.Equal(t, "b", latest.Stage)
			assert.Equal(t, StatusCompleted, latest.Status)
		})
	}
}

func TestStore_LatestNotFound(t *testing.T) {
	t.Parallel()
	for name, s := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Latest(context.Background(), "no-such-run")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_VersionAndList(t *testing.T) {
	t.Parallel()
	for name, s := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, s.Save(ctx, newCheckpoint("run-3", "a", "b", StatusRunning)))
			require.NoError(t, s.Save(ctx, newCheckpoint("run-3", "b", "c", StatusRunning)))
			require.NoError(t, s.Save(ctx, newCheckpoint("run-3", "c", "", StatusCompleted)))

			v2, err := s.Version(ctx, "run-3", 2)
			require.NoError(t, err)
			assert.Equal(t, "b", v2.Stage)

			all, err := s.List(ctx, "run-3")
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, "a", all[0].Stage)
			assert.Equal(t, "c", all[2].Stage)
		})
	}
}

func TestStore_RunsAreIsolated(t *testing.T) {
	t.Parallel()
	for name, s := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, s.Save(ctx, newCheckpoint("run-a", "x", "", StatusCompleted)))
			require.NoError(t, s.Save(ctx, newCheckpoint("run-b", "y", "", StatusCompleted)))

			a, err := s.Latest(ctx, "run-a")
			require.NoError(t, err)
			assert.Equal(t, "x", a.Stage)
			assert.Equal(t, 1, a.Version)
		})
	}
}

func TestStore_Delete(t *testing.T) {
	t.Parallel()
	for name, s := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, s.Save(ctx, newCheckpoint("run-del", "a", "", StatusCompleted)))
			require.NoError(t, s.Delete(ctx, "run-del"))

			_, err := s.Latest(ctx, "run-del")
			assert.Error(t, err)
		})
	}
}

func TestStore_FailedCheckpointRetainsState(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	ctx := context.Background()

	cp := newCheckpoint("run-fail", "check_balance", "", StatusFailed)
	cp.FailedStage = "size_order"
	cp.Error = "balance oracle unavailable"
	require.NoError(t, s.Save(ctx, cp))

	latest, err := s.Latest(ctx, "run-fail")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, latest.Status)
	assert.Equal(t, "size_order", latest.FailedStage)
	assert.Equal(t, "balance oracle unavailable", latest.Error)
	assert.NotEmpty(t, latest.State)
}

func TestStore_New(t *testing.T) {
	t.Parallel()
	s, err := New(Config{Type: TypeMemory})
	require.NoError(t, err)
	assert.NoError(t, s.Ping(context.Background()))

	_, err = New(Config{Type: "bogus"})
	assert.Error(t, err)
}
