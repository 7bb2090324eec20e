package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fastPolicy(max int) *Policy {
	return &Policy{
		MaxRetries:   max,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestRetryer_SucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()

	calls := 0
	r := New(fastPolicy(3), zap.NewNop())
	err := r.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryer_ExhaustsBudget(t *testing.T) {
	t.Parallel()

	calls := 0
	boom := errors.New("always")
	r := New(fastPolicy(2), zap.NewNop())
	err := r.Do(context.Background(), func() error {
		calls++
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
}

func TestRetryer_PermanentStopsImmediately(t *testing.T) {
	t.Parallel()

	calls := 0
	r := New(fastPolicy(5), zap.NewNop())
	err := r.Do(context.Background(), func() error {
		calls++
		return Permanent(errors.New("bad request"))
	})
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
	assert.Equal(t, 1, calls)
}

func TestRetryer_ContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	r := New(&Policy{MaxRetries: 5, InitialDelay: time.Second, MaxDelay: time.Second, Multiplier: 2}, zap.NewNop())

	calls := 0
	errCh := make(chan error, 1)
	go func() {
		errCh <- r.Do(ctx, func() error {
			calls++
			return errors.New("transient")
		})
	}()
	cancel()
	err := <-errCh
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestPermanent_NilPassthrough(t *testing.T) {
	t.Parallel()
	assert.NoError(t, Permanent(nil))
	assert.False(t, IsPermanent(nil))
}
