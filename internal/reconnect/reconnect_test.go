package reconnect

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var errTransient = errors.New("connection reset")

func fastConfig(retries int) Config {
	return Config{MaxRetries: retries, RetryDelay: time.Millisecond, MaxRetryDelay: 4 * time.Millisecond}
}

func always(error) bool { return true }

func TestBackoff(t *testing.T) {
	cfg := DefaultConfig()
	want := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 30 * time.Second, 30 * time.Second}
	for i, d := range want {
		assert.Equal(t, d, Backoff(i+1, cfg), "attempt %d", i+1)
	}
	assert.Equal(t, time.Second, Backoff(0, cfg))
	assert.Equal(t, 30*time.Second, Backoff(200, cfg), "no overflow")
}

func TestRun_RecoversAfterTransientFailures(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	calls := 0
	var state State

	err := Run(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	}, fastConfig(5), always, &state)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, uint32(2), state.Reconnects.Load())
}

func TestRun_MaxRetriesExceeded(t *testing.T) {
	calls := 0
	var state State

	err := Run(context.Background(), func(context.Context) error {
		calls++
		return errTransient
	}, fastConfig(2), always, &state)

	require.Error(t, err)
	assert.ErrorIs(t, err, errTransient)
	assert.Contains(t, err.Error(), "max retries exceeded")
	assert.Equal(t, 3, calls, "first run plus two retries")
	assert.Equal(t, uint32(2), state.Reconnects.Load())
}

func TestRun_NoRetriesConfigured(t *testing.T) {
	calls := 0
	err := Run(context.Background(), func(context.Context) error {
		calls++
		return errTransient
	}, fastConfig(0), always, &State{})

	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 1, calls)
}

func TestRun_NotRetryable(t *testing.T) {
	permanent := errors.New("401 unauthorized")
	calls := 0

	err := Run(context.Background(), func(context.Context) error {
		calls++
		return permanent
	}, fastConfig(5), func(err error) bool { return !errors.Is(err, permanent) }, &State{})

	assert.Same(t, permanent, err)
	assert.Equal(t, 1, calls)
}

func TestRun_CancelDuringBackoff(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{MaxRetries: 5, RetryDelay: time.Hour, MaxRetryDelay: time.Hour}

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, func(context.Context) error { return errTransient }, cfg, always, &State{})
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, errTransient)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_LongRunResetsCounter(t *testing.T) {
	calls := 0
	var state State
	cfg := fastConfig(1)
	cfg.ResetAfter = time.Nanosecond

	err := Run(context.Background(), func(context.Context) error {
		calls++
		time.Sleep(time.Millisecond)
		if calls < 4 {
			return errTransient
		}
		return nil
	}, cfg, always, &state)

	require.NoError(t, err, "each failing run lasted long enough to reset the budget")
	assert.Equal(t, 4, calls)
	assert.Equal(t, uint32(3), state.Reconnects.Load())
}
