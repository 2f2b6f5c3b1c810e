// Package reconnect reruns a stream after transient failures with
// exponential backoff.
package reconnect

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// Config bounds the retry schedule.
type Config struct {
	MaxRetries    int           // attempts after the first run; 0 disables retries
	RetryDelay    time.Duration // initial delay
	MaxRetryDelay time.Duration // delay cap
	// ResetAfter is how long a run must last before the retry counter
	// starts over.
	ResetAfter time.Duration
}

// DefaultConfig returns 5 retries from 1s doubling up to 30s.
func DefaultConfig() Config {
	return Config{
		MaxRetries:    5,
		RetryDelay:    1 * time.Second,
		MaxRetryDelay: 30 * time.Second,
		ResetAfter:    30 * time.Second,
	}
}

// State tracks attempts across one Run call.
type State struct {
	CurrentRetries int
	Reconnects     atomic.Uint32
}

// RunFunc plays the stream until it ends. nil is a clean end.
type RunFunc func(ctx context.Context) error

// Run calls fn until it returns nil, returns an error retryable rejects, the
// retries are exhausted or ctx is done. A cancelled ctx ends Run with fn's
// own result.
func Run(ctx context.Context, fn RunFunc, cfg Config, retryable func(error) bool, state *State) error {
	for {
		started := time.Now()
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			slog.Info("reconnect: context cancelled, not retrying")
			return err
		}
		if !retryable(err) {
			return err
		}

		if cfg.ResetAfter > 0 && time.Since(started) >= cfg.ResetAfter {
			state.CurrentRetries = 0
		}
		state.CurrentRetries++
		if state.CurrentRetries > cfg.MaxRetries {
			return fmt.Errorf("reconnect: max retries exceeded (%d attempts): %w", cfg.MaxRetries, err)
		}
		state.Reconnects.Add(1)

		delay := Backoff(state.CurrentRetries, cfg)
		slog.Warn("reconnect: restarting stream",
			"attempt", state.CurrentRetries,
			"max_retries", cfg.MaxRetries,
			"delay", delay,
			"error", err,
		)

		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			slog.Info("reconnect: context cancelled during backoff")
			return err
		}
	}
}

// Backoff returns RetryDelay * 2^(attempt-1), capped at MaxRetryDelay.
func Backoff(attempt int, cfg Config) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := cfg.RetryDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if cfg.MaxRetryDelay > 0 && delay >= cfg.MaxRetryDelay {
			return cfg.MaxRetryDelay
		}
	}
	if cfg.MaxRetryDelay > 0 && delay > cfg.MaxRetryDelay {
		delay = cfg.MaxRetryDelay
	}
	return delay
}
