package internal

import (
	"context"
	"errors"
	"github.com/stretchr/testify/require"
	"sync"
	"testing"
	"time"
	"yappy/entity"
)

// recordingTimer fires immediately and records every requested wait.
type recordingTimer struct {
	mutex sync.Mutex
	waits []time.Duration
}

func (r *recordingTimer) after(d time.Duration) <-chan time.Time {
	r.mutex.Lock()
	r.waits = append(r.waits, d)
	r.mutex.Unlock()
	return immediate(d)
}

func TestPollerTimeoutAfterMaxAttempts(t *testing.T) {
	timer := &recordingTimer{}
	poller := NewPoller(DefaultRetryPolicy(), testLogger())
	poller.after = timer.after

	calls := 0
	result := poller.Run(context.Background(), func(ctx context.Context, attempt int) (entity.TransactionStatus, error) {
		calls++
		require.Equal(t, calls, attempt)
		return entity.StatusPending, nil
	})

	require.Equal(t, PollTimeout, result.State)
	require.Equal(t, 24, result.Attempts)
	require.Equal(t, 24, calls)
	require.Len(t, timer.waits, 24)
	for _, wait := range timer.waits {
		require.Equal(t, 5*time.Second, wait)
	}
	require.Equal(t, 2*time.Minute, DefaultRetryPolicy().Ceiling())
}

func TestPollerStopsOnTerminalStatus(t *testing.T) {
	poller := NewPoller(DefaultRetryPolicy(), testLogger())
	poller.after = immediate

	statuses := []entity.TransactionStatus{entity.StatusPending, entity.StatusUnknown, entity.StatusDeclined, entity.StatusCompleted}
	var seen []entity.TransactionStatus
	poller.OnStatus = func(attempt int, status entity.TransactionStatus) {
		seen = append(seen, status)
	}
	result := poller.Run(context.Background(), func(ctx context.Context, attempt int) (entity.TransactionStatus, error) {
		return statuses[attempt-1], nil
	})

	require.Equal(t, PollTerminal, result.State)
	require.Equal(t, entity.StatusDeclined, result.Status)
	require.Equal(t, 3, result.Attempts)
	require.Equal(t, statuses[:3], seen)
}

func TestPollerErrorsConsumeAttempts(t *testing.T) {
	poller := NewPoller(RetryPolicy{Interval: time.Second, MaxAttempts: 5}, testLogger())
	poller.after = immediate

	calls := 0
	result := poller.Run(context.Background(), func(ctx context.Context, attempt int) (entity.TransactionStatus, error) {
		calls++
		if attempt < 4 {
			return entity.StatusUnknown, &NetworkError{Op: "status", Err: errors.New("connection reset")}
		}
		return entity.StatusCompleted, nil
	})

	require.Equal(t, PollTerminal, result.State)
	require.Equal(t, 4, calls)
	require.Equal(t, 4, result.Attempts)

	poller = NewPoller(RetryPolicy{Interval: time.Second, MaxAttempts: 3}, testLogger())
	poller.after = immediate
	calls = 0
	result = poller.Run(context.Background(), func(ctx context.Context, attempt int) (entity.TransactionStatus, error) {
		calls++
		return entity.StatusUnknown, errors.New("boom")
	})
	require.Equal(t, PollTimeout, result.State)
	require.Equal(t, 3, calls)
}

func TestPollerCancel(t *testing.T) {
	t.Run("no tick after cancel", func(t *testing.T) {
		poller := NewPoller(DefaultRetryPolicy(), testLogger())
		poller.after = immediate

		calls := 0
		result := poller.Run(context.Background(), func(ctx context.Context, attempt int) (entity.TransactionStatus, error) {
			calls++
			if attempt == 3 {
				poller.Cancel()
			}
			return entity.StatusPending, nil
		})

		require.Equal(t, PollCancelled, result.State)
		require.Equal(t, 3, calls)
	})

	t.Run("cancel interrupts the wait", func(t *testing.T) {
		poller := NewPoller(RetryPolicy{Interval: time.Hour, MaxAttempts: 24}, testLogger())

		done := make(chan PollResult, 1)
		go func() {
			done <- poller.Run(context.Background(), func(ctx context.Context, attempt int) (entity.TransactionStatus, error) {
				t.Error("check must not run")
				return entity.StatusPending, nil
			})
		}()
		poller.Cancel()
		poller.Cancel()

		select {
		case result := <-done:
			require.Equal(t, PollCancelled, result.State)
			require.Equal(t, 0, result.Attempts)
		case <-time.After(5 * time.Second):
			t.Fatal("poller did not stop")
		}
	})

	t.Run("cancelled before start", func(t *testing.T) {
		poller := NewPoller(DefaultRetryPolicy(), testLogger())
		poller.after = immediate
		poller.Cancel()
		result := poller.Run(context.Background(), func(ctx context.Context, attempt int) (entity.TransactionStatus, error) {
			t.Error("check must not run")
			return entity.StatusPending, nil
		})
		require.Equal(t, PollCancelled, result.State)
		require.True(t, poller.IsCancelled())
	})

	t.Run("context cancel", func(t *testing.T) {
		poller := NewPoller(DefaultRetryPolicy(), testLogger())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		result := poller.Run(ctx, func(ctx context.Context, attempt int) (entity.TransactionStatus, error) {
			t.Error("check must not run")
			return entity.StatusPending, nil
		})
		require.Equal(t, PollCancelled, result.State)
	})
}

func TestRetryPolicyStopPredicate(t *testing.T) {
	policy := RetryPolicy{
		Interval:    time.Millisecond,
		MaxAttempts: 10,
		Stop: func(status entity.TransactionStatus) bool {
			return status == entity.StatusCompleted
		},
	}
	poller := NewPoller(policy, testLogger())
	poller.after = immediate

	result := poller.Run(context.Background(), func(ctx context.Context, attempt int) (entity.TransactionStatus, error) {
		if attempt < 3 {
			return entity.StatusDeclined, nil
		}
		return entity.StatusCompleted, nil
	})
	require.Equal(t, PollTerminal, result.State)
	require.Equal(t, 3, result.Attempts)
}
