package internal

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
	"yappy/entity"
	"yappy/services"
)

const (
	DefaultPollInterval    = 5 * time.Second
	DefaultPollMaxAttempts = 24
)

// RetryPolicy bounds a polling loop: a fixed wait before every attempt
// and a maximum number of attempts.
type RetryPolicy struct {
	Interval    time.Duration
	MaxAttempts int
	// Stop reports whether a status ends polling, IsTerminal when nil
	Stop func(status entity.TransactionStatus) bool
}

// DefaultRetryPolicy polls every 5 seconds for at most 2 minutes.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Interval:    DefaultPollInterval,
		MaxAttempts: DefaultPollMaxAttempts,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.Interval <= 0 {
		p.Interval = DefaultPollInterval
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultPollMaxAttempts
	}
	if p.Stop == nil {
		p.Stop = entity.TransactionStatus.IsTerminal
	}
	return p
}

// Ceiling is the longest time a poll can take.
func (p RetryPolicy) Ceiling() time.Duration {
	p = p.withDefaults()
	return p.Interval * time.Duration(p.MaxAttempts)
}

type PollState string

const (
	PollTerminal  PollState = "TERMINAL"
	PollTimeout   PollState = "TIMEOUT"
	PollCancelled PollState = "CANCELLED"
)

type PollResult struct {
	State    PollState
	Status   entity.TransactionStatus
	Attempts int
}

// CheckFunc performs one status query.
type CheckFunc func(ctx context.Context, attempt int) (entity.TransactionStatus, error)

// Poller runs a CheckFunc under a RetryPolicy until a stop status, timeout or cancel.
type Poller struct {
	policy    RetryPolicy
	logger    services.LogHandler
	cancelled atomic.Bool
	stop      chan struct{}
	// after is replaced in tests
	after func(d time.Duration) <-chan time.Time
	// OnStatus is called with every status read, before the stop check
	OnStatus func(attempt int, status entity.TransactionStatus)
}

func NewPoller(policy RetryPolicy, logger services.LogHandler) *Poller {
	return &Poller{
		policy: policy.withDefaults(),
		logger: logger,
		stop:   make(chan struct{}),
		after:  time.After,
	}
}

// Cancel stops the poller before its next tick. A check already in flight is not interrupted.
func (p *Poller) Cancel() {
	if p.cancelled.CompareAndSwap(false, true) {
		close(p.stop)
	}
}

func (p *Poller) IsCancelled() bool {
	return p.cancelled.Load()
}

// Run polls until the policy stop predicate matches, the attempts run out,
// or the poller or ctx is cancelled. Every tick consumes one attempt,
// including ticks whose check returned an error.
func (p *Poller) Run(ctx context.Context, check CheckFunc) PollResult {
	result := PollResult{State: PollTimeout, Status: entity.StatusUnknown}

	for attempt := 1; attempt <= p.policy.MaxAttempts; attempt++ {
		if p.IsCancelled() || ctx.Err() != nil {
			result.State = PollCancelled
			return result
		}

		select {
		case <-p.stop:
			result.State = PollCancelled
			return result
		case <-ctx.Done():
			result.State = PollCancelled
			return result
		case <-p.after(p.policy.Interval):
		}
		if p.IsCancelled() {
			result.State = PollCancelled
			return result
		}

		result.Attempts = attempt
		status, err := check(ctx, attempt)
		if p.IsCancelled() {
			// result of an in-flight check after cancel is discarded
			result.State = PollCancelled
			return result
		}
		if err != nil {
			p.logger.Warn(fmt.Sprintf("poll attempt %d/%d: %v", attempt, p.policy.MaxAttempts, err))
			continue
		}
		result.Status = status
		if p.OnStatus != nil {
			p.OnStatus(attempt, status)
		}
		if p.policy.Stop(status) {
			result.State = PollTerminal
			return result
		}
		p.logger.Debug(fmt.Sprintf("poll attempt %d/%d: status %s", attempt, p.policy.MaxAttempts, status))
	}

	p.logger.Warn(fmt.Sprintf("poll timeout after %d attempts", result.Attempts))
	return result
}
