package task

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/imamik/edgefip/internal/gateway"
)

const (
	// DefaultPollInterval is used when a Waiter is built without an interval.
	DefaultPollInterval = 3 * time.Second
	// DefaultMaxWait bounds a single task wait.
	DefaultMaxWait = 10 * time.Minute
)

// Observer receives the outcome of every wait.
type Observer interface {
	ObserveTaskWait(polls int, elapsed time.Duration, err error)
}

// Waiter polls remote tasks to completion.
type Waiter struct {
	PollInterval time.Duration
	MaxWait      time.Duration
	Observer     Observer
}

// Option configures a Waiter.
type Option func(*Waiter)

// WithObserver reports every wait to o.
func WithObserver(o Observer) Option {
	return func(w *Waiter) {
		w.Observer = o
	}
}

// NewWaiter creates a Waiter. Zero values fall back to the defaults.
func NewWaiter(pollInterval, maxWait time.Duration, opts ...Option) *Waiter {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	w := &Waiter{PollInterval: pollInterval, MaxWait: maxWait}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Wait blocks until t succeeds, fails, or MaxWait elapses.
// The first status read happens immediately.
func (w *Waiter) Wait(ctx context.Context, t gateway.Task) error {
	if t == nil {
		return &gateway.RemoteOperationFailedError{Reason: "no task handle"}
	}
	if w.MaxWait <= 0 {
		return fmt.Errorf("waiting for task %s: max wait must be positive, got %v", t.ID(), w.MaxWait)
	}
	interval := w.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	logger := logr.FromContextOrDiscard(ctx).WithValues("task", t.ID())
	start := time.Now()
	deadline := start.Add(w.MaxWait)
	polls := 0

	err := func() error {
		for {
			polls++
			status, reason, err := t.Status(ctx)
			if err != nil {
				return &gateway.RemoteOperationFailedError{TaskID: t.ID(), Reason: fmt.Sprintf("reading status: %v", err)}
			}
			switch status {
			case gateway.TaskSuccess:
				return nil
			case gateway.TaskError:
				if reason == "" {
					reason = "task ended with error status"
				}
				return &gateway.RemoteOperationFailedError{TaskID: t.ID(), Reason: reason}
			}

			remaining := time.Until(deadline)
			if remaining <= 0 {
				return &gateway.RemoteOperationFailedError{
					TaskID:  t.ID(),
					Reason:  fmt.Sprintf("still %s after %v", status, w.MaxWait),
					Timeout: true,
				}
			}
			logger.V(1).Info("task still running", "status", string(status), "polls", polls)

			timer := time.NewTimer(min(interval, remaining))
			select {
			case <-ctx.Done():
				timer.Stop()
				return &gateway.RemoteOperationFailedError{TaskID: t.ID(), Reason: ctx.Err().Error()}
			case <-timer.C:
			}
		}
	}()

	elapsed := time.Since(start)
	if w.Observer != nil {
		w.Observer.ObserveTaskWait(polls, elapsed, err)
	}
	if err != nil {
		logger.Info("task did not complete", "polls", polls, "elapsed", elapsed.Round(time.Millisecond).String(), "timeout", gateway.IsTimeout(err))
		return err
	}
	logger.V(1).Info("task completed", "polls", polls, "elapsed", elapsed.Round(time.Millisecond).String())
	return nil
}
