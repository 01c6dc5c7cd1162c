// Package retry runs adapter calls under a bounded backoff.BackOff schedule.
// Errors are retried unless marked Permanent; an error carrying a server
// wait hint (After) delays the next attempt by at least that hint.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/janovincze/commentsync/internal/metrics"
)

// jitterFactor is the randomization applied to each wait when Jitter is set.
const jitterFactor = 0.25

// Policy defines the retry behavior.
type Policy struct {
	// MaxAttempts is the maximum number of attempts (including the first try).
	MaxAttempts int

	// InitialInterval is the initial backoff interval.
	InitialInterval time.Duration

	// MaxInterval caps each wait. A server hint beyond it ends the retries.
	MaxInterval time.Duration

	// Multiplier is the backoff multiplier.
	Multiplier float64

	// Jitter adds ±25% randomness to each wait.
	Jitter bool
}

// DefaultPolicy returns a Policy with sensible defaults.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
		Jitter:          true,
	}
}

// BackOff returns the schedule for p. A policy of one attempt or fewer never
// retries.
func (p Policy) BackOff() backoff.BackOff {
	if p.MaxAttempts <= 1 {
		return &backoff.StopBackOff{}
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialInterval
	if p.MaxInterval > 0 {
		exp.MaxInterval = p.MaxInterval
	}
	if p.Multiplier > 0 {
		exp.Multiplier = p.Multiplier
	}
	exp.RandomizationFactor = 0
	if p.Jitter {
		exp.RandomizationFactor = jitterFactor
	}
	// Attempts bound the schedule, not elapsed time.
	exp.MaxElapsedTime = 0
	exp.Reset()

	return backoff.WithMaxRetries(exp, uint64(p.MaxAttempts-1))
}

// RetryError wraps the last error with the number of attempts made.
type RetryError struct {
	Err      error
	Attempts int
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryError) Unwrap() error {
	return e.Err
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var perr *permanentError
	return errors.As(err, &perr)
}

type delayError struct {
	err  error
	wait time.Duration
}

func (e *delayError) Error() string { return e.err.Error() }
func (e *delayError) Unwrap() error { return e.err }

// After marks err as retryable no sooner than wait, e.g. from a Retry-After
// header. A zero wait leaves the schedule unchanged.
func After(err error, wait time.Duration) error {
	if err == nil {
		return nil
	}
	return &delayError{err: err, wait: wait}
}

// RetryAfter returns the wait hint attached with After, or zero.
func RetryAfter(err error) time.Duration {
	var derr *delayError
	if errors.As(err, &derr) && derr.wait > 0 {
		return derr.wait
	}
	return 0
}

// hinted stretches the next wait of its schedule to a server hint.
type hinted struct {
	backoff.BackOff
	hint time.Duration
}

func (h *hinted) NextBackOff() time.Duration {
	next := h.BackOff.NextBackOff()
	if next != backoff.Stop && h.hint > next {
		next = h.hint
	}
	h.hint = 0
	return next
}

func (h *hinted) Reset() {
	h.hint = 0
	h.BackOff.Reset()
}

// Retryer executes operations under a Policy.
type Retryer struct {
	policy    Policy
	operation string
	logger    *slog.Logger
}

// NewRetryer creates a Retryer.
func NewRetryer(policy Policy, logger *slog.Logger) *Retryer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retryer{
		policy:    policy,
		operation: "unknown",
		logger:    logger.With("component", "retryer"),
	}
}

// WithOperation returns a copy labelled with operation for logs and metrics.
func (r *Retryer) WithOperation(operation string) *Retryer {
	cp := *r
	cp.operation = operation
	return &cp
}

// Execute runs op until it succeeds, returns a Permanent error, the attempts
// are used up or ctx is done. Failures are returned as *RetryError.
func (r *Retryer) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	schedule := &hinted{BackOff: r.policy.BackOff()}
	attempts := 0

	operation := func() error {
		attempts++
		err := op(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || IsPermanent(err) {
			return backoff.Permanent(err)
		}
		wait := RetryAfter(err)
		if r.policy.MaxInterval > 0 && wait > r.policy.MaxInterval {
			r.logger.Warn("server asked to wait longer than allowed, giving up",
				"operation", r.operation,
				"retry_after", wait,
				"max_interval", r.policy.MaxInterval,
			)
			return backoff.Permanent(err)
		}
		schedule.hint = wait
		return err
	}

	notify := func(err error, wait time.Duration) {
		metrics.SourceRetriesTotal.WithLabelValues(r.operation).Inc()
		r.logger.Warn("operation failed, retrying",
			"operation", r.operation,
			"attempt", attempts,
			"max_attempts", r.policy.MaxAttempts,
			"wait", wait,
			"error", err,
		)
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(schedule, ctx), notify)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		err = errors.Join(ctxErr, err)
	}
	return &RetryError{Err: err, Attempts: attempts}
}

// Do runs op through r and returns its result.
func Do[T any](ctx context.Context, r *Retryer, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := r.Execute(ctx, func(ctx context.Context) error {
		var err error
		result, err = op(ctx)
		return err
	})
	return result, err
}
