package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cenkalti/backoff"
)

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts:     attempts,
		InitialInterval: 5 * time.Millisecond,
		MaxInterval:     20 * time.Millisecond,
		Multiplier:      2.0,
		Jitter:          false,
	}
}

func TestRetryer_Success(t *testing.T) {
	retryer := NewRetryer(fastPolicy(3), nil)
	calls := 0

	err := retryer.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})

	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetryer_EventualSuccess(t *testing.T) {
	retryer := NewRetryer(fastPolicy(3), nil).WithOperation("fetch_page")
	calls := 0

	err := retryer.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("backend unavailable")
		}
		return nil
	})

	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetryer_MaxAttemptsExceeded(t *testing.T) {
	retryer := NewRetryer(fastPolicy(3), nil)
	calls := 0
	last := errors.New("backend unavailable")

	err := retryer.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return last
	})

	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}

	var retryErr *RetryError
	if !errors.As(err, &retryErr) {
		t.Fatalf("expected RetryError, got %T", err)
	}
	if retryErr.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", retryErr.Attempts)
	}
	if !errors.Is(err, last) {
		t.Errorf("expected last error to be wrapped, got %v", err)
	}
}

func TestRetryer_PermanentError(t *testing.T) {
	retryer := NewRetryer(fastPolicy(3), nil)
	calls := 0
	notFound := errors.New("video not found")

	err := retryer.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return Permanent(notFound)
	})

	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if !errors.Is(err, notFound) {
		t.Errorf("expected original error, got %v", err)
	}
	if !IsPermanent(err) {
		t.Error("expected the permanent mark to survive")
	}
}

func TestRetryer_ZeroAttemptsRunsOnce(t *testing.T) {
	retryer := NewRetryer(Policy{}, nil)
	calls := 0

	_ = retryer.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("boom")
	})

	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetryer_ContextCancelled(t *testing.T) {
	policy := Policy{
		MaxAttempts:     5,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     time.Second,
		Multiplier:      2.0,
	}

	retryer := NewRetryer(policy, nil)
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := retryer.Execute(ctx, func(ctx context.Context) error {
		return errors.New("temporary error")
	})

	var retryErr *RetryError
	if !errors.As(err, &retryErr) {
		t.Fatalf("expected RetryError, got %T", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRetryer_RetryAfterStretchesWait(t *testing.T) {
	policy := Policy{
		MaxAttempts:     2,
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Second,
		Multiplier:      2.0,
	}
	retryer := NewRetryer(policy, nil)
	calls := 0

	start := time.Now()
	err := retryer.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return After(errors.New("rate limited"), 50*time.Millisecond)
		}
		return nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("expected to wait at least 50ms, waited %v", elapsed)
	}
}

func TestRetryer_RetryAfterBeyondMaxIntervalGivesUp(t *testing.T) {
	retryer := NewRetryer(fastPolicy(3), nil)
	calls := 0

	err := retryer.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return After(errors.New("rate limited"), time.Hour)
	})

	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestPolicy_BackOff(t *testing.T) {
	policy := Policy{
		MaxAttempts:     5,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     time.Second,
		Multiplier:      2.0,
	}

	b := policy.BackOff()
	expected := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		backoff.Stop, // 4 retries after the first attempt
	}

	for i, want := range expected {
		t.Run(fmt.Sprintf("retry_%d", i+1), func(t *testing.T) {
			if got := b.NextBackOff(); got != want {
				t.Errorf("NextBackOff() = %v, want %v", got, want)
			}
		})
	}
}

func TestPolicy_BackOffJitterBounds(t *testing.T) {
	policy := fastPolicy(3)
	policy.InitialInterval = 400 * time.Millisecond
	policy.MaxInterval = time.Second
	policy.Jitter = true

	for i := 0; i < 50; i++ {
		got := policy.BackOff().NextBackOff()
		if got < 300*time.Millisecond || got > 500*time.Millisecond {
			t.Fatalf("NextBackOff() = %v, want within [300ms, 500ms]", got)
		}
	}

	if got := (Policy{MaxAttempts: 1}).BackOff().NextBackOff(); got != backoff.Stop {
		t.Errorf("single attempt policy NextBackOff() = %v, want Stop", got)
	}
}

func TestDo(t *testing.T) {
	retryer := NewRetryer(fastPolicy(2), nil)
	calls := 0

	got, err := Do(context.Background(), retryer, func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("flaky")
		}
		return "page-2", nil
	})

	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if got != "page-2" {
		t.Errorf("Do() = %q, want %q", got, "page-2")
	}
}

func TestDefaultPolicy(t *testing.T) {
	policy := DefaultPolicy()

	if policy.MaxAttempts != 3 {
		t.Errorf("expected MaxAttempts = 3, got %d", policy.MaxAttempts)
	}
	if policy.InitialInterval != time.Second {
		t.Errorf("expected InitialInterval = 1s, got %v", policy.InitialInterval)
	}
	if policy.MaxInterval != 30*time.Second {
		t.Errorf("expected MaxInterval = 30s, got %v", policy.MaxInterval)
	}
	if !policy.Jitter {
		t.Error("expected Jitter = true")
	}
}

func TestErrorMarks(t *testing.T) {
	original := errors.New("original error")

	if Permanent(nil) != nil || After(nil, time.Second) != nil {
		t.Error("expected nil errors to stay nil")
	}
	if IsPermanent(original) {
		t.Error("expected unmarked error to be retryable")
	}
	if !IsPermanent(fmt.Errorf("list: %w", Permanent(original))) {
		t.Error("expected wrapped permanent error to be detected")
	}
	if got := RetryAfter(fmt.Errorf("list: %w", After(original, 2*time.Second))); got != 2*time.Second {
		t.Errorf("RetryAfter() = %v, want 2s", got)
	}
	if got := RetryAfter(original); got != 0 {
		t.Errorf("RetryAfter() = %v, want 0", got)
	}
}

func TestRetryError(t *testing.T) {
	originalErr := errors.New("original error")
	retryErr := &RetryError{Err: originalErr, Attempts: 3}

	if retryErr.Error() != "failed after 3 attempts: original error" {
		t.Errorf("unexpected message %q", retryErr.Error())
	}
	if !errors.Is(retryErr, originalErr) {
		t.Error("expected Unwrap to return original error")
	}
}
