package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	apperrors "github.com/kbukum/rowquery/errors"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"source unavailable", apperrors.SourceUnavailable("csv", nil), true},
		{"wrapped source unavailable", fmt.Errorf("open: %w", apperrors.SourceUnavailable("csv", nil)), true},
		{"not found", apperrors.NotFound("file", "rows.csv"), false},
		{"inconsistent row", apperrors.InconsistentRow(1, 2), false},
		{"plain error", errors.New("boom"), false},
		{"cancelled", context.Canceled, false},
		{"retryable but deadline", apperrors.SourceUnavailable("csv", context.DeadlineExceeded), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsRetryable(tc.err); got != tc.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestRetry_SucceedsAfterRetryableFailures(t *testing.T) {
	calls := 0
	var retried []int
	cfg := fastRetry(3)
	cfg.OnRetry = func(attempt int, _ error, _ time.Duration) { retried = append(retried, attempt) }

	got, err := Retry(context.Background(), cfg, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", apperrors.SourceUnavailable("csv", nil)
		}
		return "rows", nil
	})
	if err != nil || got != "rows" {
		t.Fatalf("expected rows, got %q, %v", got, err)
	}
	if calls != 3 || len(retried) != 2 {
		t.Errorf("expected 3 calls and 2 retries, got %d and %v", calls, retried)
	}
}

func TestRetry_StopsOnNonRetryable(t *testing.T) {
	calls := 0
	notFound := apperrors.NotFound("file", "rows.csv")
	_, err := Retry(context.Background(), fastRetry(5), func(context.Context) (int, error) {
		calls++
		return 0, notFound
	})
	if !errors.Is(err, notFound) || calls != 1 {
		t.Errorf("expected one call returning NOT_FOUND, got %d calls, %v", calls, err)
	}
}

func TestRetry_ReturnsLastErrorAfterMaxAttempts(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastRetry(4), func(context.Context) (int, error) {
		calls++
		return 0, apperrors.SourceUnavailable("csv", fmt.Errorf("attempt %d", calls))
	})
	if calls != 4 {
		t.Errorf("expected 4 calls, got %d", calls)
	}
	if err == nil || err.Error() == "" || !IsRetryable(err) {
		t.Fatalf("expected last retryable error, got %v", err)
	}
	appErr, _ := apperrors.AsAppError(err)
	if appErr.Cause.Error() != "attempt 4" {
		t.Errorf("expected cause of the last attempt, got %v", appErr.Cause)
	}
}

func TestRetry_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxAttempts: 3, InitialBackoff: time.Hour, MaxBackoff: time.Hour}
	cfg.OnRetry = func(int, error, time.Duration) { cancel() }

	_, err := Retry(ctx, cfg, func(context.Context) (int, error) {
		return 0, apperrors.SourceUnavailable("csv", nil)
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestBackoffFor(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: 10 * time.Millisecond, MaxBackoff: 50 * time.Millisecond, BackoffFactor: 2}
	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond, 50 * time.Millisecond}
	for i, w := range want {
		if got := backoffFor(i+1, cfg); got != w {
			t.Errorf("attempt %d: expected %v, got %v", i+1, w, got)
		}
	}

	cfg.Jitter = 0.5
	for range 20 {
		if got := backoffFor(1, cfg); got < 5*time.Millisecond || got > 15*time.Millisecond {
			t.Fatalf("jittered backoff %v out of range", got)
		}
	}
}

func TestBulkhead_RejectsWhenFull(t *testing.T) {
	var rejected []error
	bh := NewBulkhead(BulkheadConfig{
		Name:          "query",
		MaxConcurrent: 1,
		OnReject:      func(_ string, err error) { rejected = append(rejected, err) },
	})

	inside := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- bh.Execute(context.Background(), func(context.Context) error {
			close(inside)
			<-release
			return nil
		})
	}()
	<-inside

	if bh.InUse() != 1 || bh.Available() != 0 {
		t.Errorf("expected 1 in use and 0 available, got %d and %d", bh.InUse(), bh.Available())
	}
	err := bh.Execute(context.Background(), func(context.Context) error {
		t.Error("fn must not run when the bulkhead is full")
		return nil
	})
	if !errors.Is(err, ErrBulkheadFull) {
		t.Errorf("expected ErrBulkheadFull, got %v", err)
	}
	if len(rejected) != 1 {
		t.Errorf("expected one rejection callback, got %d", len(rejected))
	}

	close(release)
	if err := <-done; err != nil {
		t.Errorf("first call failed: %v", err)
	}
	if bh.InUse() != 0 {
		t.Errorf("slot should be released, %d in use", bh.InUse())
	}
}

func TestBulkhead_WaitTimeoutAndContext(t *testing.T) {
	bh := NewBulkhead(BulkheadConfig{MaxConcurrent: 1, MaxWait: 10 * time.Millisecond})
	hold := make(chan struct{})
	inside := make(chan struct{})
	go func() {
		_ = bh.Execute(context.Background(), func(context.Context) error {
			close(inside)
			<-hold
			return nil
		})
	}()
	<-inside
	defer close(hold)

	if err := bh.Execute(context.Background(), func(context.Context) error { return nil }); !errors.Is(err, ErrBulkheadTimeout) {
		t.Errorf("expected ErrBulkheadTimeout, got %v", err)
	}

	slow := NewBulkhead(BulkheadConfig{MaxConcurrent: 1, MaxWait: time.Hour})
	slow.sem <- struct{}{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := slow.Execute(ctx, func(context.Context) error { return nil }); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestBulkhead_PassesFnError(t *testing.T) {
	bh := NewBulkhead(BulkheadConfig{MaxConcurrent: 0})
	boom := errors.New("boom")
	if err := bh.Execute(context.Background(), func(context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Errorf("expected fn error, got %v", err)
	}
	if bh.Available() != 1 {
		t.Errorf("MaxConcurrent below 1 should be raised to 1, got %d available", bh.Available())
	}
}
