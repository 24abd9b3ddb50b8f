package util

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetry(t *testing.T) {
	tests := []struct {
		name      string
		maxTries  int
		failUntil int
		wantCalls int
		wantErr   bool
	}{
		{name: "success immediate", maxTries: 3, failUntil: 0, wantCalls: 1},
		{name: "success after retries", maxTries: 3, failUntil: 2, wantCalls: 3},
		{name: "persistent failure", maxTries: 3, failUntil: 10, wantCalls: 3, wantErr: true},
		{name: "zero tries runs once", maxTries: 0, failUntil: 10, wantCalls: 1, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			calls := 0
			got, err := Retry(tc.maxTries, func() (int, error) {
				calls++
				if calls <= tc.failUntil {
					return 0, errors.New("transient")
				}
				return 42, nil
			})
			if (err != nil) != tc.wantErr {
				t.Fatalf("Retry() error = %v, wantErr %v", err, tc.wantErr)
			}
			if !tc.wantErr && got != 42 {
				t.Fatalf("Retry() = %d, want 42", got)
			}
			if calls != tc.wantCalls {
				t.Fatalf("calls = %d, want %d", calls, tc.wantCalls)
			}
		})
	}
}

func TestRetryWithContext_CanceledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := RetryWithContext(ctx, 3, 0, func(context.Context) (int, error) {
		calls++
		return 1, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if calls != 0 {
		t.Fatalf("calls = %d, want 0", calls)
	}
}

func TestRetryWithContext_StopsOnContextError(t *testing.T) {
	calls := 0
	_, err := RetryWithContext(context.Background(), 5, 0, func(context.Context) (int, error) {
		calls++
		return 0, context.DeadlineExceeded
	})
	if !errors.Is(err, context.DeadlineExceeded) || calls != 1 {
		t.Fatalf("error = %v after %d calls, want DeadlineExceeded after 1", err, calls)
	}
}

func TestRetryWithContext_CanceledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := RetryWithContext(ctx, 5, time.Second, func(context.Context) (int, error) {
		return 0, errors.New("down")
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want DeadlineExceeded", err)
	}
}

func TestRetryErrWithContext(t *testing.T) {
	calls := 0
	err := RetryErrWithContext(context.Background(), 3, time.Millisecond, func(context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("flaky")
		}
		return nil
	})
	if err != nil || calls != 2 {
		t.Fatalf("error = %v after %d calls, want nil after 2", err, calls)
	}
}
