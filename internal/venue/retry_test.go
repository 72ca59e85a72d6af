package venue

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: attempts,
		MinDelay:    time.Millisecond,
		MaxDelay:    2 * time.Millisecond,
		Retryable:   IsTransient,
	}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), "op", func() error {
		calls++
		if calls < 3 {
			return &StatusError{Status: 503, Body: "unavailable"}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success on third attempt: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_TerminalErrorStopsImmediately(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), "op", func() error {
		calls++
		return &StatusError{Status: 400, Body: "bad order"}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("a 400 must not be retried, got %d calls", calls)
	}
}

func TestDo_ExhaustionWrapsLastError(t *testing.T) {
	boom := errors.New("connection reset")
	err := fastPolicy(3).Do(context.Background(), "submit order", func() error {
		return boom
	})
	if err == nil {
		t.Fatal("expected error after exhaustion")
	}
	if !errors.Is(err, boom) {
		t.Errorf("exhaustion error must wrap the last failure: %v", err)
	}
}

func TestDo_ContextCancelStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := fastPolicy(3).Do(ctx, "op", func() error {
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context cancellation, got %v", err)
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"bad gateway", &StatusError{Status: 502}, true},
		{"service unavailable", &StatusError{Status: 503}, true},
		{"gateway timeout", &StatusError{Status: 504}, true},
		{"bad request", &StatusError{Status: 400}, false},
		{"unauthorized", &StatusError{Status: 401}, false},
		{"server error", &StatusError{Status: 500}, false},
		{"plain error", errors.New("connection reset"), true},
		{"terminal wrapper", Terminal(errors.New("decode response: bad payload")), false},
		{"wrapped terminal", fmt.Errorf("get /x: %w", Terminal(errors.New("bad payload"))), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
