package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var (
	errTransient = errors.New("transient")
	errFatal     = errors.New("fatal")
)

func isTransient(err error) bool { return errors.Is(err, errTransient) }

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts: attempts,
		BaseDelay:   time.Microsecond,
		MaxDelay:    10 * time.Microsecond,
	}
}

func TestDo_SucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(10), isTransient, func(context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	var retries []int
	p := fastPolicy(10)
	p.OnRetry = func(attempt int, _ time.Duration, _ error) { retries = append(retries, attempt) }

	err := Do(context.Background(), p, isTransient, func(context.Context) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
	if len(retries) != 2 || retries[0] != 1 || retries[1] != 2 {
		t.Errorf("unexpected retry callbacks: %v", retries)
	}
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(10), isTransient, func(context.Context) error {
		calls++
		return errFatal
	})
	if !errors.Is(err, errFatal) {
		t.Fatalf("expected errFatal, got %v", err)
	}
	if IsExhausted(err) {
		t.Error("non-retryable error must not be reported as exhausted")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(10), isTransient, func(context.Context) error {
		calls++
		return errTransient
	})
	if calls != 10 {
		t.Errorf("expected 10 calls, got %d", calls)
	}

	var ex *ExhaustedError
	if !errors.As(err, &ex) {
		t.Fatalf("expected ExhaustedError, got %v", err)
	}
	if ex.Attempts != 10 {
		t.Errorf("expected Attempts=10, got %d", ex.Attempts)
	}
	if !errors.Is(err, errTransient) {
		t.Error("exhausted error should wrap the last transient error")
	}
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxAttempts: 10, BaseDelay: time.Hour, MaxDelay: time.Hour, Rand: func() float64 { return 0.5 }}
	p.OnRetry = func(int, time.Duration, error) { cancel() }

	calls := 0
	err := Do(ctx, p, isTransient, func(context.Context) error {
		calls++
		return errTransient
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call before cancellation, got %d", calls)
	}
}

func TestDo_ZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	_ = Do(context.Background(), Policy{}, isTransient, func(context.Context) error {
		calls++
		return errTransient
	})
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestPolicy_Cap(t *testing.T) {
	p := Policy{BaseDelay: 10 * time.Millisecond, MaxDelay: 100 * time.Millisecond}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 10 * time.Millisecond},
		{1, 20 * time.Millisecond},
		{2, 40 * time.Millisecond},
		{3, 80 * time.Millisecond},
		{4, 100 * time.Millisecond},
		{60, 100 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := p.Cap(tt.attempt); got != tt.want {
			t.Errorf("Cap(%d) = %s, want %s", tt.attempt, got, tt.want)
		}
	}
}

func TestPolicy_DelayFullJitter(t *testing.T) {
	p := Policy{BaseDelay: 10 * time.Millisecond, MaxDelay: 100 * time.Millisecond}

	p.Rand = func() float64 { return 0 }
	if d := p.Delay(3); d != 0 {
		t.Errorf("expected zero delay with rand=0, got %s", d)
	}

	p.Rand = func() float64 { return 0.5 }
	if d := p.Delay(3); d != 40*time.Millisecond {
		t.Errorf("expected 40ms with rand=0.5, got %s", d)
	}

	p.Rand = nil
	for attempt := 0; attempt < 20; attempt++ {
		d := p.Delay(attempt)
		if d < 0 || d > p.MaxDelay {
			t.Fatalf("delay %s out of [0, %s]", d, p.MaxDelay)
		}
	}
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	if p.MaxAttempts != 10 {
		t.Errorf("expected 10 attempts, got %d", p.MaxAttempts)
	}
}
