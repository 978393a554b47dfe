package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy(attempts int) Policy {
	return Policy{
		Stage:          "test",
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}
}

func TestRetry_SuccessOnFirstAttempt(t *testing.T) {
	var calls int
	val, err := Retry(context.Background(), fastPolicy(3), func(_ context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "ok" || calls != 1 {
		t.Errorf("got val=%q calls=%d, want ok/1", val, calls)
	}
}

func TestRetry_SuccessAfterTransient(t *testing.T) {
	var calls int
	val, err := Retry(context.Background(), fastPolicy(3), func(_ context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, NewTransientError(errors.New("temporary"), 503)
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != 42 || calls != 3 {
		t.Errorf("got val=%d calls=%d, want 42/3", val, calls)
	}
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	var calls int
	val, err := Retry(context.Background(), fastPolicy(4), func(_ context.Context) (int, error) {
		calls++
		return 7, NewTransientError(errors.New("always"), 500)
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if calls != 4 {
		t.Errorf("expected 4 calls, got %d", calls)
	}
	if val != 0 {
		t.Errorf("expected zero value on failure, got %d", val)
	}
}

func TestRetry_NonRetryableFailsFast(t *testing.T) {
	var calls int
	_, err := Retry(context.Background(), fastPolicy(3), func(_ context.Context) (int, error) {
		calls++
		return 0, errors.New("permanent")
	})
	if err == nil || calls != 1 {
		t.Errorf("expected 1 call and an error, got calls=%d err=%v", calls, err)
	}
}

func TestRetry_CustomRetryable(t *testing.T) {
	sentinel := errors.New("retry me")
	p := fastPolicy(3)
	p.Retryable = func(err error) bool { return errors.Is(err, sentinel) }

	var calls int
	_, err := Retry(context.Background(), p, func(_ context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, sentinel
		}
		return 1, nil
	})
	if err != nil || calls != 2 {
		t.Errorf("expected success on 2nd call, got calls=%d err=%v", calls, err)
	}
}

func TestRetry_ContextCancelStopsRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxAttempts: 10, InitialBackoff: 20 * time.Millisecond, MaxBackoff: 50 * time.Millisecond}

	var calls int
	_, err := Retry(ctx, p, func(_ context.Context) (int, error) {
		calls++
		if calls == 2 {
			cancel()
		}
		return 0, NewTransientError(errors.New("fail"), 500)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 2 {
		t.Errorf("expected retries to stop at cancellation, got %d calls", calls)
	}
}

func TestRetry_OnRetryCallback(t *testing.T) {
	var attempts []int
	p := fastPolicy(3)
	p.OnRetry = func(attempt int, _ error, _ time.Duration) {
		attempts = append(attempts, attempt)
	}

	_, _ = Retry(context.Background(), p, func(_ context.Context) (int, error) {
		return 0, NewTransientError(errors.New("fail"), 500)
	})
	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("expected OnRetry attempts [1 2], got %v", attempts)
	}
}

func TestFromStageConfig(t *testing.T) {
	p := FromStageConfig("scrape", 5, 100, 2000)
	if p.MaxAttempts != 5 || p.InitialBackoff != 100*time.Millisecond || p.MaxBackoff != 2*time.Second {
		t.Errorf("unexpected policy %+v", p)
	}

	d := FromStageConfig("parse", 0, 0, 0)
	if d.MaxAttempts != 3 || d.InitialBackoff != 500*time.Millisecond {
		t.Errorf("expected defaults, got %+v", d)
	}
}

func TestBackoff_ExponentialAndCapped(t *testing.T) {
	p := applyDefaults(Policy{InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Second, Multiplier: 2})
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond, time.Second}
	for i, w := range want {
		if got := backoff(i, p); got != w {
			t.Errorf("attempt %d: got %v, want %v", i, got, w)
		}
	}
}

func TestBackoff_Jitter(t *testing.T) {
	p := applyDefaults(Policy{InitialBackoff: time.Second, MaxBackoff: 30 * time.Second, JitterFraction: 0.5})
	seen := make(map[time.Duration]bool)
	for i := 0; i < 100; i++ {
		d := backoff(0, p)
		seen[d] = true
		if d < 500*time.Millisecond || d > 1500*time.Millisecond {
			t.Errorf("delay %v outside [500ms, 1500ms]", d)
		}
	}
	if len(seen) < 2 {
		t.Error("expected jitter to vary delays")
	}
}

func TestPolicy_MaxElapsed(t *testing.T) {
	p := FromStageConfig("scraping", 3, 500, 8000)
	// 3 x 30s attempts + (500ms + 1s) backoff with 25% jitter.
	if got, want := p.MaxElapsed(30*time.Second), 91875*time.Millisecond; got != want {
		t.Errorf("default scrape budget: got %v, want %v", got, want)
	}

	p.JitterFraction = 0
	p.MaxBackoff = 700 * time.Millisecond
	if got, want := p.MaxElapsed(time.Second), 4200*time.Millisecond; got != want {
		t.Errorf("capped budget: got %v, want %v", got, want)
	}

	single := FromStageConfig("parsing", 1, 0, 0)
	if got := single.MaxElapsed(5 * time.Second); got != 5*time.Second {
		t.Errorf("single attempt budget: got %v", got)
	}
}
