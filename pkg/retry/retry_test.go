package retry

import (
	"context"
	"fmt"
	"testing"
	"time"

	errs "igmonitor/pkg/errors"
)

func fastConfig(maxAttempts int) *Config {
	return &Config{
		MaxAttempts: maxAttempts,
		Backoff:     &ConstantBackoff{Delay: time.Millisecond},
		RetryIf:     DefaultRetryIf,
		Context:     context.Background(),
	}
}

func TestDoSucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Do(func() error {
		calls++
		return nil
	}, fastConfig(3))
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDoRetriesTransientFailures(t *testing.T) {
	calls := 0
	err := Do(func() error {
		calls++
		if calls < 3 {
			return errs.New(errs.KindNetwork, "connection reset")
		}
		return nil
	}, fastConfig(5))
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDoStopsOnPermanentFailure(t *testing.T) {
	calls := 0
	err := Do(func() error {
		calls++
		return errs.New(errs.KindPostUnreachable, "post is gone")
	}, fastConfig(5))
	if err == nil {
		t.Fatal("Do swallowed a permanent failure")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry on a permanent failure)", calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Do(func() error {
		calls++
		return errs.New(errs.KindServerError, "still down")
	}, fastConfig(3))
	if err == nil {
		t.Fatal("Do succeeded with a permanently failing operation")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDoWithResult(t *testing.T) {
	calls := 0
	got, err := DoWithResult(func() (string, error) {
		calls++
		if calls < 2 {
			return "", errs.New(errs.KindNetwork, "flaky")
		}
		return "payload", nil
	}, fastConfig(3))
	if err != nil {
		t.Fatalf("DoWithResult: %v", err)
	}
	if got != "payload" {
		t.Errorf("result = %q", got)
	}
}

func TestDoHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := fastConfig(0) // unlimited attempts
	cfg.Context = ctx
	cfg.Backoff = &ConstantBackoff{Delay: 10 * time.Millisecond}

	err := Do(func() error {
		return errs.New(errs.KindNetwork, "always failing")
	}, cfg)
	if err == nil {
		t.Fatal("Do ran forever past a cancelled context")
	}
}

func TestDefaultRetryIf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{"network error", errs.New(errs.KindNetwork, "reset"), true},
		{"server error", errs.New(errs.KindServerError, "502"), true},
		{"session invalid", errs.New(errs.KindSessionInvalid, "logged out"), false},
		{"config error", errs.New(errs.KindConfig, "bad"), false},
		{"cancellation", context.Canceled, false},
		{"untyped error", fmt.Errorf("who knows"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DefaultRetryIf(tt.err); got != tt.want {
				t.Errorf("DefaultRetryIf(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestExponentialBackoffGrowth(t *testing.T) {
	eb := &ExponentialBackoff{
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   time.Second,
		Multiplier: 2.0,
	}

	if d := eb.NextDelay(1); d != 100*time.Millisecond {
		t.Errorf("attempt 1 delay = %v", d)
	}
	if d := eb.NextDelay(2); d != 200*time.Millisecond {
		t.Errorf("attempt 2 delay = %v", d)
	}
	if d := eb.NextDelay(10); d != time.Second {
		t.Errorf("attempt 10 delay = %v, want the cap", d)
	}
	if d := eb.NextDelay(0); d != 0 {
		t.Errorf("attempt 0 delay = %v, want 0", d)
	}
}

func TestExponentialBackoffJitterStaysClose(t *testing.T) {
	eb := &ExponentialBackoff{
		BaseDelay:    100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}

	for i := 0; i < 20; i++ {
		d := eb.NextDelay(1)
		if d < 90*time.Millisecond || d > 110*time.Millisecond {
			t.Errorf("jittered delay %v outside 10%% of base", d)
		}
	}
}
