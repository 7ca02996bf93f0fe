package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestTokenBucketAllow(t *testing.T) {
	tb := NewTokenBucket(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !tb.Allow() {
			t.Fatalf("request %d denied with tokens remaining", i+1)
		}
	}
	if tb.Allow() {
		t.Error("request allowed with an empty bucket")
	}
}

func TestTokenBucketRefill(t *testing.T) {
	tb := NewTokenBucket(1, 20*time.Millisecond)

	if !tb.Allow() {
		t.Fatal("first request denied")
	}
	if tb.Allow() {
		t.Fatal("bucket did not empty")
	}

	time.Sleep(30 * time.Millisecond)
	if !tb.Allow() {
		t.Error("bucket did not refill after the period")
	}
}

func TestTokenBucketReset(t *testing.T) {
	tb := NewTokenBucket(1, time.Hour)
	tb.Allow()
	tb.Reset()
	if !tb.Allow() {
		t.Error("reset did not restore capacity")
	}
}

func TestTokenBucketWaitCancellation(t *testing.T) {
	tb := NewTokenBucket(1, time.Hour)
	tb.Allow() // drain

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	if err := tb.Wait(ctx); err == nil {
		t.Fatal("Wait returned nil despite an empty bucket and cancelled context")
	}
	if time.Since(start) > time.Second {
		t.Error("Wait did not return promptly on cancellation")
	}
}

func TestTokenBucketWaitProceedsWithTokens(t *testing.T) {
	tb := NewTokenBucket(1, time.Hour)
	if err := tb.Wait(context.Background()); err != nil {
		t.Fatalf("Wait with tokens available: %v", err)
	}
}

func TestTokenBucketClampsZeroCapacity(t *testing.T) {
	tb := NewTokenBucket(0, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := tb.Wait(ctx); err != nil {
		t.Fatalf("Wait on a zero-capacity bucket never admitted: %v", err)
	}
}
