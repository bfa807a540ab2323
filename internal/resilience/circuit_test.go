package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errOverloaded = NewTransientError("anthropic", errors.New("overloaded"), 529)

func fail(_ context.Context) (string, error) { return "", errOverloaded }
func ok(_ context.Context) (string, error)   { return "ok", nil }

func newTestBreaker(threshold int, reset time.Duration) (*Breaker, *time.Time) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	b := NewBreaker("anthropic", BreakerConfig{FailureThreshold: threshold, ResetTimeout: reset})
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)
	ctx := context.Background()

	for range 3 {
		_, _ = Call(ctx, b, fail)
	}
	if b.State() != BreakerOpen {
		t.Fatalf("expected open, got %s", b.State())
	}

	_, err := Call(ctx, b, func(_ context.Context) (string, error) {
		t.Error("provider must not be called while open")
		return "", nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestBreaker_PermanentErrorsDoNotTrip(t *testing.T) {
	b, _ := newTestBreaker(2, time.Minute)
	bad := errors.New("invalid x-api-key")

	for range 5 {
		_, _ = Call(context.Background(), b, func(_ context.Context) (string, error) { return "", bad })
	}
	if b.State() != BreakerClosed {
		t.Errorf("expected closed, got %s", b.State())
	}
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)
	ctx := context.Background()

	_, _ = Call(ctx, b, fail)
	_, _ = Call(ctx, b, fail)
	_, _ = Call(ctx, b, ok)
	_, _ = Call(ctx, b, fail)
	_, _ = Call(ctx, b, fail)

	if b.State() != BreakerClosed {
		t.Errorf("expected closed, got %s", b.State())
	}
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	b, now := newTestBreaker(1, 10*time.Second)
	ctx := context.Background()

	_, _ = Call(ctx, b, fail)
	if b.State() != BreakerOpen {
		t.Fatalf("expected open, got %s", b.State())
	}

	*now = now.Add(11 * time.Second)
	if b.State() != BreakerHalfOpen {
		t.Fatalf("expected half-open after reset timeout, got %s", b.State())
	}

	// A failed probe reopens.
	_, _ = Call(ctx, b, fail)
	if b.State() != BreakerOpen {
		t.Fatalf("expected reopened, got %s", b.State())
	}

	*now = now.Add(11 * time.Second)
	v, err := Call(ctx, b, ok)
	if err != nil || v != "ok" {
		t.Fatalf("probe failed: %q %v", v, err)
	}
	if b.State() != BreakerClosed {
		t.Errorf("expected closed after successful probe, got %s", b.State())
	}
}

func TestBreaker_SingleProbeInFlight(t *testing.T) {
	b, now := newTestBreaker(1, time.Second)
	ctx := context.Background()
	_, _ = Call(ctx, b, fail)
	*now = now.Add(2 * time.Second)

	if err := b.allow(); err != nil {
		t.Fatalf("first probe should be allowed: %v", err)
	}
	if err := b.allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("second concurrent probe should be rejected, got %v", err)
	}
	b.record(nil)
	if b.State() != BreakerClosed {
		t.Errorf("expected closed, got %s", b.State())
	}
}

func TestBreakers_PerProvider(t *testing.T) {
	r := NewBreakers(BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute})

	if r.Get("openai") != r.Get("openai") {
		t.Error("expected the same breaker for the same provider")
	}
	_, _ = Call(context.Background(), r.Get("openai"), fail)

	states := r.States()
	if states["openai"] != BreakerOpen {
		t.Errorf("openai: expected open, got %s", states["openai"])
	}
	if r.Get("gemini").State() != BreakerClosed {
		t.Error("gemini must be unaffected by openai failures")
	}
}
