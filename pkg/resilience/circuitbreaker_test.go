package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func failing(context.Context) error { return errBoom }
func succeeding(context.Context) error { return nil }

func TestBreakerStartsClosed(t *testing.T) {
	b := NewBreaker(DefaultBreakerOpts)
	if b.State() != StateClosed {
		t.Fatalf("state = %s, want closed", b.State())
	}
	if err := b.Call(context.Background(), succeeding); err != nil {
		t.Fatal(err)
	}
}

func TestBreakerTripsAfterThreshold(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 3, Timeout: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := b.Call(ctx, failing); !errors.Is(err, errBoom) {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if b.State() != StateOpen {
		t.Fatalf("state = %s, want open", b.State())
	}
	if err := b.Call(ctx, succeeding); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("open breaker must reject, got %v", err)
	}
}

func TestBreakerHalfOpenProbeClosesOnSuccess(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 1, Timeout: time.Second})
	now := time.Now()
	b.now = func() time.Time { return now }
	ctx := context.Background()

	_ = b.Call(ctx, failing)
	if b.State() != StateOpen {
		t.Fatal("expected open after threshold failure")
	}

	now = now.Add(2 * time.Second)
	if b.State() != StateHalfOpen {
		t.Fatalf("state = %s, want half-open after timeout", b.State())
	}
	if err := b.Call(ctx, succeeding); err != nil {
		t.Fatal(err)
	}
	if b.State() != StateClosed {
		t.Errorf("state = %s, want closed after successful probe", b.State())
	}
}

func TestBreakerHalfOpenReopensOnFailure(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 1, Timeout: time.Second})
	now := time.Now()
	b.now = func() time.Time { return now }
	ctx := context.Background()

	_ = b.Call(ctx, failing)
	now = now.Add(2 * time.Second)
	if err := b.Call(ctx, failing); !errors.Is(err, errBoom) {
		t.Fatal(err)
	}
	if b.State() != StateOpen {
		t.Errorf("state = %s, want open after failed probe", b.State())
	}
}

func TestBreakerHalfOpenLimitsProbes(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 1, Timeout: time.Second, HalfOpenMax: 1})
	now := time.Now()
	b.now = func() time.Time { return now }
	ctx := context.Background()

	_ = b.Call(ctx, failing)
	now = now.Add(2 * time.Second)

	block := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Call(ctx, func(context.Context) error {
			<-block
			return nil
		})
	}()

	// Wait until the probe is in flight.
	for i := 0; ; i++ {
		b.mu.Lock()
		inFlight := b.halfOpenCount > 0
		b.mu.Unlock()
		if inFlight {
			break
		}
		if i > 1000 {
			t.Fatal("probe never started")
		}
		time.Sleep(time.Millisecond)
	}

	if err := b.Call(ctx, succeeding); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("second probe must be rejected, got %v", err)
	}
	close(block)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 2, Timeout: time.Minute})
	ctx := context.Background()

	_ = b.Call(ctx, failing)
	_ = b.Call(ctx, succeeding)
	_ = b.Call(ctx, failing)
	if b.State() != StateClosed {
		t.Errorf("state = %s, want closed (failures interleaved with success)", b.State())
	}
}
