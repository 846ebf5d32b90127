package resilience

import (
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

type tripCounter struct {
	trips int
}

func (t *tripCounter) RecordBreakerTrip() { t.trips++ }

func TestBreakerOpensAtThreshold(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1700000000, 0)}
	trips := &tripCounter{}
	b := New(3, time.Minute, WithClock(clk), WithTripRecorder(trips))

	b.RecordFailure()
	b.RecordFailure()
	if b.State() != StateClosed {
		t.Fatalf("breaker opened before threshold, state=%v", b.State())
	}
	b.RecordFailure()
	if b.State() != StateOpen {
		t.Fatalf("breaker did not open at threshold, state=%v", b.State())
	}
	if b.TripCount() != 1 {
		t.Fatalf("trip count = %d, want 1", b.TripCount())
	}
	if trips.trips != 1 {
		t.Fatalf("trip recorder saw %d trips, want 1", trips.trips)
	}
}

func TestBreakerSuccessDecaysFailures(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1700000000, 0)}
	b := New(3, time.Minute, WithClock(clk))

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	if got := b.FailureCount(); got != 1 {
		t.Fatalf("failure count = %d, want 1", got)
	}

	// Floor at zero.
	b.RecordSuccess()
	b.RecordSuccess()
	if got := b.FailureCount(); got != 0 {
		t.Fatalf("failure count = %d, want 0", got)
	}

	// A single success must not erase a streak: two more failures after the
	// decay still leave room before the threshold.
	b.RecordFailure()
	b.RecordFailure()
	if b.State() != StateClosed {
		t.Fatalf("breaker opened early, state=%v", b.State())
	}
}

func TestBreakerHoldsUntilResetTimeout(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1700000000, 0)}
	b := New(1, time.Minute, WithClock(clk))

	b.RecordFailure()
	if b.State() != StateOpen {
		t.Fatalf("expected open state")
	}
	if b.CanProceed() {
		t.Fatalf("open breaker admitted traffic immediately")
	}
	clk.advance(59 * time.Second)
	if b.CanProceed() {
		t.Fatalf("open breaker admitted traffic before reset timeout")
	}
	clk.advance(2 * time.Second)
	if !b.CanProceed() {
		t.Fatalf("breaker did not admit trial traffic after reset timeout")
	}
	if b.State() != StateHalfOpen {
		t.Fatalf("state = %v, want half_open", b.State())
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1700000000, 0)}
	b := New(1, time.Minute, WithClock(clk))

	b.RecordFailure()
	clk.advance(2 * time.Minute)
	if !b.CanProceed() {
		t.Fatalf("expected half-open admission")
	}

	// Prior half-open successes grant no leniency.
	b.RecordSuccess()
	b.RecordSuccess()
	b.RecordFailure()
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open after half-open failure", b.State())
	}
	if b.CanProceed() {
		t.Fatalf("reopened breaker admitted traffic")
	}
}

func TestHalfOpenClosesAfterThreeSuccesses(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1700000000, 0)}
	b := New(1, time.Minute, WithClock(clk))

	b.RecordFailure()
	clk.advance(2 * time.Minute)
	if !b.CanProceed() {
		t.Fatalf("expected half-open admission")
	}

	b.RecordSuccess()
	b.RecordSuccess()
	if b.State() != StateHalfOpen {
		t.Fatalf("breaker closed before three successes, state=%v", b.State())
	}
	b.RecordSuccess()
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed after three successes", b.State())
	}
	if got := b.FailureCount(); got != 0 {
		t.Fatalf("failure count = %d, want 0 after close", got)
	}
}
