package deadline

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func newTestClock() (*Clock, *clockwork.FakeClock) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fakeClock := clockwork.NewFakeClock()

	return New(logger, fakeClock), fakeClock
}

func receiveRemaining(t *testing.T, clock *Clock) time.Duration {
	t.Helper()

	select {
	case remaining := <-clock.Remaining():
		return remaining
	default:
		t.Fatal("expected a remaining value")
		return 0
	}
}

func TestClock_Countdown(t *testing.T) {
	// Given: a clock armed three seconds ahead
	clock, fakeClock := newTestClock()
	start := fakeClock.Now()
	clock.Arm(start.Add(3 * time.Second))

	// When: one second elapses
	clock.tick(start.Add(time.Second))

	// Then: two seconds remain
	assert.Equal(t, 2*time.Second, receiveRemaining(t, clock))

	// When: another second elapses
	clock.tick(start.Add(2 * time.Second))

	// Then: one second remains and no expiry fired
	assert.Equal(t, time.Second, receiveRemaining(t, clock))
	select {
	case <-clock.Expired():
		t.Fatal("deadline must not expire early")
	default:
	}
}

func TestClock_ExpiresExactlyOnce(t *testing.T) {
	// Given: a clock armed two seconds ahead
	clock, fakeClock := newTestClock()
	start := fakeClock.Now()
	clock.Arm(start.Add(2 * time.Second))

	// When: ticks run well past the deadline
	clock.tick(start.Add(2 * time.Second))
	clock.tick(start.Add(3 * time.Second))
	clock.tick(start.Add(4 * time.Second))

	// Then: exactly one expiry signal is delivered
	select {
	case <-clock.Expired():
	default:
		t.Fatal("expected an expiry signal")
	}
	select {
	case <-clock.Expired():
		t.Fatal("expiry must fire exactly once per armed deadline")
	default:
	}

	// And: the last published remaining is zero
	assert.Equal(t, time.Duration(0), receiveRemaining(t, clock))
}

func TestClock_Disarm(t *testing.T) {
	// Given: an armed clock that gets disarmed before the deadline
	clock, fakeClock := newTestClock()
	start := fakeClock.Now()
	clock.Arm(start.Add(time.Second))
	clock.Disarm()

	// When: time passes the deadline
	clock.tick(start.Add(5 * time.Second))

	// Then: neither countdown nor expiry is published
	select {
	case <-clock.Remaining():
		t.Fatal("disarmed clock must not publish a countdown")
	case <-clock.Expired():
		t.Fatal("disarmed clock must not expire")
	default:
	}
}

func TestClock_RearmAfterExpiry(t *testing.T) {
	// Given: a clock that already expired once
	clock, fakeClock := newTestClock()
	start := fakeClock.Now()
	clock.Arm(start.Add(time.Second))
	clock.tick(start.Add(time.Second))
	<-clock.Expired()

	// When: a fresh deadline is armed and reached
	clock.Arm(start.Add(10 * time.Second))
	clock.tick(start.Add(10 * time.Second))

	// Then: the clock expires again
	select {
	case <-clock.Expired():
	default:
		t.Fatal("re-armed clock must expire again")
	}
}

func TestClock_Run(t *testing.T) {
	// Given: a running clock driven by a fake ticker
	clock, fakeClock := newTestClock()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		clock.Run(ctx)
	}()

	fakeClock.BlockUntil(1)
	clock.Arm(fakeClock.Now().Add(2 * time.Second))

	// When: the fake clock advances one tick
	fakeClock.Advance(time.Second)

	// Then: the countdown is published from the run loop
	select {
	case remaining := <-clock.Remaining():
		assert.Equal(t, time.Second, remaining)
	case <-time.After(time.Second):
		t.Fatal("expected a countdown tick")
	}

	// When: the context is cancelled
	cancel()

	// Then: the run loop stops
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("run loop must stop on cancel")
	}
}
