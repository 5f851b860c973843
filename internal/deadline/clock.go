package deadline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const tickResolution = time.Second

// Clock turns a server-issued absolute deadline into a local countdown.
// Every tick publishes the remaining duration; when it hits zero the
// clock emits exactly one expiry signal and disarms itself until the
// next Arm.
type Clock struct {
	logger *slog.Logger
	clock  clockwork.Clock

	mu       sync.Mutex
	armed    bool
	deadline time.Time

	remaining chan time.Duration
	expired   chan time.Time
}

func New(logger *slog.Logger, clock clockwork.Clock) *Clock {
	return &Clock{
		logger:    logger.With("component", "deadline-clock"),
		clock:     clock,
		remaining: make(chan time.Duration, 1),
		expired:   make(chan time.Time, 1),
	}
}

// Arm replaces any previously armed deadline.
func (that *Clock) Arm(deadline time.Time) {
	that.mu.Lock()
	that.armed = true
	that.deadline = deadline
	that.mu.Unlock()
}

// Disarm stops the countdown without emitting an expiry.
func (that *Clock) Disarm() {
	that.mu.Lock()
	that.armed = false
	that.mu.Unlock()
}

// Remaining publishes the countdown once per tick, latest value wins.
func (that *Clock) Remaining() <-chan time.Duration {
	return that.remaining
}

// Expired delivers the one-shot timeout signal.
func (that *Clock) Expired() <-chan time.Time {
	return that.expired
}

// Run drives the countdown on a fixed one-second tick until the
// context is cancelled.
func (that *Clock) Run(ctx context.Context) {
	ticker := that.clock.NewTicker(tickResolution)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.Chan():
			that.tick(now)
		}
	}
}

func (that *Clock) tick(now time.Time) {
	that.mu.Lock()
	if !that.armed {
		that.mu.Unlock()
		return
	}

	remaining := that.deadline.Sub(now)
	if remaining < 0 {
		remaining = 0
	}

	expired := remaining == 0
	if expired {
		// one-shot: no repeat signals until re-armed
		that.armed = false
	}
	that.mu.Unlock()

	that.publishRemaining(remaining)

	if expired {
		that.logger.Debug("turn deadline expired")
		select {
		case that.expired <- now:
		default:
		}
	}
}

func (that *Clock) publishRemaining(remaining time.Duration) {
	select {
	case that.remaining <- remaining:
		return
	default:
	}

	// consumer lagged; replace the stale value
	select {
	case <-that.remaining:
	default:
	}

	select {
	case that.remaining <- remaining:
	default:
	}
}
