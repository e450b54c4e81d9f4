// Package timer keeps a locally ticking countdown that is snapped to the
// authoritative remaining time whenever the server reports it.
package timer

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Clock is the subset of clockwork.Clock the reconciler needs.
// In production, use clockwork.NewRealClock(). In tests, a FakeClock.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) clockwork.Timer
}

// Reconciler counts down one unit per tick while running. It never decides a
// phase change; reaching zero is only reported through onTick.
//
// onTick is invoked without the reconciler lock held, so callers may read
// Remaining from inside it.
type Reconciler struct {
	clock  Clock
	tick   time.Duration
	onTick func(remaining int)

	mu          sync.Mutex
	remaining   int
	running     bool
	paused      bool
	frozenUntil time.Time
	gen         uint64
	pending     clockwork.Timer
}

// New builds a stopped reconciler. A zero tick defaults to one second.
func New(clock Clock, tick time.Duration, onTick func(remaining int)) *Reconciler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if tick <= 0 {
		tick = time.Second
	}
	if onTick == nil {
		onTick = func(int) {}
	}
	return &Reconciler{clock: clock, tick: tick, onTick: onTick}
}

// Start begins a fresh countdown from n, clearing pause and freeze.
func (r *Reconciler) Start(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remaining = clamp(n)
	r.running = r.remaining > 0
	r.paused = false
	r.frozenUntil = time.Time{}
	r.rescheduleLocked()
}

// Snap replaces the local value with an authoritative one and restarts the
// pending tick so the next decrement is a full interval away.
func (r *Reconciler) Snap(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remaining = clamp(n)
	r.running = r.remaining > 0
	r.rescheduleLocked()
}

// ForceZero ends the countdown immediately.
func (r *Reconciler) ForceZero() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remaining = 0
	r.running = false
	r.cancelLocked()
}

// Pause suspends ticking and keeps the current value.
func (r *Reconciler) Pause() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paused = true
	r.cancelLocked()
}

// Resume continues a paused countdown.
func (r *Reconciler) Resume() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paused = false
	r.rescheduleLocked()
}

// Freeze suspends the local decrement for d. Ticks still fire and Snap still
// applies while frozen.
func (r *Reconciler) Freeze(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozenUntil = r.clock.Now().Add(d)
	log.Debug().Dur("duration", d).Int("remaining", r.remaining).Msg("countdown frozen")
}

// Stop cancels any pending tick. No onTick call happens after Stop returns,
// except one already in flight.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running = false
	r.paused = false
	r.frozenUntil = time.Time{}
	r.cancelLocked()
}

// Remaining returns the current local value.
func (r *Reconciler) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.remaining
}

// Frozen reports whether a freeze is in effect.
func (r *Reconciler) Frozen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frozenLocked()
}

// Running reports whether ticks are scheduled.
func (r *Reconciler) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running && !r.paused
}

func (r *Reconciler) frozenLocked() bool {
	return !r.frozenUntil.IsZero() && r.clock.Now().Before(r.frozenUntil)
}

func (r *Reconciler) cancelLocked() {
	r.gen++
	if r.pending != nil {
		r.pending.Stop()
		r.pending = nil
	}
}

func (r *Reconciler) rescheduleLocked() {
	r.cancelLocked()
	if !r.running || r.paused {
		return
	}
	gen := r.gen
	r.pending = r.clock.AfterFunc(r.tick, func() { r.fire(gen) })
}

func (r *Reconciler) fire(gen uint64) {
	r.mu.Lock()
	if gen != r.gen || !r.running || r.paused {
		r.mu.Unlock()
		return
	}
	if !r.frozenLocked() && r.remaining > 0 {
		r.remaining--
	}
	remaining := r.remaining
	r.pending = nil
	if remaining > 0 {
		r.rescheduleLocked()
	} else {
		r.running = false
		r.gen++
	}
	r.mu.Unlock()

	r.onTick(remaining)
}

func clamp(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
