package timer

import "time"

// Clock supplies the current instant. The session uses SystemClock; tests
// substitute a manual clock.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock reads the monotonic wall clock.
var SystemClock Clock = systemClock{}

// Timer is a resettable pair of deadlines sharing one start instant.
// The zero value is disarmed and uses SystemClock.
type Timer struct {
	clock Clock

	// start is when Arm was called, intStart when the intermediate
	// deadline was last (re)armed.
	start    time.Time
	intStart time.Time

	intermediate time.Duration
	final        time.Duration

	armed bool
}

// New returns a disarmed timer reading time from clock.
func New(clock Clock) *Timer {
	if clock == nil {
		clock = SystemClock
	}
	return &Timer{clock: clock}
}

func (t *Timer) now() time.Time {
	if t.clock == nil {
		return SystemClock.Now()
	}
	return t.clock.Now()
}

// Arm starts both deadlines from now. An intermediate delay longer than
// final is clamped to final.
func (t *Timer) Arm(intermediate, final time.Duration) {
	if final < 0 {
		final = 0
	}
	if intermediate > final {
		intermediate = final
	}
	if intermediate < 0 {
		intermediate = 0
	}
	now := t.now()
	t.start = now
	t.intStart = now
	t.intermediate = intermediate
	t.final = final
	t.armed = true
}

// RearmIntermediate restarts the intermediate deadline d from now without
// touching the final deadline. The new intermediate deadline is clamped so
// it never lies past the final one.
func (t *Timer) RearmIntermediate(d time.Duration) {
	if !t.armed {
		return
	}
	now := t.now()
	if left := t.finalAt().Sub(now); d > left {
		d = left
	}
	if d < 0 {
		d = 0
	}
	t.intStart = now
	t.intermediate = d
}

// Disarm cancels both deadlines.
func (t *Timer) Disarm() {
	t.armed = false
	t.intermediate = 0
	t.final = 0
}

// Armed reports whether deadlines are pending.
func (t *Timer) Armed() bool { return t.armed }

// IntermediateElapsed reports whether the intermediate deadline has passed.
// A disarmed timer reports false.
func (t *Timer) IntermediateElapsed() bool {
	return t.armed && !t.now().Before(t.intermediateAt())
}

// FinalElapsed reports whether the final deadline has passed. A disarmed
// timer reports false.
func (t *Timer) FinalElapsed() bool {
	return t.armed && !t.now().Before(t.finalAt())
}

// Remaining returns how long a caller may block before it must re-check
// the timer: the time to the nearer deadline that has not yet passed.
// It returns 0 when disarmed or when the final deadline has passed.
func (t *Timer) Remaining() time.Duration {
	if !t.armed {
		return 0
	}
	now := t.now()
	next := t.finalAt()
	if ia := t.intermediateAt(); now.Before(ia) && ia.Before(next) {
		next = ia
	}
	if d := next.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Intermediate returns the current intermediate delay.
func (t *Timer) Intermediate() time.Duration { return t.intermediate }

// Final returns the final delay.
func (t *Timer) Final() time.Duration { return t.final }

// Started returns the instant the timer was last armed.
func (t *Timer) Started() time.Time { return t.start }

func (t *Timer) intermediateAt() time.Time { return t.intStart.Add(t.intermediate) }

func (t *Timer) finalAt() time.Time { return t.start.Add(t.final) }
