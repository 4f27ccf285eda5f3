package watchdog

import (
	"time"
)

// EscalationPolicy bounds the re-notification interval while an error persists.
type EscalationPolicy struct {
	MinInterval time.Duration
	MaxInterval time.Duration
}

// Next returns the interval that follows current: MinInterval when nothing
// has fired yet, otherwise double, capped at MaxInterval.
func (p EscalationPolicy) Next(current time.Duration) time.Duration {
	if current <= 0 {
		return p.MinInterval
	}
	next := current * 2
	if next > p.MaxInterval || next <= 0 {
		next = p.MaxInterval
	}
	return next
}

// Timer is a scheduled callback that can be stopped.
type Timer interface {
	Stop() bool
}

// Scheduler arms one-shot timers. The production scheduler wraps
// time.AfterFunc; tests substitute a manual one.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// RealScheduler schedules callbacks on the runtime timer heap.
type RealScheduler struct{}

// AfterFunc wraps time.AfterFunc.
func (RealScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// EscalationScheduler is the recurring re-notification task for one
// ErrorReported period. The Machine creates it on entering the state and
// cancels it on leaving; a new period always starts again at MinInterval.
//
// It is not safe for concurrent use. All methods run under the Machine lock.
type EscalationScheduler struct {
	policy    EscalationPolicy
	sched     Scheduler
	fire      func(*EscalationScheduler)
	interval  time.Duration
	nextAt    time.Time
	timer     Timer
	fired     int
	cancelled bool
}

func newEscalationScheduler(policy EscalationPolicy, sched Scheduler, fire func(*EscalationScheduler)) *EscalationScheduler {
	return &EscalationScheduler{
		policy: policy,
		sched:  sched,
		fire:   fire,
	}
}

// start arms the first firing at MinInterval.
func (e *EscalationScheduler) start(now time.Time) {
	e.interval = e.policy.Next(0)
	e.arm(now)
}

// advance records a firing and arms the next one at the grown interval.
func (e *EscalationScheduler) advance(now time.Time) {
	e.fired++
	e.interval = e.policy.Next(e.interval)
	e.arm(now)
}

func (e *EscalationScheduler) arm(now time.Time) {
	if e.cancelled {
		return
	}
	e.nextAt = now.Add(e.interval)
	e.timer = e.sched.AfterFunc(e.interval, func() { e.fire(e) })
}

// cancel stops the pending firing. Cancelling twice is a no-op; a callback
// already in flight is discarded by the Machine because cancelled is set.
func (e *EscalationScheduler) cancel() {
	if e.cancelled {
		return
	}
	e.cancelled = true
	if e.timer != nil {
		e.timer.Stop()
	}
}

// Interval is the wait before the pending firing.
func (e *EscalationScheduler) Interval() time.Duration { return e.interval }

// NextAt is when the pending firing is due.
func (e *EscalationScheduler) NextAt() time.Time { return e.nextAt }

// Fired counts firings so far in this error period.
func (e *EscalationScheduler) Fired() int { return e.fired }
