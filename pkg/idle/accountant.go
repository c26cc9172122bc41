package idle

import (
	"sync"
	"sync/atomic"
	"time"
)

// Accountant tracks the last-activity stamp and emits idle events.
type Accountant struct {
	timeout time.Duration
	onIdle  func()

	// base anchors the monotonic clock; last holds nanoseconds of
	// activity elapsed since base.
	base time.Time
	last atomic.Int64

	mu    sync.Mutex
	armed bool
	timer *time.Timer
}

// New creates an Accountant. onIdle is invoked (from a timer
// goroutine) when the armed accountant sees no activity for timeout;
// the accountant disarms itself first, so the callback fires at most
// once per arming.
func New(timeout time.Duration, onIdle func()) *Accountant {
	a := &Accountant{
		timeout: timeout,
		onIdle:  onIdle,
		base:    time.Now(),
	}
	return a
}

// Touch records activity at the current time. Safe for concurrent use;
// the stamp only moves forward.
func (a *Accountant) Touch() {
	now := time.Since(a.base).Nanoseconds()
	for {
		prev := a.last.Load()
		if now <= prev {
			return
		}
		if a.last.CompareAndSwap(prev, now) {
			return
		}
	}
}

// LastActivity returns the time of the most recent recorded activity.
func (a *Accountant) LastActivity() time.Time {
	return a.base.Add(time.Duration(a.last.Load()))
}

// IdleFor returns how long the backend has been without activity.
func (a *Accountant) IdleFor() time.Duration {
	d := time.Since(a.base) - time.Duration(a.last.Load())
	if d < 0 {
		return 0
	}
	return d
}

// Arm starts idle tracking from now. Activity stamps are recorded even
// while disarmed; arming stamps the clock so a long-off backend does
// not fire immediately on its next READY.
func (a *Accountant) Arm() {
	a.Touch()

	a.mu.Lock()
	defer a.mu.Unlock()
	a.armed = true
	a.scheduleLocked(a.timeout)
}

// Disarm stops idle tracking. Stamps continue to be recorded.
func (a *Accountant) Disarm() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.armed = false
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}

// Armed reports whether idle tracking is active.
func (a *Accountant) Armed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.armed
}

func (a *Accountant) scheduleLocked(d time.Duration) {
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = time.AfterFunc(d, a.fire)
}

// fire checks the stamp when the timer expires. Activity since the
// last schedule pushes the deadline out by the remaining window
// instead of firing.
func (a *Accountant) fire() {
	a.mu.Lock()
	if !a.armed {
		a.mu.Unlock()
		return
	}

	idle := time.Since(a.base) - time.Duration(a.last.Load())
	if idle < a.timeout {
		a.scheduleLocked(a.timeout - idle)
		a.mu.Unlock()
		return
	}

	a.armed = false
	a.timer = nil
	a.mu.Unlock()

	if a.onIdle != nil {
		a.onIdle()
	}
}
