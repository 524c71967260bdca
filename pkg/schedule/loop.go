package schedule

import (
	"sync"
	"time"
)

// Loop runs fn every interval. The next run is scheduled only after the
// current one returned, so slow work never overlaps with itself.
type Loop struct {
	clock    Clock
	interval time.Duration
	fn       func()

	mu      sync.Mutex
	timer   Timer
	stopped bool
}

// Every starts a Loop whose first run happens one interval from now.
func Every(clock Clock, interval time.Duration, fn func()) *Loop {
	l := &Loop{clock: clock, interval: interval, fn: fn}
	l.mu.Lock()
	l.armLocked()
	l.mu.Unlock()
	return l
}

func (l *Loop) armLocked() {
	if l.stopped || l.interval <= 0 {
		return
	}
	l.timer = l.clock.AfterFunc(l.interval, l.run)
}

func (l *Loop) run() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()

	l.fn()

	l.mu.Lock()
	l.armLocked()
	l.mu.Unlock()
}

// Stop cancels the pending run. A run that is already executing finishes but
// is not re-armed. Stop is safe to call more than once.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopped = true
	if l.timer != nil {
		l.timer.Stop()
	}
}

// Stopper is anything a Group can cancel.
type Stopper interface {
	Stop()
}

// StopFunc adapts a plain function to Stopper.
type StopFunc func()

func (f StopFunc) Stop() { f() }

// Group collects loops and timers so teardown can cancel all of them at once.
type Group struct {
	mu      sync.Mutex
	members []Stopper
	stopped bool
}

// Add registers s. If the group was already stopped, s is stopped immediately.
func (g *Group) Add(s Stopper) {
	g.mu.Lock()
	if g.stopped {
		g.mu.Unlock()
		s.Stop()
		return
	}
	g.members = append(g.members, s)
	g.mu.Unlock()
}

// StopAll stops every member in reverse registration order.
func (g *Group) StopAll() {
	g.mu.Lock()
	members := g.members
	g.members = nil
	g.stopped = true
	g.mu.Unlock()

	for i := len(members) - 1; i >= 0; i-- {
		members[i].Stop()
	}
}
