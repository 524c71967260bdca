package realtime

import (
	"sync"
	"time"
)

// Quota allows at most max events in any rolling window.
type Quota struct {
	max    int
	window time.Duration
	now    func() time.Time

	mu     sync.Mutex
	stamps []time.Time
}

func NewQuota(limit int, window time.Duration, now func() time.Time) *Quota {
	if now == nil {
		now = time.Now
	}
	return &Quota{max: limit, window: window, now: now}
}

func (q *Quota) pruneLocked(now time.Time) {
	cutoff := now.Add(-q.window)
	i := 0
	for i < len(q.stamps) && !q.stamps[i].After(cutoff) {
		i++
	}
	q.stamps = q.stamps[i:]
}

// Allow records one event and reports whether it fit into the window.
func (q *Quota) Allow() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()
	q.pruneLocked(now)
	if len(q.stamps) >= q.max {
		return false
	}
	q.stamps = append(q.stamps, now)
	return true
}

// Remaining reports how many events the current window still admits.
func (q *Quota) Remaining() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pruneLocked(q.now())
	return max(0, q.max-len(q.stamps))
}

func (q *Quota) Exhausted() bool {
	return q.Remaining() == 0
}
