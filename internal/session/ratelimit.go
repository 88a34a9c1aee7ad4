package session

import (
	"sync"
	"time"
)

// rollingWindow admits at most limit events per window, counted over a true
// rolling window of event timestamps. The Nth+1 call inside the window is
// rejected; a call a full window after the oldest admitted event succeeds.
type rollingWindow struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	times  []time.Time
	now    func() time.Time
}

func newRollingWindow(limit int, window time.Duration) *rollingWindow {
	return &rollingWindow{limit: limit, window: window, now: time.Now}
}

// allow consumes one unit if the budget permits.
func (w *rollingWindow) allow() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.now()
	w.pruneLocked(now)
	if len(w.times) >= w.limit {
		return false
	}
	w.times = append(w.times, now)
	return true
}

// prune drops expired timestamps; called by the janitor so idle sessions do
// not hold a window's worth of entries forever.
func (w *rollingWindow) prune() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pruneLocked(w.now())
}

func (w *rollingWindow) pruneLocked(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.times) && !w.times[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.times = append(w.times[:0], w.times[i:]...)
	}
}

// ipCounter caps concurrent connections per source address. Entries are
// removed as soon as their count reaches zero.
type ipCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func newIPCounter() *ipCounter {
	return &ipCounter{counts: make(map[string]int)}
}

// tryAcquire admits a connection from ip unless the cap is already reached.
func (c *ipCounter) tryAcquire(ip string, max int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts[ip] >= max {
		return false
	}
	c.counts[ip]++
	return true
}

func (c *ipCounter) release(ip string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n, ok := c.counts[ip]; ok {
		if n <= 1 {
			delete(c.counts, ip)
		} else {
			c.counts[ip] = n - 1
		}
	}
}
