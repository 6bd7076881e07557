package revert

import (
	"sync"
	"time"
)

// SlidingWindow admits at most limit events in any window-long interval,
// across all callers.
type SlidingWindow struct {
	mu     sync.Mutex
	window time.Duration
	limit  int
	events []time.Time
	now    func() time.Time
}

func NewSlidingWindow(window time.Duration, limit int) *SlidingWindow {
	return &SlidingWindow{window: window, limit: limit, now: time.Now}
}

// Allow records an event if there is room. Otherwise it reports how long
// until the oldest recorded event leaves the window.
func (w *SlidingWindow) Allow() (bool, time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	cutoff := now.Add(-w.window)
	drop := 0
	for drop < len(w.events) && !w.events[drop].After(cutoff) {
		drop++
	}
	w.events = w.events[drop:]

	if len(w.events) < w.limit {
		w.events = append(w.events, now)
		return true, 0
	}
	return false, w.events[0].Add(w.window).Sub(now)
}
