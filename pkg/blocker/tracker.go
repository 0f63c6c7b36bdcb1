package blocker

import (
	"sort"
	"sync"
	"time"
)

// Tracker counts authentication failures per source over a sliding
// window. Timestamps at exactly now-window still count.
type Tracker struct {
	lock     sync.Mutex
	window   time.Duration
	failures map[string][]time.Time
}

func NewTracker(window time.Duration) *Tracker {
	return &Tracker{
		window:   window,
		failures: make(map[string][]time.Time),
	}
}

// Record applies one event and returns the failures left in the window
// ending at its timestamp. A success clears the source entirely.
func (t *Tracker) Record(source string, ts time.Time, outcome Outcome) int {
	t.lock.Lock()
	defer t.lock.Unlock()

	if outcome == Success {
		delete(t.failures, source)
		return 0
	}

	list := insert(t.failures[source], ts)
	list = expire(list, ts.Add(-t.window))
	t.failures[source] = list

	return len(list)
}

// Count returns the source's failures inside the window ending at now,
// dropping expired ones along the way.
func (t *Tracker) Count(source string, now time.Time) int {
	t.lock.Lock()
	defer t.lock.Unlock()

	list := expire(t.failures[source], now.Add(-t.window))
	if len(list) == 0 {
		delete(t.failures, source)
		return 0
	}

	t.failures[source] = list
	return len(list)
}

// Reset drops all failures for a source.
func (t *Tracker) Reset(source string) {
	t.lock.Lock()
	defer t.lock.Unlock()

	delete(t.failures, source)
}

// Prune expires failures for every source and removes the sources left
// empty, returning how many were removed.
func (t *Tracker) Prune(now time.Time) int {
	t.lock.Lock()
	defer t.lock.Unlock()

	cutoff := now.Add(-t.window)
	removed := 0

	for source, list := range t.failures {
		list = expire(list, cutoff)
		if len(list) == 0 {
			delete(t.failures, source)
			removed++
			continue
		}
		t.failures[source] = list
	}

	return removed
}

// Sources returns the failure count per tracked source.
func (t *Tracker) Sources() map[string]int {
	t.lock.Lock()
	defer t.lock.Unlock()

	res := make(map[string]int, len(t.failures))
	for source, list := range t.failures {
		res[source] = len(list)
	}

	return res
}

// Snapshot copies the tracked failures for persistence.
func (t *Tracker) Snapshot() map[string][]time.Time {
	t.lock.Lock()
	defer t.lock.Unlock()

	res := make(map[string][]time.Time, len(t.failures))
	for source, list := range t.failures {
		res[source] = append([]time.Time(nil), list...)
	}

	return res
}

// Restore replaces the tracked failures, re-sorting in case the snapshot
// was edited by hand.
func (t *Tracker) Restore(failures map[string][]time.Time) {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.failures = make(map[string][]time.Time, len(failures))
	for source, list := range failures {
		if len(list) == 0 {
			continue
		}

		cp := append([]time.Time(nil), list...)
		sort.Slice(cp, func(i, j int) bool { return cp[i].Before(cp[j]) })
		t.failures[source] = cp
	}
}

// insert keeps the list ordered by timestamp. Events from a single log
// stream are near-monotonic, so the scan is short.
func insert(list []time.Time, ts time.Time) []time.Time {
	i := len(list)
	for i > 0 && list[i-1].After(ts) {
		i--
	}

	list = append(list, time.Time{})
	copy(list[i+1:], list[i:])
	list[i] = ts
	return list
}

// expire drops timestamps strictly older than cutoff. The list is
// ordered, so only a leading run can go.
func expire(list []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(list) && list[i].Before(cutoff) {
		i++
	}

	if i == 0 {
		return list
	}
	return append(list[:0], list[i:]...)
}
