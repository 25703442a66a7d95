// Package ratelimit implements the per-principal sliding-window rate limiter:
// a timestamp log with three horizons (minute, hour, day), an in-flight
// counter for concurrency caps, and a TTL-cached config resolver.
package ratelimit

import (
	"sync"
	"time"
)

// window holds the mutable rate-limit state for one principal: an ordered
// log of request start times plus the set of started-but-not-completed
// request ids. Created lazily on first reference, never destroyed.
type window struct {
	mu         sync.Mutex
	timestamps []time.Time
	inFlight   map[string]time.Time // request id → started at
}

func newWindow() *window {
	return &window{inFlight: make(map[string]time.Time)}
}

// add appends a request start and marks the id in flight.
func (w *window) add(now time.Time, requestID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.timestamps = append(w.timestamps, now)
	w.inFlight[requestID] = now
}

// complete clears an in-flight id. Unknown ids are tolerated; the counter
// never goes below zero.
func (w *window) complete(requestID string) (time.Duration, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	started, ok := w.inFlight[requestID]
	if !ok {
		return 0, false
	}
	delete(w.inFlight, requestID)
	return time.Since(started), true
}

// countSince returns the number of retained timestamps in (since, now].
// Timestamps are appended in order, so a binary search finds the boundary.
func (w *window) countSince(since time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.timestamps) - w.searchAfter(since)
}

// oldestSince returns the earliest retained timestamp after since, and
// whether one exists.
func (w *window) oldestSince(since time.Time) (time.Time, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	i := w.searchAfter(since)
	if i >= len(w.timestamps) {
		return time.Time{}, false
	}
	return w.timestamps[i], true
}

// evictBefore drops timestamps at or before cutoff.
func (w *window) evictBefore(cutoff time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	i := w.searchAfter(cutoff)
	if i > 0 {
		w.timestamps = append(w.timestamps[:0:0], w.timestamps[i:]...)
	}
}

// inFlightCount returns the number of started requests not yet completed.
func (w *window) inFlightCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.inFlight)
}

// idle reports whether the window retains no timestamps and no in-flight
// requests.
func (w *window) idle() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.timestamps) == 0 && len(w.inFlight) == 0
}

// searchAfter returns the index of the first timestamp strictly after t.
// Caller holds w.mu.
func (w *window) searchAfter(t time.Time) int {
	lo, hi := 0, len(w.timestamps)
	for lo < hi {
		mid := (lo + hi) / 2
		if w.timestamps[mid].After(t) {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}
