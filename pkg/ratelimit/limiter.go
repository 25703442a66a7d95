package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/relayops/agentgate/pkg/models"
	"github.com/relayops/agentgate/pkg/storage"
)

// Window widths and denial retry hints, in that order of precedence.
const (
	MinuteWindow = time.Minute
	HourWindow   = time.Hour
	DayWindow    = 24 * time.Hour

	RetryAfterMinute     = 60
	RetryAfterHour       = 3600
	RetryAfterDay        = 86400
	RetryAfterConcurrent = 5
)

// Verdict is the outcome of a rate-limit check.
type Verdict struct {
	Allowed bool `json:"allowed"`
	// RetryAfter is the suggested wait in seconds; set on denials only.
	RetryAfter int `json:"retry_after,omitempty"`
}

// Snapshot reports counts and remaining quota per sub-window. It feeds
// response header emission and never reflects a mutation.
type Snapshot struct {
	LimitMinute     int       `json:"limit_minute"`
	RemainingMinute int       `json:"remaining_minute"`
	ResetMinute     time.Time `json:"reset_minute"`
	LimitHour       int       `json:"limit_hour"`
	RemainingHour   int       `json:"remaining_hour"`
	ResetHour       time.Time `json:"reset_hour"`
	LimitDay        int       `json:"limit_day"`
	RemainingDay    int       `json:"remaining_day"`
	ResetDay        time.Time `json:"reset_day"`
	InFlight        int       `json:"in_flight"`
	Concurrent      int       `json:"concurrent"`
	Unlimited       bool      `json:"unlimited"`
	RetryAfter      int       `json:"retry_after,omitempty"`
}

// RateLimiter answers admission checks against per-principal sliding
// windows. State for a given principal is linearizable (each window carries
// its own mutex); different principals proceed independently.
type RateLimiter struct {
	resolver *ConfigResolver
	store    storage.Store

	mu      sync.RWMutex
	windows map[string]*window

	// lastActivity is the unix-nano time of the most recent Record call.
	// The cleanup service reads it for idle detection.
	lastActivity atomic.Int64

	now func() time.Time
}

// NewRateLimiter creates a limiter. store may be nil (no audit rows).
func NewRateLimiter(resolver *ConfigResolver, store storage.Store) *RateLimiter {
	l := &RateLimiter{
		resolver: resolver,
		store:    store,
		windows:  make(map[string]*window),
		now:      time.Now,
	}
	l.lastActivity.Store(time.Now().UnixNano())
	return l
}

// Check evaluates the sliding windows for a principal and returns a verdict
// plus a snapshot of the counters. It does not mutate the windows.
//
// Denial precedence: per-minute, per-hour, per-day, then the concurrency
// cap. Unlimited configs and admins short-circuit to allowed — except an
// admin presenting an API key, which is limited as that API client.
func (l *RateLimiter) Check(ctx context.Context, p models.Principal, isAdmin bool) (Verdict, Snapshot) {
	now := l.now()
	w := l.windowFor(p.Key())
	w.evictBefore(now.Add(-DayWindow))

	cfg := l.resolver.Resolve(ctx, p)
	snap := l.snapshotLocked(w, cfg, now)

	if cfg.Unlimited {
		return Verdict{Allowed: true}, snap
	}
	if isAdmin && !p.IsAPIClient() {
		return Verdict{Allowed: true}, snap
	}

	retry := 0
	switch {
	case l.countIn(w, now, MinuteWindow) >= cfg.PerMinute:
		retry = RetryAfterMinute
	case l.countIn(w, now, HourWindow) >= cfg.PerHour:
		retry = RetryAfterHour
	case l.countIn(w, now, DayWindow) >= cfg.PerDay:
		retry = RetryAfterDay
	case w.inFlightCount() >= cfg.Concurrent:
		retry = RetryAfterConcurrent
	}
	if retry > 0 {
		snap.RetryAfter = retry
		return Verdict{Allowed: false, RetryAfter: retry}, snap
	}
	return Verdict{Allowed: true}, snap
}

// Record registers the start of an admitted request and returns an opaque
// request id. Complete must be called with that id on every exit path;
// forgetting it leaks concurrency quota for the principal.
//
// An audit row is written best-effort; a store failure is logged and
// swallowed.
func (l *RateLimiter) Record(ctx context.Context, p models.Principal, endpoint string) string {
	now := l.now()
	requestID := uuid.New().String()

	l.windowFor(p.Key()).add(now, requestID)
	l.lastActivity.Store(now.UnixNano())

	if l.store != nil {
		entry := models.RequestLogEntry{
			ID:        requestID,
			UserID:    p.UserID,
			APIKeyID:  p.APIKeyID,
			Endpoint:  endpoint,
			Status:    "admitted",
			CreatedAt: now,
		}
		if err := l.store.LogRequest(ctx, entry); err != nil {
			slog.Warn("Request log write failed",
				"principal", p.Key(), "endpoint", endpoint, "error", err)
		}
	}
	return requestID
}

// Complete marks a request finished, releasing its concurrency slot. It is
// idempotent: unknown or already-completed ids are silently tolerated.
func (l *RateLimiter) Complete(_ context.Context, p models.Principal, requestID string, duration time.Duration) {
	w := l.windowFor(p.Key())
	if _, ok := w.complete(requestID); !ok {
		return
	}
	if duration > 0 {
		slog.Debug("Request completed",
			"principal", p.Key(), "request_id", requestID, "duration_ms", duration.Milliseconds())
	}
}

// Snapshot is the read-only variant of Check, used for header emission on
// paths that never consult the limiter. It never mutates window state.
func (l *RateLimiter) Snapshot(ctx context.Context, p models.Principal, isAdmin bool) Snapshot {
	now := l.now()
	w := l.windowFor(p.Key())
	cfg := l.resolver.Resolve(ctx, p)
	snap := l.snapshotLocked(w, cfg, now)
	if cfg.Unlimited || (isAdmin && !p.IsAPIClient()) {
		snap.Unlimited = true
	}
	return snap
}

// InFlight returns the current in-flight count for a principal.
func (l *RateLimiter) InFlight(p models.Principal) int {
	return l.windowFor(p.Key()).inFlightCount()
}

// LastActivity returns the time of the most recent Record call.
func (l *RateLimiter) LastActivity() time.Time {
	return time.Unix(0, l.lastActivity.Load())
}

// Cleanup evicts timestamps older than the day horizon from every window,
// drops windows with no retained state, and asks the store to prune its
// request log. Store errors are logged and swallowed.
func (l *RateLimiter) Cleanup(ctx context.Context) {
	cutoff := l.now().Add(-DayWindow)

	l.mu.Lock()
	for key, w := range l.windows {
		w.evictBefore(cutoff)
		if w.idle() {
			delete(l.windows, key)
		}
	}
	l.mu.Unlock()

	if l.store != nil {
		if n, err := l.store.PruneRequestLog(ctx, cutoff); err != nil {
			slog.Warn("Request log prune failed", "error", err)
		} else if n > 0 {
			slog.Info("Pruned request log", "rows", n)
		}
	}
}

// windowFor returns the window for a principal key, creating it lazily.
func (l *RateLimiter) windowFor(key string) *window {
	l.mu.RLock()
	w, ok := l.windows[key]
	l.mu.RUnlock()
	if ok {
		return w
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if w, ok = l.windows[key]; ok {
		return w
	}
	w = newWindow()
	l.windows[key] = w
	return w
}

func (l *RateLimiter) countIn(w *window, now time.Time, width time.Duration) int {
	return w.countSince(now.Add(-width))
}

// snapshotLocked builds a snapshot from the current window counts. Reset
// times are derived from the oldest retained timestamp in each sub-window;
// with no traffic the window resets immediately.
func (l *RateLimiter) snapshotLocked(w *window, cfg models.LimitConfig, now time.Time) Snapshot {
	snap := Snapshot{
		LimitMinute: cfg.PerMinute,
		LimitHour:   cfg.PerHour,
		LimitDay:    cfg.PerDay,
		Concurrent:  cfg.Concurrent,
		InFlight:    w.inFlightCount(),
		Unlimited:   cfg.Unlimited,
	}
	snap.RemainingMinute, snap.ResetMinute = l.horizon(w, now, MinuteWindow, cfg.PerMinute)
	snap.RemainingHour, snap.ResetHour = l.horizon(w, now, HourWindow, cfg.PerHour)
	snap.RemainingDay, snap.ResetDay = l.horizon(w, now, DayWindow, cfg.PerDay)
	return snap
}

func (l *RateLimiter) horizon(w *window, now time.Time, width time.Duration, limit int) (remaining int, reset time.Time) {
	since := now.Add(-width)
	count := w.countSince(since)
	remaining = limit - count
	if remaining < 0 {
		remaining = 0
	}
	if oldest, ok := w.oldestSince(since); ok {
		reset = oldest.Add(width)
	} else {
		reset = now
	}
	return remaining, reset
}
