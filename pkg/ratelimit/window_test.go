package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWindowCountSince(t *testing.T) {
	w := newWindow()
	base := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	w.add(base, "r1")
	w.add(base.Add(10*time.Second), "r2")
	w.add(base.Add(70*time.Second), "r3")

	assert.Equal(t, 3, w.countSince(base.Add(-time.Second)))
	assert.Equal(t, 2, w.countSince(base))           // strictly after
	assert.Equal(t, 1, w.countSince(base.Add(time.Minute)))
	assert.Equal(t, 0, w.countSince(base.Add(2*time.Minute)))
}

func TestWindowEvictBefore(t *testing.T) {
	w := newWindow()
	base := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		w.add(base.Add(time.Duration(i)*time.Minute), "r")
	}

	w.evictBefore(base.Add(2 * time.Minute))
	assert.Equal(t, 2, w.countSince(time.Time{}))

	// Retained counts stay exact after eviction.
	assert.Equal(t, 1, w.countSince(base.Add(3*time.Minute)))
}

func TestWindowInFlight(t *testing.T) {
	w := newWindow()
	now := time.Now()

	w.add(now, "r1")
	w.add(now, "r2")
	assert.Equal(t, 2, w.inFlightCount())

	_, ok := w.complete("r1")
	assert.True(t, ok)
	assert.Equal(t, 1, w.inFlightCount())

	// Idempotent: completing again or completing unknown ids is tolerated.
	_, ok = w.complete("r1")
	assert.False(t, ok)
	_, ok = w.complete("never-started")
	assert.False(t, ok)
	assert.Equal(t, 1, w.inFlightCount())
}

func TestWindowOldestSince(t *testing.T) {
	w := newWindow()
	base := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	_, ok := w.oldestSince(base)
	assert.False(t, ok)

	w.add(base.Add(time.Second), "r1")
	w.add(base.Add(time.Minute), "r2")

	oldest, ok := w.oldestSince(base)
	assert.True(t, ok)
	assert.Equal(t, base.Add(time.Second), oldest)

	oldest, ok = w.oldestSince(base.Add(30*time.Second))
	assert.True(t, ok)
	assert.Equal(t, base.Add(time.Minute), oldest)
}

func TestWindowIdle(t *testing.T) {
	w := newWindow()
	assert.True(t, w.idle())

	w.add(time.Now(), "r1")
	assert.False(t, w.idle())

	w.complete("r1")
	assert.False(t, w.idle()) // timestamp still retained

	w.evictBefore(time.Now().Add(time.Second))
	assert.True(t, w.idle())
}
