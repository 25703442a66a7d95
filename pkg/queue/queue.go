// Package queue implements the priority wait queue that holds requests
// displaced by rate limits. Entries are ordered by (priority desc,
// enqueued-at asc) with ids breaking ties, and each principal holds at most
// one live entry. The queue is a capacity device: nothing drains it
// automatically, callers inspect position and decide when to retry.
package queue

import (
	"container/heap"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Defaults for queue construction.
const (
	DefaultMaxSize             = 100
	DefaultProcessTimeEstimate = 30 * time.Second
)

// ErrQueueFull is returned by Enqueue when the queue is at capacity.
// Callers treat it as a terminal 503-class outcome for the request.
var ErrQueueFull = errors.New("queue: full")

// Entry is a queued request. Immutable after enqueue.
type Entry struct {
	ID         string
	Principal  string // canonical principal key
	Priority   int    // higher is served earlier
	EnqueuedAt time.Time
	Payload    any // opaque to the queue

	// OnDequeue, when set, is invoked (outside the queue lock) after the
	// entry is removed by Dequeue.
	OnDequeue func(*Entry)

	index int // heap index, maintained by the heap interface
}

// Position reports where a principal stands in the queue.
type Position struct {
	Queued bool `json:"queued"`
	// Rank counts entries that would dequeue before this principal,
	// plus one: the next entry to dequeue has rank 1.
	Rank  int           `json:"rank"`
	Total int           `json:"total"`
	ETA   time.Duration `json:"eta"`
}

// Queue is a bounded priority queue with per-principal deduplication.
// All operations are serialized by a single mutex and never block on I/O.
type Queue struct {
	mu          sync.Mutex
	heap        entryHeap
	byPrincipal map[string]*Entry
	maxSize     int
	estimate    time.Duration

	now func() time.Time
}

// Option configures a Queue.
type Option func(*Queue)

// WithMaxSize caps the number of live entries. Zero means every enqueue is
// rejected; negative values fall back to the default.
func WithMaxSize(n int) Option {
	return func(q *Queue) {
		if n >= 0 {
			q.maxSize = n
		}
	}
}

// WithProcessTimeEstimate sets the per-entry estimate used for ETA
// computation.
func WithProcessTimeEstimate(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.estimate = d
		}
	}
}

// New creates an empty queue.
func New(opts ...Option) *Queue {
	q := &Queue{
		byPrincipal: make(map[string]*Entry),
		maxSize:     DefaultMaxSize,
		estimate:    DefaultProcessTimeEstimate,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue adds an entry for a principal. If the principal already has a
// live entry, the existing id is returned and nothing changes — neither
// position nor priority. Returns ErrQueueFull when at capacity.
func (q *Queue) Enqueue(principal string, priority int, payload any, onDequeue func(*Entry)) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if existing, ok := q.byPrincipal[principal]; ok {
		return existing.ID, nil
	}
	if len(q.heap) >= q.maxSize {
		return "", ErrQueueFull
	}

	e := &Entry{
		ID:         uuid.New().String(),
		Principal:  principal,
		Priority:   priority,
		EnqueuedAt: q.now(),
		Payload:    payload,
		OnDequeue:  onDequeue,
	}
	heap.Push(&q.heap, e)
	q.byPrincipal[principal] = e
	return e.ID, nil
}

// Dequeue removes and returns the highest-priority, earliest-enqueued
// entry, or nil when the queue is empty.
func (q *Queue) Dequeue() *Entry {
	q.mu.Lock()
	if len(q.heap) == 0 {
		q.mu.Unlock()
		return nil
	}
	e := heap.Pop(&q.heap).(*Entry)
	delete(q.byPrincipal, e.Principal)
	q.mu.Unlock()

	if e.OnDequeue != nil {
		e.OnDequeue(e)
	}
	return e
}

// Remove cancels an entry by id. Best-effort: unknown ids return false.
func (q *Queue) Remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, e := range q.heap {
		if e.ID == id {
			heap.Remove(&q.heap, e.index)
			delete(q.byPrincipal, e.Principal)
			return true
		}
	}
	return false
}

// PositionOf reports the principal's rank (1 if next to dequeue), the queue
// total, and an ETA of rank × the process-time estimate. The read is a
// consistent snapshot.
func (q *Queue) PositionOf(principal string) Position {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.byPrincipal[principal]
	if !ok {
		return Position{Total: len(q.heap)}
	}

	rank := 1
	for _, other := range q.heap {
		if other != e && q.heap.before(other, e) {
			rank++
		}
	}
	return Position{
		Queued: true,
		Rank:   rank,
		Total:  len(q.heap),
		ETA:    time.Duration(rank) * q.estimate,
	}
}

// Size returns the number of live entries.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap)
}

// Contains reports whether the principal has a live entry.
func (q *Queue) Contains(principal string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.byPrincipal[principal]
	return ok
}

// Clear drops all entries and returns how many were removed.
func (q *Queue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.heap)
	q.heap = nil
	q.byPrincipal = make(map[string]*Entry)
	return n
}

// entryHeap orders entries by (priority desc, enqueued-at asc, id asc).
type entryHeap []*Entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool { return h.before(h[i], h[j]) }

func (h entryHeap) before(a, b *Entry) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if !a.EnqueuedAt.Equal(b.EnqueuedAt) {
		return a.EnqueuedAt.Before(b.EnqueuedAt)
	}
	return a.ID < b.ID
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	e := x.(*Entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil // avoid memory leak
	*h = old[:n-1]
	return e
}
