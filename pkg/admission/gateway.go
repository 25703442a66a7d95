// Package admission combines the rate limiter and the wait queue behind a
// single admit call made by the transport layer for every limited request.
package admission

import (
	"context"
	"errors"
	"time"

	"github.com/relayops/agentgate/pkg/models"
	"github.com/relayops/agentgate/pkg/queue"
	"github.com/relayops/agentgate/pkg/ratelimit"
)

// Outcome discriminates admission results.
type Outcome string

const (
	// OutcomeAllowed admits the request for immediate execution.
	OutcomeAllowed Outcome = "allowed"
	// OutcomeQueued parked the request in the wait queue.
	OutcomeQueued Outcome = "queued"
	// OutcomeThrottled denies the request outright (queue full or
	// disabled).
	OutcomeThrottled Outcome = "throttled"
)

// Decision is the result of a single admit call.
type Decision struct {
	Outcome Outcome `json:"outcome"`
	// RequestID is set on allowed outcomes and must be passed to
	// Complete on every exit path.
	RequestID string `json:"request_id,omitempty"`
	// Queue placement, set on queued outcomes.
	QueueID    string        `json:"queue_id,omitempty"`
	Rank       int           `json:"rank,omitempty"`
	QueueTotal int           `json:"queue_total,omitempty"`
	ETA        time.Duration `json:"eta,omitempty"`
	// RetryAfter is the suggested wait in seconds on throttled outcomes.
	RetryAfter int `json:"retry_after,omitempty"`
	// Snapshot always reflects the principal's counters at admit time.
	Snapshot ratelimit.Snapshot `json:"snapshot"`
}

// QueuedPayload is the opaque payload stored with a queued request.
type QueuedPayload struct {
	Endpoint string    `json:"endpoint"`
	QueuedAt time.Time `json:"queued_at"`
}

// Gateway is the single admission entry point for the transport layer.
type Gateway struct {
	limiter  *ratelimit.RateLimiter
	resolver *ratelimit.ConfigResolver
	queue    *queue.Queue
}

// NewGateway wires a gateway over its two collaborators.
func NewGateway(limiter *ratelimit.RateLimiter, resolver *ratelimit.ConfigResolver, q *queue.Queue) *Gateway {
	return &Gateway{limiter: limiter, resolver: resolver, queue: q}
}

// Admit runs the rate-limit check for a principal and either admits the
// request, parks it in the wait queue, or throttles it. Queued requests
// are not retried by the gateway; callers poll their position and re-admit.
func (g *Gateway) Admit(ctx context.Context, p models.Principal, endpoint string, isAdmin bool) Decision {
	verdict, snap := g.limiter.Check(ctx, p, isAdmin)
	if verdict.Allowed {
		id := g.limiter.Record(ctx, p, endpoint)
		// Headers report the state with this request already counted.
		snap.InFlight++
		if snap.RemainingMinute > 0 {
			snap.RemainingMinute--
		}
		if snap.RemainingHour > 0 {
			snap.RemainingHour--
		}
		if snap.RemainingDay > 0 {
			snap.RemainingDay--
		}
		return Decision{
			Outcome:   OutcomeAllowed,
			RequestID: id,
			Snapshot:  snap,
		}
	}

	cfg := g.resolver.Resolve(ctx, p)
	payload := QueuedPayload{Endpoint: endpoint, QueuedAt: time.Now()}
	id, err := g.queue.Enqueue(p.Key(), cfg.Priority, payload, nil)
	if errors.Is(err, queue.ErrQueueFull) {
		return Decision{
			Outcome:    OutcomeThrottled,
			RetryAfter: verdict.RetryAfter,
			Snapshot:   snap,
		}
	}

	pos := g.queue.PositionOf(p.Key())
	return Decision{
		Outcome:    OutcomeQueued,
		QueueID:    id,
		Rank:       pos.Rank,
		QueueTotal: pos.Total,
		ETA:        pos.ETA,
		RetryAfter: verdict.RetryAfter,
		Snapshot:   snap,
	}
}

// Complete releases the concurrency slot taken by an admitted request.
// Must be called exactly once per allowed Decision, on every exit path.
func (g *Gateway) Complete(ctx context.Context, p models.Principal, requestID string, duration time.Duration) {
	g.limiter.Complete(ctx, p, requestID, duration)
}

// Snapshot returns the read-only counter view used for header emission on
// paths that bypass admission.
func (g *Gateway) Snapshot(ctx context.Context, p models.Principal, isAdmin bool) ratelimit.Snapshot {
	return g.limiter.Snapshot(ctx, p, isAdmin)
}

// QueuePosition reports where a principal currently stands in the wait
// queue.
func (g *Gateway) QueuePosition(p models.Principal) queue.Position {
	return g.queue.PositionOf(p.Key())
}

// LeaveQueue removes a principal's queued request by id.
func (g *Gateway) LeaveQueue(id string) bool {
	return g.queue.Remove(id)
}

// QueueSize returns the number of parked requests.
func (g *Gateway) QueueSize() int {
	return g.queue.Size()
}
