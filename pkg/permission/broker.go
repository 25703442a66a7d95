package permission

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/relayops/agentgate/pkg/models"
	"github.com/relayops/agentgate/pkg/storage"
)

// DefaultDecisionTimeout bounds how long Request blocks awaiting a human
// decision before it is denied.
const DefaultDecisionTimeout = 300 * time.Second

// Deny reasons surfaced to the agent.
const (
	ReasonTimedOut  = "timed out"
	ReasonCancelled = "cancelled"
)

// ErrNotFound is returned by Respond and Cancel for unknown request ids.
var ErrNotFound = errors.New("permission: request not found")

// EventKind discriminates broadcast payloads.
type EventKind string

const (
	// EventRequest announces a newly queued permission request.
	EventRequest EventKind = "permission.request"
	// EventQueueUpdate announces resolved requests and the remaining count.
	EventQueueUpdate EventKind = "permission.queue_update"
)

// Event is the broadcast payload delivered to the frontend channel.
// Delivery is best-effort; broker correctness never depends on it.
type Event struct {
	Kind            EventKind      `json:"kind"`
	SessionID       string         `json:"session_id"`
	RequestID       string         `json:"request_id,omitempty"`
	ToolName        string         `json:"tool_name,omitempty"`
	ToolInput       map[string]any `json:"tool_input,omitempty"`
	QueuePosition   int            `json:"queue_position,omitempty"`
	QueueTotal      int            `json:"queue_total"`
	ResolvedIDs     []string       `json:"resolved_ids,omitempty"`
	AutoResolvedIDs []string       `json:"auto_resolved_ids,omitempty"`
}

// BroadcastFunc delivers an event to observers. The broker tolerates
// panics and never blocks its own correctness on delivery.
type BroadcastFunc func(Event)

// Request describes one tool invocation awaiting permission.
type Request struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	ProfileID string         `json:"profile_id"`
	ToolName  string         `json:"tool_name"`
	ToolInput map[string]any `json:"tool_input"`
	CreatedAt time.Time      `json:"created_at"`
}

// Outcome is the terminal result of a permission request. Exactly one
// outcome is delivered per request.
type Outcome struct {
	Decision models.Decision `json:"decision"`
	// Message carries the deny reason ("timed out", "cancelled", or a
	// human-supplied message). Empty on allows.
	Message string `json:"message,omitempty"`
	// UpdatedInput is the (possibly edited) tool input on allows.
	UpdatedInput map[string]any `json:"updated_input,omitempty"`
	// RuleID is set when a rule decided the request.
	RuleID string `json:"rule_id,omitempty"`
}

// RespondResult reports what a Respond call did.
type RespondResult struct {
	Resolved        bool     `json:"resolved"`
	AutoResolvedIDs []string `json:"auto_resolved_ids,omitempty"`
}

// pendingRequest pairs a request with its one-shot completion channel.
// The channel is buffered so the deciding goroutine never blocks; the
// first setter wins because removal from the pending map and the send
// happen under the broker mutex.
type pendingRequest struct {
	req  Request
	done chan Outcome
}

// Broker gates tool invocations from running agents. A single mutex
// serializes all mutations of the pending maps and session rules, which is
// what makes "install rule + resolve everything it matches" atomic.
type Broker struct {
	store   storage.Store
	timeout time.Duration

	mu           sync.Mutex
	sessions     map[string]map[string]*pendingRequest
	sessionRules map[string][]models.PermissionRule // installation order; newest last

	now func() time.Time
}

// Option configures a Broker.
type Option func(*Broker)

// WithDecisionTimeout overrides the default decision timeout.
func WithDecisionTimeout(d time.Duration) Option {
	return func(b *Broker) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// NewBroker creates a broker. store may be nil, in which case only
// session-scoped rules apply.
func NewBroker(store storage.Store, opts ...Option) *Broker {
	b := &Broker{
		store:        store,
		timeout:      DefaultDecisionTimeout,
		sessions:     make(map[string]map[string]*pendingRequest),
		sessionRules: make(map[string][]models.PermissionRule),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Request asks whether the agent may invoke a tool. It returns immediately
// when an installed rule matches; otherwise it queues the request, notifies
// observers, and blocks until a decision, cancellation, timeout, or context
// cancellation. Every request receives exactly one outcome.
func (b *Broker) Request(ctx context.Context, req Request, broadcast BroadcastFunc) Outcome {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = b.now()
	}

	if rule, ok := b.matchingRule(ctx, req); ok {
		out := outcomeFromRule(rule, req)
		return out
	}

	p := &pendingRequest{req: req, done: make(chan Outcome, 1)}

	b.mu.Lock()
	sess := b.sessions[req.SessionID]
	if sess == nil {
		sess = make(map[string]*pendingRequest)
		b.sessions[req.SessionID] = sess
	}
	sess[req.ID] = p
	position := len(sess)
	b.mu.Unlock()

	// Observers learn about the queued request before the caller blocks.
	b.safeBroadcast(broadcast, Event{
		Kind:          EventRequest,
		SessionID:     req.SessionID,
		RequestID:     req.ID,
		ToolName:      req.ToolName,
		ToolInput:     req.ToolInput,
		QueuePosition: position,
		QueueTotal:    position,
	})

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	select {
	case out := <-p.done:
		return out
	case <-timer.C:
		return b.expire(p, ReasonTimedOut)
	case <-ctx.Done():
		return b.expire(p, ReasonCancelled)
	}
}

// expire evicts a pending request that timed out or lost its caller. If a
// decision raced the timer and already removed the entry, that decision
// wins and is returned instead.
func (b *Broker) expire(p *pendingRequest, reason string) Outcome {
	b.mu.Lock()
	sess := b.sessions[p.req.SessionID]
	if _, still := sess[p.req.ID]; still {
		delete(sess, p.req.ID)
		b.dropIfEmptyLocked(p.req.SessionID)
		b.mu.Unlock()
		return Outcome{Decision: models.DecisionDeny, Message: reason}
	}
	b.mu.Unlock()
	// The entry was removed by a decider; the outcome is already buffered.
	return <-p.done
}

// Respond delivers a human decision to exactly one pending request. When
// remember names a scope, a rule is installed there and every still-pending
// request in the session that the rule covers is auto-resolved before
// Respond returns. The originating request always receives the
// Respond-delivered decision, never the rule's.
func (b *Broker) Respond(ctx context.Context, sessionID, requestID string, decision models.Decision, remember models.RuleScope, pattern string, updatedInput map[string]any, broadcast BroadcastFunc) (RespondResult, error) {
	b.mu.Lock()

	sess := b.sessions[sessionID]
	p, ok := sess[requestID]
	if !ok {
		b.mu.Unlock()
		return RespondResult{}, ErrNotFound
	}
	delete(sess, requestID)

	out := Outcome{Decision: decision}
	if decision == models.DecisionAllow {
		out.UpdatedInput = updatedInput
		if out.UpdatedInput == nil {
			out.UpdatedInput = p.req.ToolInput
		}
	}
	p.done <- out

	var autoResolved []string
	var remaining int
	if remember != "" {
		rule := models.PermissionRule{
			ID:          uuid.New().String(),
			Scope:       remember,
			ToolName:    p.req.ToolName,
			ToolPattern: pattern,
			Decision:    decision,
			CreatedAt:   b.now(),
		}
		switch remember {
		case models.ScopeSession:
			rule.SessionID = sessionID
			b.sessionRules[sessionID] = append(b.sessionRules[sessionID], rule)
		case models.ScopeProfile:
			rule.ProfileID = p.req.ProfileID
			b.persistRuleLocked(ctx, sessionID, rule)
		case models.ScopeGlobal:
			b.persistRuleLocked(ctx, sessionID, rule)
		}
		autoResolved = b.autoResolveLocked(sessionID, rule)
	}
	b.dropIfEmptyLocked(sessionID)
	remaining = len(b.sessions[sessionID])
	b.mu.Unlock()

	b.safeBroadcast(broadcast, Event{
		Kind:            EventQueueUpdate,
		SessionID:       sessionID,
		ResolvedIDs:     []string{requestID},
		AutoResolvedIDs: autoResolved,
		QueueTotal:      remaining,
	})

	return RespondResult{Resolved: true, AutoResolvedIDs: autoResolved}, nil
}

// persistRuleLocked writes a profile or global rule through the store. A
// store failure downgrades the rule to in-memory session scope so the
// current session still honors it. Caller holds b.mu.
func (b *Broker) persistRuleLocked(ctx context.Context, sessionID string, rule models.PermissionRule) {
	if b.store == nil {
		return
	}
	if _, err := b.store.AddRule(ctx, rule); err != nil {
		slog.Warn("Rule persistence failed, keeping rule in memory for this session",
			"session_id", sessionID, "scope", rule.Scope, "tool", rule.ToolName, "error", err)
		fallback := rule
		fallback.Scope = models.ScopeSession
		fallback.SessionID = sessionID
		b.sessionRules[sessionID] = append(b.sessionRules[sessionID], fallback)
	}
}

// autoResolveLocked decides every still-pending request in the session that
// the new rule covers and matches, removes them, and signals their waiters.
// Returns the resolved ids in request creation order. Caller holds b.mu.
func (b *Broker) autoResolveLocked(sessionID string, rule models.PermissionRule) []string {
	sess := b.sessions[sessionID]
	var resolved []*pendingRequest
	for id, p := range sess {
		if !ruleAppliesTo(rule, p.req.SessionID, p.req.ProfileID) {
			continue
		}
		if !RuleMatches(rule, p.req.ToolName, p.req.ToolInput) {
			continue
		}
		delete(sess, id)
		resolved = append(resolved, p)
	}

	sort.Slice(resolved, func(i, j int) bool {
		return resolved[i].req.CreatedAt.Before(resolved[j].req.CreatedAt)
	})

	ids := make([]string, 0, len(resolved))
	for _, p := range resolved {
		ids = append(ids, p.req.ID)
		p.done <- outcomeFromRule(rule, p.req)
	}
	return ids
}

// Cancel evicts a single pending request, waking its caller with a denial.
func (b *Broker) Cancel(sessionID, requestID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	sess := b.sessions[sessionID]
	p, ok := sess[requestID]
	if !ok {
		return false
	}
	delete(sess, requestID)
	b.dropIfEmptyLocked(sessionID)
	p.done <- Outcome{Decision: models.DecisionDeny, Message: ReasonCancelled}
	return true
}

// dropIfEmptyLocked removes a session's pending map once its last entry is
// gone, so resolved sessions do not accumulate. Caller holds b.mu.
func (b *Broker) dropIfEmptyLocked(sessionID string) {
	if sess, ok := b.sessions[sessionID]; ok && len(sess) == 0 {
		delete(b.sessions, sessionID)
	}
}

// CancelSession drains every pending request for a session and returns how
// many were cancelled.
func (b *Broker) CancelSession(sessionID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	sess := b.sessions[sessionID]
	count := 0
	for id, p := range sess {
		delete(sess, id)
		p.done <- Outcome{Decision: models.DecisionDeny, Message: ReasonCancelled}
		count++
	}
	delete(b.sessions, sessionID)
	return count
}

// Pending returns summaries of the session's pending requests, oldest
// first.
func (b *Broker) Pending(sessionID string) []Request {
	b.mu.Lock()
	defer b.mu.Unlock()

	sess := b.sessions[sessionID]
	out := make([]Request, 0, len(sess))
	for _, p := range sess {
		out = append(out, p.req)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// SessionRules returns the session's in-memory rules, newest first.
func (b *Broker) SessionRules(sessionID string) []models.PermissionRule {
	b.mu.Lock()
	defer b.mu.Unlock()

	rules := b.sessionRules[sessionID]
	out := make([]models.PermissionRule, 0, len(rules))
	for i := len(rules) - 1; i >= 0; i-- {
		out = append(out, rules[i])
	}
	return out
}

// ClearSessionRules drops the session's in-memory rules. Called at session
// end.
func (b *Broker) ClearSessionRules(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sessionRules, sessionID)
	if len(b.sessions[sessionID]) == 0 {
		delete(b.sessions, sessionID)
	}
}

// PendingCount returns the total number of pending requests across all
// sessions. Used by metrics.
func (b *Broker) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	total := 0
	for _, sess := range b.sessions {
		total += len(sess)
	}
	return total
}

// matchingRule finds the first rule covering the request, consulting
// session rules, then profile rules, then global rules. Within a scope the
// most recently installed rule wins. Store failures degrade to in-memory
// rules only.
func (b *Broker) matchingRule(ctx context.Context, req Request) (models.PermissionRule, bool) {
	b.mu.Lock()
	sessionRules := b.sessionRules[req.SessionID]
	// Newest wins: iterate installation order backwards.
	for i := len(sessionRules) - 1; i >= 0; i-- {
		rule := sessionRules[i]
		if ruleAppliesTo(rule, req.SessionID, req.ProfileID) && RuleMatches(rule, req.ToolName, req.ToolInput) {
			b.mu.Unlock()
			return rule, true
		}
	}
	b.mu.Unlock()

	if b.store == nil {
		return models.PermissionRule{}, false
	}

	profileRules, err := b.store.GetRules(ctx, req.ProfileID)
	if err != nil {
		slog.Warn("Profile rule lookup failed, continuing with in-memory rules",
			"profile_id", req.ProfileID, "error", err)
	}
	for _, rule := range profileRules {
		if ruleAppliesTo(rule, req.SessionID, req.ProfileID) && RuleMatches(rule, req.ToolName, req.ToolInput) {
			return rule, true
		}
	}

	globalRules, err := b.store.GetGlobalRules(ctx)
	if err != nil {
		slog.Warn("Global rule lookup failed, continuing with in-memory rules", "error", err)
	}
	for _, rule := range globalRules {
		if RuleMatches(rule, req.ToolName, req.ToolInput) {
			return rule, true
		}
	}
	return models.PermissionRule{}, false
}

// safeBroadcast invokes the callback, logging and swallowing panics.
func (b *Broker) safeBroadcast(broadcast BroadcastFunc, event Event) {
	if broadcast == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Broadcast callback panicked",
				"kind", event.Kind, "session_id", event.SessionID, "panic", r)
		}
	}()
	broadcast(event)
}

func outcomeFromRule(rule models.PermissionRule, req Request) Outcome {
	out := Outcome{Decision: rule.Decision, RuleID: rule.ID}
	if rule.Decision == models.DecisionAllow {
		out.UpdatedInput = req.ToolInput
	} else {
		out.Message = "denied by rule"
	}
	return out
}
