package api

import (
	"time"

	"github.com/relayops/agentgate/pkg/models"
	"github.com/relayops/agentgate/pkg/permission"
)

// LimitsBody echoes the per-window limits in 429 responses.
type LimitsBody struct {
	Minute int `json:"minute"`
	Hour   int `json:"hour"`
	Day    int `json:"day"`
}

// ThrottledResponse is the 429 body for denied requests.
type ThrottledResponse struct {
	Detail     string     `json:"detail"`
	RetryAfter int        `json:"retry_after"`
	Limits     LimitsBody `json:"limits"`
}

// QueuedResponse is the 429 body for requests parked in the wait queue.
type QueuedResponse struct {
	Detail     string     `json:"detail"`
	RetryAfter int        `json:"retry_after"`
	Limits     LimitsBody `json:"limits"`
	QueueID    string     `json:"queue_id"`
	Rank       int        `json:"rank"`
	QueueTotal int        `json:"queue_total"`
	ETASeconds int        `json:"eta_seconds"`
}

// PermissionOutcomeResponse is returned to the agent when its blocking
// permission request resolves.
type PermissionOutcomeResponse struct {
	RequestID    string          `json:"request_id"`
	Decision     models.Decision `json:"decision"`
	Message      string          `json:"message,omitempty"`
	UpdatedInput map[string]any  `json:"updated_input,omitempty"`
	RuleID       string          `json:"rule_id,omitempty"`
}

// RespondResponse reports what a human decision resolved.
type RespondResponse struct {
	Resolved        bool     `json:"resolved"`
	AutoResolvedIDs []string `json:"auto_resolved_ids"`
}

// PendingPermissionSummary describes one pending tool-use request.
type PendingPermissionSummary struct {
	ID        string         `json:"id"`
	ToolName  string         `json:"tool_name"`
	ToolInput map[string]any `json:"tool_input"`
	CreatedAt time.Time      `json:"created_at"`
}

// QueuePositionResponse reports the caller's wait-queue placement.
type QueuePositionResponse struct {
	Queued     bool `json:"queued"`
	Rank       int  `json:"rank,omitempty"`
	Total      int  `json:"total"`
	ETASeconds int  `json:"eta_seconds,omitempty"`
}

// QueueStatsResponse reports aggregate queue state.
type QueueStatsResponse struct {
	Size int `json:"size"`
}

// HealthCheck is one named component check in the health response.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func pendingSummaries(reqs []permission.Request) []PendingPermissionSummary {
	out := make([]PendingPermissionSummary, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, PendingPermissionSummary{
			ID:        r.ID,
			ToolName:  r.ToolName,
			ToolInput: r.ToolInput,
			CreatedAt: r.CreatedAt,
		})
	}
	return out
}
