package api

import "github.com/relayops/agentgate/pkg/models"

// RequestPermissionBody is the agent-facing blocking permission request.
type RequestPermissionBody struct {
	ProfileID string         `json:"profile_id"`
	ToolName  string         `json:"tool_name"`
	ToolInput map[string]any `json:"tool_input"`
}

// RespondPermissionBody delivers a human decision to a pending request.
type RespondPermissionBody struct {
	Decision models.Decision `json:"decision"`
	// Remember installs a rule at the named scope; empty means no rule.
	Remember models.RuleScope `json:"remember,omitempty"`
	Pattern  string           `json:"pattern,omitempty"`
	// UpdatedInput replaces the tool input on allows (optional).
	UpdatedInput map[string]any `json:"updated_input,omitempty"`
}
