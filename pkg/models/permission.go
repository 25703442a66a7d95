package models

import "time"

// Decision is the terminal outcome of a permission request.
type Decision string

const (
	DecisionAllow Decision = "allow"
	DecisionDeny  Decision = "deny"
)

// RuleScope is the domain within which a rule is consulted.
type RuleScope string

const (
	ScopeSession RuleScope = "session"
	ScopeProfile RuleScope = "profile"
	ScopeGlobal  RuleScope = "global"
)

// PermissionRule is an immutable predicate plus decision installed at a
// given scope. Session-scoped rules live in memory for the session's
// lifetime; profile and global rules are persisted via the store.
type PermissionRule struct {
	ID        string    `json:"id"`
	Scope     RuleScope `json:"scope"`
	SessionID string    `json:"session_id,omitempty"`
	ProfileID string    `json:"profile_id,omitempty"`
	// ToolName is an exact tool identifier or "*" for any tool.
	ToolName string `json:"tool_name"`
	// ToolPattern is an anchored shell-style glob applied to the
	// tool-specific input field. Empty matches any input for the tool.
	ToolPattern string    `json:"tool_pattern,omitempty"`
	Decision    Decision  `json:"decision"`
	CreatedAt   time.Time `json:"created_at"`
}
