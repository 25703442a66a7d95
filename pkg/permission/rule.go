// Package permission implements the interactive permission broker: rule
// matching, per-session queues of pending tool-use requests, blocking
// decision delivery, and rule-based auto-resolution.
package permission

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/relayops/agentgate/pkg/models"
)

// WildcardTool matches any tool name.
const WildcardTool = "*"

// toolPatternFields maps a tool name to the input fields its rule patterns
// are applied against. The first present, non-empty field wins. Tools not
// listed here fall through to matching any string value in the input.
var toolPatternFields = map[string][]string{
	"shell":     {"command"},
	"bash":      {"command"},
	"read":      {"file_path", "path"},
	"write":     {"file_path", "path"},
	"edit":      {"file_path", "path"},
	"glob":      {"path"},
	"grep":      {"path"},
	"fetch":     {"url"},
	"web_fetch": {"url"},
}

// RuleMatches reports whether a rule matches a tool invocation.
//
// The tool name must equal the rule's (or the rule carries the wildcard).
// An empty pattern matches any input. Otherwise the pattern is an anchored
// shell-style glob (*, ?, [abc]) applied to the tool's designated input
// field; an absent or empty field never matches. Unknown tools match if any
// string value in the input matches the pattern.
func RuleMatches(rule models.PermissionRule, toolName string, input map[string]any) bool {
	if rule.ToolName != WildcardTool && rule.ToolName != toolName {
		return false
	}
	if rule.ToolPattern == "" {
		return true
	}

	if fields, ok := toolPatternFields[toolName]; ok {
		for _, field := range fields {
			if v := stringField(input, field); v != "" {
				return globMatch(rule.ToolPattern, v)
			}
		}
		return false
	}

	// Unknown tool: match against any string value in the input.
	for _, v := range input {
		if s, ok := v.(string); ok && s != "" && globMatch(rule.ToolPattern, s) {
			return true
		}
	}
	return false
}

// ruleAppliesTo reports whether a rule's scope covers a request. A
// session-scoped rule never affects a different session; a profile-scoped
// rule never affects requests with a different profile.
func ruleAppliesTo(rule models.PermissionRule, sessionID, profileID string) bool {
	switch rule.Scope {
	case models.ScopeSession:
		return rule.SessionID == sessionID
	case models.ScopeProfile:
		return rule.ProfileID == profileID
	case models.ScopeGlobal:
		return true
	default:
		return false
	}
}

func stringField(input map[string]any, field string) string {
	if v, ok := input[field]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// separatorStandIn replaces '/' on both sides of a match. Rule globs are
// fnmatch-style: wildcards must cross '/', which doublestar otherwise
// treats as a path separator.
const separatorStandIn = "\x00"

func globMatch(pattern, value string) bool {
	ok, err := doublestar.Match(
		strings.ReplaceAll(pattern, "/", separatorStandIn),
		strings.ReplaceAll(value, "/", separatorStandIn),
	)
	if err != nil {
		// Malformed pattern: treat as non-matching rather than failing
		// the request.
		return false
	}
	return ok
}
