package permission

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/relayops/agentgate/pkg/models"
)

func sessionRule(tool, pattern string, decision models.Decision) models.PermissionRule {
	return models.PermissionRule{
		ID:          "rule-1",
		Scope:       models.ScopeSession,
		SessionID:   "sess-1",
		ToolName:    tool,
		ToolPattern: pattern,
		Decision:    decision,
	}
}

func TestRuleMatches(t *testing.T) {
	tests := []struct {
		name     string
		rule     models.PermissionRule
		toolName string
		input    map[string]any
		want     bool
	}{
		{
			name:     "exact tool name with empty pattern matches any input",
			rule:     sessionRule("shell", "", models.DecisionAllow),
			toolName: "shell",
			input:    map[string]any{"command": "rm -rf /"},
			want:     true,
		},
		{
			name:     "different tool name never matches",
			rule:     sessionRule("shell", "", models.DecisionAllow),
			toolName: "read",
			input:    map[string]any{"file_path": "/etc/passwd"},
			want:     false,
		},
		{
			name:     "wildcard tool matches any tool",
			rule:     sessionRule(WildcardTool, "", models.DecisionDeny),
			toolName: "fetch",
			input:    map[string]any{"url": "https://example.com"},
			want:     true,
		},
		{
			name:     "glob pattern on shell command",
			rule:     sessionRule("shell", "npm *", models.DecisionAllow),
			toolName: "shell",
			input:    map[string]any{"command": "npm install"},
			want:     true,
		},
		{
			name:     "glob pattern rejects non-matching command",
			rule:     sessionRule("shell", "npm *", models.DecisionAllow),
			toolName: "shell",
			input:    map[string]any{"command": "pip install"},
			want:     false,
		},
		{
			name:     "pattern is anchored to the full string",
			rule:     sessionRule("shell", "install", models.DecisionAllow),
			toolName: "shell",
			input:    map[string]any{"command": "npm install"},
			want:     false,
		},
		{
			name:     "question mark matches single character",
			rule:     sessionRule("shell", "ls -?", models.DecisionAllow),
			toolName: "shell",
			input:    map[string]any{"command": "ls -l"},
			want:     true,
		},
		{
			name:     "character class",
			rule:     sessionRule("shell", "git [sp]*", models.DecisionAllow),
			toolName: "shell",
			input:    map[string]any{"command": "git status"},
			want:     true,
		},
		{
			name:     "read matches file_path field",
			rule:     sessionRule("read", "/tmp/*", models.DecisionAllow),
			toolName: "read",
			input:    map[string]any{"file_path": "/tmp/notes.txt"},
			want:     true,
		},
		{
			name:     "read falls back to path field",
			rule:     sessionRule("read", "/tmp/*", models.DecisionAllow),
			toolName: "read",
			input:    map[string]any{"path": "/tmp/notes.txt"},
			want:     true,
		},
		{
			name:     "absent designated field never matches a non-empty pattern",
			rule:     sessionRule("shell", "npm *", models.DecisionAllow),
			toolName: "shell",
			input:    map[string]any{"cwd": "/tmp"},
			want:     false,
		},
		{
			name:     "non-string designated field never matches",
			rule:     sessionRule("shell", "npm *", models.DecisionAllow),
			toolName: "shell",
			input:    map[string]any{"command": 42},
			want:     false,
		},
		{
			name:     "unknown tool matches any string value",
			rule:     sessionRule("custom_tool", "secret*", models.DecisionDeny),
			toolName: "custom_tool",
			input:    map[string]any{"target": "secret-vault", "count": 3},
			want:     true,
		},
		{
			name:     "unknown tool with no matching string values",
			rule:     sessionRule("custom_tool", "secret*", models.DecisionDeny),
			toolName: "custom_tool",
			input:    map[string]any{"target": "public"},
			want:     false,
		},
		{
			name:     "star matches any string including slashes",
			rule:     sessionRule("shell", "*", models.DecisionDeny),
			toolName: "shell",
			input:    map[string]any{"command": "rm -rf /"},
			want:     true,
		},
		{
			name:     "star crosses directory separators",
			rule:     sessionRule("read", "/home/*", models.DecisionAllow),
			toolName: "read",
			input:    map[string]any{"file_path": "/home/user/notes.txt"},
			want:     true,
		},
		{
			name:     "command glob crosses slashes in arguments",
			rule:     sessionRule("shell", "npm *", models.DecisionAllow),
			toolName: "shell",
			input:    map[string]any{"command": "npm install ./pkg/a"},
			want:     true,
		},
		{
			name:     "url glob crosses path segments",
			rule:     sessionRule("fetch", "https://internal.example/*", models.DecisionAllow),
			toolName: "fetch",
			input:    map[string]any{"url": "https://internal.example/v1/users/42"},
			want:     true,
		},
		{
			name:     "question mark matches a slash",
			rule:     sessionRule("shell", "ls ?", models.DecisionAllow),
			toolName: "shell",
			input:    map[string]any{"command": "ls /"},
			want:     true,
		},
		{
			name:     "malformed pattern treated as non-matching",
			rule:     sessionRule("shell", "[unclosed", models.DecisionAllow),
			toolName: "shell",
			input:    map[string]any{"command": "[unclosed"},
			want:     false,
		},
		{
			name:     "empty pattern matches empty input",
			rule:     sessionRule("shell", "", models.DecisionDeny),
			toolName: "shell",
			input:    nil,
			want:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RuleMatches(tt.rule, tt.toolName, tt.input))
		})
	}
}

func TestRuleAppliesTo(t *testing.T) {
	session := models.PermissionRule{Scope: models.ScopeSession, SessionID: "sess-1"}
	profile := models.PermissionRule{Scope: models.ScopeProfile, ProfileID: "prof-1"}
	global := models.PermissionRule{Scope: models.ScopeGlobal}

	assert.True(t, ruleAppliesTo(session, "sess-1", "prof-1"))
	assert.False(t, ruleAppliesTo(session, "sess-2", "prof-1"))
	assert.True(t, ruleAppliesTo(profile, "sess-2", "prof-1"))
	assert.False(t, ruleAppliesTo(profile, "sess-1", "prof-2"))
	assert.True(t, ruleAppliesTo(global, "any", "any"))
	assert.False(t, ruleAppliesTo(models.PermissionRule{Scope: "bogus"}, "s", "p"))
}
