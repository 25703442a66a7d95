package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayops/agentgate/pkg/models"
)

func TestMemoryStoreRateLimitPrecedence(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.GetRateLimit(ctx, "u1", "")
	assert.ErrorIs(t, err, ErrNotFound)

	store.SetRateLimit("u1", "", models.LimitConfig{PerMinute: 5})
	store.SetRateLimit("", "key-1", models.LimitConfig{PerMinute: 50})

	cfg, err := store.GetRateLimit(ctx, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.PerMinute)

	// An API key row wins over the user row when both identifiers are set.
	cfg, err = store.GetRateLimit(ctx, "u1", "key-1")
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.PerMinute)

	// Unknown key falls back to the user row.
	cfg, err = store.GetRateLimit(ctx, "u1", "key-unknown")
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.PerMinute)
}

func TestMemoryStoreRequestLogPrune(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	for i, age := range []time.Duration{48 * time.Hour, 25 * time.Hour, time.Minute} {
		require.NoError(t, store.LogRequest(ctx, models.RequestLogEntry{
			ID:        string(rune('a' + i)),
			Endpoint:  "/api/v1/chat",
			Status:    "admitted",
			CreatedAt: now.Add(-age),
		}))
	}

	removed, err := store.PruneRequestLog(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, store.RequestLogLen())
}

func TestMemoryStoreRulesByScope(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	id1, err := store.AddRule(ctx, models.PermissionRule{
		Scope: models.ScopeProfile, ProfileID: "prof-1",
		ToolName: "bash", ToolPattern: "npm *", Decision: models.DecisionAllow,
	})
	require.NoError(t, err)
	require.NotEmpty(t, id1)

	id2, err := store.AddRule(ctx, models.PermissionRule{
		Scope: models.ScopeProfile, ProfileID: "prof-1",
		ToolName: "bash", ToolPattern: "pip *", Decision: models.DecisionDeny,
	})
	require.NoError(t, err)

	_, err = store.AddRule(ctx, models.PermissionRule{
		Scope: models.ScopeGlobal, ToolName: "*", ToolPattern: "", Decision: models.DecisionDeny,
	})
	require.NoError(t, err)

	rules, err := store.GetRules(ctx, "prof-1")
	require.NoError(t, err)
	require.Len(t, rules, 2)
	// Newest first.
	assert.Equal(t, id2, rules[0].ID)
	assert.Equal(t, id1, rules[1].ID)

	rules, err = store.GetRules(ctx, "prof-other")
	require.NoError(t, err)
	assert.Empty(t, rules)

	global, err := store.GetGlobalRules(ctx)
	require.NoError(t, err)
	require.Len(t, global, 1)
	assert.Equal(t, models.ScopeGlobal, global[0].Scope)
}

func TestMemoryStoreAuthSessions(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	store.PutAuthSession(models.AuthSession{Token: "live", UserID: "u1", ExpiresAt: now.Add(time.Hour)})
	store.PutAuthSession(models.AuthSession{Token: "stale", UserID: "u2", ExpiresAt: now.Add(-time.Hour)})

	sess, err := store.GetAuthSession(ctx, "live")
	require.NoError(t, err)
	assert.Equal(t, "u1", sess.UserID)

	_, err = store.GetAuthSession(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	removed, err := store.PruneAuthSessions(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = store.GetAuthSession(ctx, "stale")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreAPICredentials(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	store.PutAPICredential("abc123", models.APICredential{ID: "cred-1", UserID: "u1", Active: true})

	cred, err := store.GetAPICredentialByHash(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, "cred-1", cred.ID)
	assert.True(t, cred.Active)

	_, err = store.GetAPICredentialByHash(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}
