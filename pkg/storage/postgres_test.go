package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/relayops/agentgate/pkg/database"
	"github.com/relayops/agentgate/pkg/models"
)

// newTestPostgresStore provisions a migrated database with CI/local
// environment detection. In CI (CI_DATABASE_URL set) it connects to the
// external PostgreSQL service container; locally it spins up a
// testcontainer.
func newTestPostgresStore(t *testing.T) *PostgresStore {
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	ctx := context.Background()

	connStr := os.Getenv("CI_DATABASE_URL")
	if connStr == "" {
		t.Log("Using testcontainers for PostgreSQL")
		pgContainer, err := postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("test"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		require.NoError(t, err)

		t.Cleanup(func() {
			if err := testcontainers.TerminateContainer(pgContainer); err != nil {
				t.Logf("failed to terminate container: %v", err)
			}
		})

		connStr, err = pgContainer.ConnectionString(ctx, "sslmode=disable")
		require.NoError(t, err)
	}

	client, err := database.NewClient(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(client.Close)

	return NewPostgresStore(client.Pool())
}

func TestPostgresStoreRoundTrip(t *testing.T) {
	store := newTestPostgresStore(t)
	ctx := context.Background()

	t.Run("rate limits", func(t *testing.T) {
		_, err := store.GetRateLimit(ctx, "u1", "")
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = store.pool.Exec(ctx, `
			INSERT INTO rate_limits (id, user_id, per_minute, per_hour, per_day, concurrent, priority)
			VALUES ('rl-1', 'u1', 5, 50, 500, 2, 3)`)
		require.NoError(t, err)
		_, err = store.pool.Exec(ctx, `
			INSERT INTO rate_limits (id, api_key_id, per_minute, unlimited)
			VALUES ('rl-2', 'key-1', 100, TRUE)`)
		require.NoError(t, err)

		cfg, err := store.GetRateLimit(ctx, "u1", "")
		require.NoError(t, err)
		assert.Equal(t, 5, cfg.PerMinute)
		assert.Equal(t, 3, cfg.Priority)

		// The API-key row wins when both identifiers are presented.
		cfg, err = store.GetRateLimit(ctx, "u1", "key-1")
		require.NoError(t, err)
		assert.True(t, cfg.Unlimited)
		assert.Equal(t, 100, cfg.PerMinute)
	})

	t.Run("request log", func(t *testing.T) {
		now := time.Now()
		require.NoError(t, store.LogRequest(ctx, models.RequestLogEntry{
			ID: "req-old", UserID: "u1", Endpoint: "/api/v1/chat",
			Status: "admitted", CreatedAt: now.Add(-25 * time.Hour),
		}))
		require.NoError(t, store.LogRequest(ctx, models.RequestLogEntry{
			ID: "req-new", UserID: "u1", Endpoint: "/api/v1/chat", Status: "admitted",
		}))

		removed, err := store.PruneRequestLog(ctx, now.Add(-24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 1, removed)
	})

	t.Run("permission rules", func(t *testing.T) {
		first, err := store.AddRule(ctx, models.PermissionRule{
			Scope: models.ScopeProfile, ProfileID: "prof-1",
			ToolName: "bash", ToolPattern: "npm *", Decision: models.DecisionAllow,
			CreatedAt: time.Now().Add(-time.Minute),
		})
		require.NoError(t, err)
		second, err := store.AddRule(ctx, models.PermissionRule{
			Scope: models.ScopeProfile, ProfileID: "prof-1",
			ToolName: "bash", ToolPattern: "npm publish*", Decision: models.DecisionDeny,
		})
		require.NoError(t, err)
		_, err = store.AddRule(ctx, models.PermissionRule{
			Scope: models.ScopeGlobal, ToolName: "*", Decision: models.DecisionDeny,
		})
		require.NoError(t, err)

		rules, err := store.GetRules(ctx, "prof-1")
		require.NoError(t, err)
		require.Len(t, rules, 2)
		assert.Equal(t, second, rules[0].ID)
		assert.Equal(t, first, rules[1].ID)

		global, err := store.GetGlobalRules(ctx)
		require.NoError(t, err)
		require.Len(t, global, 1)
		assert.Equal(t, models.ScopeGlobal, global[0].Scope)
	})

	t.Run("auth sessions", func(t *testing.T) {
		now := time.Now()
		_, err := store.pool.Exec(ctx, `
			INSERT INTO auth_sessions (token, user_id, is_admin, expires_at)
			VALUES ('live', 'u1', TRUE, $1), ('stale', 'u2', FALSE, $2)`,
			now.Add(time.Hour), now.Add(-time.Hour))
		require.NoError(t, err)

		sess, err := store.GetAuthSession(ctx, "live")
		require.NoError(t, err)
		assert.True(t, sess.IsAdmin)

		_, err = store.GetAuthSession(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)

		removed, err := store.PruneAuthSessions(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, 1, removed)
	})

	t.Run("api credentials", func(t *testing.T) {
		_, err := store.pool.Exec(ctx, `
			INSERT INTO api_credentials (id, user_id, name, key_hash, active)
			VALUES ('cred-1', 'u1', 'deploy key', 'hash-1', TRUE)`)
		require.NoError(t, err)

		cred, err := store.GetAPICredentialByHash(ctx, "hash-1")
		require.NoError(t, err)
		assert.Equal(t, "cred-1", cred.ID)
		assert.Equal(t, "deploy key", cred.Name)

		_, err = store.GetAPICredentialByHash(ctx, "hash-unknown")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
