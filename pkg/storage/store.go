// Package storage defines the persistent store collaborator consumed by the
// admission and coordination layer, plus its Postgres and in-memory
// implementations. The core treats the store as an opaque row collaborator:
// reads feed limit configuration and rules, writes are best-effort audit.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/relayops/agentgate/pkg/models"
)

// ErrNotFound is returned by lookups when no row matches.
var ErrNotFound = errors.New("storage: not found")

// Store is the synchronous persistence surface used by the core.
//
// Lookup methods return (nil, ErrNotFound) when no row exists; any other
// error means the store is unavailable and callers fall back to defaults.
type Store interface {
	// GetRateLimit returns the limit configuration for a user or API key.
	// apiKeyID takes precedence when both are set.
	GetRateLimit(ctx context.Context, userID, apiKeyID string) (*models.LimitConfig, error)

	// LogRequest appends a request audit row. Best-effort: callers log and
	// swallow errors.
	LogRequest(ctx context.Context, entry models.RequestLogEntry) error

	// PruneRequestLog deletes audit rows older than cutoff and returns the
	// number removed.
	PruneRequestLog(ctx context.Context, cutoff time.Time) (int, error)

	// GetRules returns the persisted permission rules for a profile,
	// newest first.
	GetRules(ctx context.Context, profileID string) ([]models.PermissionRule, error)

	// GetGlobalRules returns the persisted global permission rules,
	// newest first.
	GetGlobalRules(ctx context.Context) ([]models.PermissionRule, error)

	// AddRule persists a profile- or global-scoped rule and returns its id.
	AddRule(ctx context.Context, rule models.PermissionRule) (string, error)

	// GetAuthSession resolves a session token. Used by the principal
	// extractor only; the store is authoritative.
	GetAuthSession(ctx context.Context, token string) (*models.AuthSession, error)

	// GetAPICredentialByHash resolves an API credential by the SHA-256 hex
	// digest of the presented key.
	GetAPICredentialByHash(ctx context.Context, sha256Hex string) (*models.APICredential, error)

	// PruneAuthSessions deletes sessions expired before now and returns the
	// number removed.
	PruneAuthSessions(ctx context.Context, now time.Time) (int, error)
}
