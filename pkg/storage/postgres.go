package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/relayops/agentgate/pkg/models"
)

// PostgresStore implements Store on a pgx connection pool. Schema is managed
// by pkg/database's embedded migrations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an existing pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) GetRateLimit(ctx context.Context, userID, apiKeyID string) (*models.LimitConfig, error) {
	// API-key rows take precedence over user rows.
	const query = `
		SELECT per_minute, per_hour, per_day, concurrent, priority, unlimited
		FROM rate_limits
		WHERE (api_key_id = $1 AND $1 <> '') OR (user_id = $2 AND $2 <> '' AND api_key_id = '')
		ORDER BY (api_key_id <> '') DESC
		LIMIT 1`
	var cfg models.LimitConfig
	err := s.pool.QueryRow(ctx, query, apiKeyID, userID).Scan(
		&cfg.PerMinute, &cfg.PerHour, &cfg.PerDay, &cfg.Concurrent, &cfg.Priority, &cfg.Unlimited,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (s *PostgresStore) LogRequest(ctx context.Context, entry models.RequestLogEntry) error {
	const query = `
		INSERT INTO request_log (id, user_id, api_key_id, endpoint, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.pool.Exec(ctx, query,
		entry.ID, entry.UserID, entry.APIKeyID, entry.Endpoint, entry.Status, createdAt)
	return err
}

func (s *PostgresStore) PruneRequestLog(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM request_log WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) GetRules(ctx context.Context, profileID string) ([]models.PermissionRule, error) {
	const query = `
		SELECT id, scope, profile_id, tool_name, tool_pattern, decision, created_at
		FROM permission_rules
		WHERE scope = 'profile' AND profile_id = $1
		ORDER BY created_at DESC, id DESC`
	return s.queryRules(ctx, query, profileID)
}

func (s *PostgresStore) GetGlobalRules(ctx context.Context) ([]models.PermissionRule, error) {
	const query = `
		SELECT id, scope, profile_id, tool_name, tool_pattern, decision, created_at
		FROM permission_rules
		WHERE scope = 'global'
		ORDER BY created_at DESC, id DESC`
	return s.queryRules(ctx, query)
}

func (s *PostgresStore) queryRules(ctx context.Context, query string, args ...any) ([]models.PermissionRule, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []models.PermissionRule
	for rows.Next() {
		var r models.PermissionRule
		if err := rows.Scan(&r.ID, &r.Scope, &r.ProfileID, &r.ToolName, &r.ToolPattern, &r.Decision, &r.CreatedAt); err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

func (s *PostgresStore) AddRule(ctx context.Context, rule models.PermissionRule) (string, error) {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now()
	}
	const query = `
		INSERT INTO permission_rules (id, scope, profile_id, tool_name, tool_pattern, decision, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := s.pool.Exec(ctx, query,
		rule.ID, rule.Scope, rule.ProfileID, rule.ToolName, rule.ToolPattern, rule.Decision, rule.CreatedAt)
	if err != nil {
		return "", err
	}
	return rule.ID, nil
}

func (s *PostgresStore) GetAuthSession(ctx context.Context, token string) (*models.AuthSession, error) {
	const query = `
		SELECT token, user_id, is_admin, expires_at
		FROM auth_sessions
		WHERE token = $1`
	var sess models.AuthSession
	err := s.pool.QueryRow(ctx, query, token).Scan(&sess.Token, &sess.UserID, &sess.IsAdmin, &sess.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *PostgresStore) GetAPICredentialByHash(ctx context.Context, sha256Hex string) (*models.APICredential, error) {
	const query = `
		SELECT id, user_id, name, active
		FROM api_credentials
		WHERE key_hash = $1`
	var cred models.APICredential
	err := s.pool.QueryRow(ctx, query, sha256Hex).Scan(&cred.ID, &cred.UserID, &cred.Name, &cred.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

func (s *PostgresStore) PruneAuthSessions(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM auth_sessions WHERE expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

var _ Store = (*PostgresStore)(nil)
