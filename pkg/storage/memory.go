package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/relayops/agentgate/pkg/models"
)

// MemoryStore is an in-memory Store. It backs tests and single-binary runs
// without Postgres; all methods are safe for concurrent use.
type MemoryStore struct {
	mu          sync.RWMutex
	rateLimits  map[string]models.LimitConfig // key: "user:<id>" or "api_key:<id>"
	requestLog  []models.RequestLogEntry
	rules       []models.PermissionRule
	sessions    map[string]models.AuthSession    // token → session
	credentials map[string]models.APICredential  // sha256 hex → credential
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rateLimits:  make(map[string]models.LimitConfig),
		sessions:    make(map[string]models.AuthSession),
		credentials: make(map[string]models.APICredential),
	}
}

// SetRateLimit installs a limit configuration for a user or API key.
func (m *MemoryStore) SetRateLimit(userID, apiKeyID string, cfg models.LimitConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if apiKeyID != "" {
		m.rateLimits["api_key:"+apiKeyID] = cfg
	} else {
		m.rateLimits["user:"+userID] = cfg
	}
}

// PutAuthSession installs an auth session row.
func (m *MemoryStore) PutAuthSession(s models.AuthSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.Token] = s
}

// PutAPICredential installs an API credential row keyed by hash.
func (m *MemoryStore) PutAPICredential(sha256Hex string, c models.APICredential) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.credentials[sha256Hex] = c
}

// RequestLogLen returns the number of audit rows currently retained.
func (m *MemoryStore) RequestLogLen() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requestLog)
}

func (m *MemoryStore) GetRateLimit(_ context.Context, userID, apiKeyID string) (*models.LimitConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if apiKeyID != "" {
		if cfg, ok := m.rateLimits["api_key:"+apiKeyID]; ok {
			return &cfg, nil
		}
	}
	if userID != "" {
		if cfg, ok := m.rateLimits["user:"+userID]; ok {
			return &cfg, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) LogRequest(_ context.Context, entry models.RequestLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestLog = append(m.requestLog, entry)
	return nil
}

func (m *MemoryStore) PruneRequestLog(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.requestLog[:0]
	removed := 0
	for _, e := range m.requestLog {
		if e.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	m.requestLog = kept
	return removed, nil
}

func (m *MemoryStore) GetRules(_ context.Context, profileID string) ([]models.PermissionRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.PermissionRule
	// Newest first: rules are appended in installation order.
	for i := len(m.rules) - 1; i >= 0; i-- {
		r := m.rules[i]
		if r.Scope == models.ScopeProfile && r.ProfileID == profileID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MemoryStore) GetGlobalRules(_ context.Context) ([]models.PermissionRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.PermissionRule
	for i := len(m.rules) - 1; i >= 0; i-- {
		if m.rules[i].Scope == models.ScopeGlobal {
			out = append(out, m.rules[i])
		}
	}
	return out, nil
}

func (m *MemoryStore) AddRule(_ context.Context, rule models.PermissionRule) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now()
	}
	m.rules = append(m.rules, rule)
	return rule.ID, nil
}

func (m *MemoryStore) GetAuthSession(_ context.Context, token string) (*models.AuthSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[token]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (m *MemoryStore) GetAPICredentialByHash(_ context.Context, sha256Hex string) (*models.APICredential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.credentials[sha256Hex]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (m *MemoryStore) PruneAuthSessions(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for token, s := range m.sessions {
		if s.Expired(now) {
			delete(m.sessions, token)
			removed++
		}
	}
	return removed, nil
}

var _ Store = (*MemoryStore)(nil)
