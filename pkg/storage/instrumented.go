package storage

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/relayops/agentgate/pkg/models"
)

// InstrumentedStore wraps a Store and counts failed operations. ErrNotFound
// is a normal miss and is not counted. The metrics collector samples Errors
// at scrape time.
type InstrumentedStore struct {
	inner  Store
	errors atomic.Int64
}

// NewInstrumentedStore wraps a Store with error counting.
func NewInstrumentedStore(inner Store) *InstrumentedStore {
	return &InstrumentedStore{inner: inner}
}

// Errors returns the number of store operations that have failed so far.
func (s *InstrumentedStore) Errors() int {
	return int(s.errors.Load())
}

func (s *InstrumentedStore) count(err error) error {
	if err != nil && !errors.Is(err, ErrNotFound) {
		s.errors.Add(1)
	}
	return err
}

func (s *InstrumentedStore) GetRateLimit(ctx context.Context, userID, apiKeyID string) (*models.LimitConfig, error) {
	cfg, err := s.inner.GetRateLimit(ctx, userID, apiKeyID)
	return cfg, s.count(err)
}

func (s *InstrumentedStore) LogRequest(ctx context.Context, entry models.RequestLogEntry) error {
	return s.count(s.inner.LogRequest(ctx, entry))
}

func (s *InstrumentedStore) PruneRequestLog(ctx context.Context, cutoff time.Time) (int, error) {
	n, err := s.inner.PruneRequestLog(ctx, cutoff)
	return n, s.count(err)
}

func (s *InstrumentedStore) GetRules(ctx context.Context, profileID string) ([]models.PermissionRule, error) {
	rules, err := s.inner.GetRules(ctx, profileID)
	return rules, s.count(err)
}

func (s *InstrumentedStore) GetGlobalRules(ctx context.Context) ([]models.PermissionRule, error) {
	rules, err := s.inner.GetGlobalRules(ctx)
	return rules, s.count(err)
}

func (s *InstrumentedStore) AddRule(ctx context.Context, rule models.PermissionRule) (string, error) {
	id, err := s.inner.AddRule(ctx, rule)
	return id, s.count(err)
}

func (s *InstrumentedStore) GetAuthSession(ctx context.Context, token string) (*models.AuthSession, error) {
	sess, err := s.inner.GetAuthSession(ctx, token)
	return sess, s.count(err)
}

func (s *InstrumentedStore) GetAPICredentialByHash(ctx context.Context, sha256Hex string) (*models.APICredential, error) {
	cred, err := s.inner.GetAPICredentialByHash(ctx, sha256Hex)
	return cred, s.count(err)
}

func (s *InstrumentedStore) PruneAuthSessions(ctx context.Context, now time.Time) (int, error) {
	n, err := s.inner.PruneAuthSessions(ctx, now)
	return n, s.count(err)
}

var _ Store = (*InstrumentedStore)(nil)
