package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/relayops/agentgate/pkg/models"
	"github.com/relayops/agentgate/pkg/storage"
)

// DefaultConfigTTL is how long a resolved limit configuration is served
// from cache before the store is consulted again.
const DefaultConfigTTL = 5 * time.Minute

// ConfigResolver loads per-principal limit configuration from the store and
// caches it for a TTL. Absent principals and store failures both resolve to
// the defaults; a store failure additionally logs a warning but never fails
// the caller.
type ConfigResolver struct {
	store    storage.Store
	defaults models.LimitConfig
	ttl      time.Duration

	mu    sync.Mutex
	cache map[string]cachedConfig

	now func() time.Time
}

type cachedConfig struct {
	config    models.LimitConfig
	fetchedAt time.Time
}

// NewConfigResolver creates a resolver over the given store. ttl <= 0 uses
// DefaultConfigTTL.
func NewConfigResolver(store storage.Store, defaults models.LimitConfig, ttl time.Duration) *ConfigResolver {
	if ttl <= 0 {
		ttl = DefaultConfigTTL
	}
	return &ConfigResolver{
		store:    store,
		defaults: defaults,
		ttl:      ttl,
		cache:    make(map[string]cachedConfig),
		now:      time.Now,
	}
}

// Defaults returns the fallback configuration.
func (r *ConfigResolver) Defaults() models.LimitConfig {
	return r.defaults
}

// Resolve returns the limit configuration for a principal, consulting the
// cache first. The returned config is always usable.
func (r *ConfigResolver) Resolve(ctx context.Context, p models.Principal) models.LimitConfig {
	key := p.Key()

	r.mu.Lock()
	if entry, ok := r.cache[key]; ok && r.now().Sub(entry.fetchedAt) < r.ttl {
		cfg := entry.config
		r.mu.Unlock()
		return cfg
	}
	r.mu.Unlock()

	cfg := r.fetch(ctx, p)

	r.mu.Lock()
	r.cache[key] = cachedConfig{config: cfg, fetchedAt: r.now()}
	r.mu.Unlock()

	return cfg
}

// ClearCache drops all cached entries. Called when limit configuration
// changes in the store.
func (r *ConfigResolver) ClearCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[string]cachedConfig)
}

func (r *ConfigResolver) fetch(ctx context.Context, p models.Principal) models.LimitConfig {
	if r.store == nil {
		return r.defaults
	}

	var userID, apiKeyID string
	switch p.Kind {
	case models.PrincipalAPIClient:
		apiKeyID = p.APIKeyID
	case models.PrincipalUser:
		userID = p.UserID
	default:
		// Admin and anonymous principals have no store row.
		return r.defaults
	}

	cfg, err := r.store.GetRateLimit(ctx, userID, apiKeyID)
	if errors.Is(err, storage.ErrNotFound) {
		return r.defaults
	}
	if err != nil {
		slog.Warn("Rate limit config lookup failed, serving defaults",
			"principal", p.Key(), "error", err)
		return r.defaults
	}
	return *cfg
}
