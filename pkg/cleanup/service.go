// Package cleanup provides the periodic maintenance loop: sliding-window
// eviction, request-log pruning, and expired auth-session removal.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/relayops/agentgate/pkg/ratelimit"
	"github.com/relayops/agentgate/pkg/storage"
)

// idleMultiplier stretches the tick interval while the limiter has seen no
// traffic for longer than IdleAfter.
const idleMultiplier = 6

// Service periodically evicts stale limiter state and prunes expired store
// rows. All operations are idempotent; a panic in one pass is recovered so
// the loop keeps running.
type Service struct {
	limiter  *ratelimit.RateLimiter
	store    storage.Store
	interval time.Duration

	// IdleAfter puts the loop into low-frequency mode after this long
	// without limiter activity. Zero disables idle detection.
	idleAfter time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a cleanup service. store may be nil.
func NewService(limiter *ratelimit.RateLimiter, store storage.Store, interval, idleAfter time.Duration) *Service {
	return &Service{
		limiter:   limiter,
		store:     store,
		interval:  interval,
		idleAfter: idleAfter,
	}
}

// Start launches the background cleanup loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Cleanup service started",
		"interval", s.interval, "idle_after", s.idleAfter)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.runOnce(ctx)

	timer := time.NewTimer(s.nextInterval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.runOnce(ctx)
			timer.Reset(s.nextInterval())
		}
	}
}

// nextInterval stretches the tick while the limiter is idle; fresh activity
// restores the configured interval on the following tick.
func (s *Service) nextInterval() time.Duration {
	if s.idleAfter > 0 && time.Since(s.limiter.LastActivity()) > s.idleAfter {
		return s.interval * idleMultiplier
	}
	return s.interval
}

// runOnce performs one maintenance pass. A panic must not poison the
// limiter or kill the loop.
func (s *Service) runOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Cleanup pass panicked", "panic", r)
		}
	}()

	s.limiter.Cleanup(ctx)

	if s.store != nil {
		if n, err := s.store.PruneAuthSessions(ctx, time.Now()); err != nil {
			slog.Warn("Auth session prune failed", "error", err)
		} else if n > 0 {
			slog.Info("Pruned expired auth sessions", "count", n)
		}
	}
}
