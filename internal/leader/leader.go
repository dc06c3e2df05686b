// Package leader provides at-most-one-active-executor election for periodic
// jobs across identical process replicas. Mutations guarded by the lease must
// stay idempotent: clock skew can let a stale holder briefly double-execute,
// and the design tolerates that rather than preventing it.
package leader

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Elector reports whether this process currently holds leadership.
type Elector interface {
	IsLeader() bool
}

// StaticElector answers with a fixed value. Used for single-replica
// deployments (no Redis configured) and in tests.
type StaticElector struct {
	Leader bool
}

func (s StaticElector) IsLeader() bool { return s.Leader }

// LeaseStore is the distributed mutual-exclusion primitive behind the
// elector. Implementations must be atomic per operation.
type LeaseStore interface {
	// Acquire claims the lease for holder if nobody holds it. Returns true
	// on success.
	Acquire(ctx context.Context, key, holder string, ttl time.Duration) (bool, error)
	// Refresh extends the lease if holder still owns it. Returns false when
	// the lease was lost.
	Refresh(ctx context.Context, key, holder string, ttl time.Duration) (bool, error)
	// Release drops the lease if holder owns it.
	Release(ctx context.Context, key, holder string) error
}

// LeaseElector maintains a lease through a refresh loop and exposes the
// current standing through IsLeader.
type LeaseElector struct {
	store   LeaseStore
	key     string
	holder  string
	ttl     time.Duration
	logger  *slog.Logger
	leading atomic.Bool
}

func NewLeaseElector(store LeaseStore, key, holder string, ttl time.Duration, logger *slog.Logger) *LeaseElector {
	return &LeaseElector{
		store:  store,
		key:    key,
		holder: holder,
		ttl:    ttl,
		logger: logger,
	}
}

// IsLeader reflects the outcome of the most recent acquire/refresh tick. The
// reconciler consults this before any state-mutating work.
func (e *LeaseElector) IsLeader() bool {
	return e.leading.Load()
}

// Run drives the lease until ctx is cancelled, then releases it so another
// replica can take over without waiting out the TTL.
func (e *LeaseElector) Run(ctx context.Context) error {
	// Refresh well inside the TTL so a single slow tick does not lose the
	// lease.
	ticker := time.NewTicker(e.ttl / 3)
	defer ticker.Stop()

	e.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			if e.leading.Swap(false) {
				releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := e.store.Release(releaseCtx, e.key, e.holder); err != nil {
					e.logger.Warn("lease release failed, lease will expire on its own", "error", err)
				}
			}
			return ctx.Err()
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

func (e *LeaseElector) tick(ctx context.Context) {
	tickCtx, cancel := context.WithTimeout(ctx, e.ttl/3)
	defer cancel()

	if e.leading.Load() {
		held, err := e.store.Refresh(tickCtx, e.key, e.holder, e.ttl)
		if err != nil {
			// Fail closed: without a confirmed lease we must not act as
			// leader.
			e.logger.Warn("lease refresh failed, relinquishing leadership", "error", err)
			e.leading.Store(false)
			return
		}
		if !held {
			e.logger.Info("leadership lost", "key", e.key)
			e.leading.Store(false)
		}
		return
	}

	acquired, err := e.store.Acquire(tickCtx, e.key, e.holder, e.ttl)
	if err != nil {
		e.logger.Warn("lease acquire failed", "error", err)
		return
	}
	if acquired {
		e.logger.Info("leadership acquired", "key", e.key, "holder", e.holder)
		e.leading.Store(true)
	}
}
