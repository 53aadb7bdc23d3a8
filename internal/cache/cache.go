// Package cache fronts the balance store with a TTL'd read cache.
//
// Contract: keys are symmetric per pair, values are the raw signed net amount
// in minor units and nothing else. Viewpoint messages are direction-dependent
// and must always be derived fresh from the raw value by the caller. The
// cache is disposable: a miss or a wipe costs latency, never correctness.
package cache

import (
	"context"
	"time"
)

// Cache is the injected capability used by the ledger service. Every
// implementation canonicalizes the pair internally, so Get(a, b) and
// Get(b, a) address the same entry.
type Cache interface {
	// GetBalance returns the cached net amount and whether it was present.
	GetBalance(ctx context.Context, userA, userB string) (int64, bool, error)
	// SetBalance stores the raw net amount with the given TTL.
	SetBalance(ctx context.Context, userA, userB string, netAmount int64, ttl time.Duration) error
	// Invalidate unconditionally deletes the pair's entry.
	Invalidate(ctx context.Context, userA, userB string) error
	Close() error
}
