// Package cache is a key/value store over a cell token, with set-if-absent
// lease locks for single-flight writes.
package cache

import (
	"context"
	"time"
)

// PlaceTTL is how long a place list stays cached for a cell token.
const PlaceTTL = 12 * time.Hour

// LockTTL bounds how long a lease lock may be held before it expires on its
// own, guarding against a holder that never releases.
const LockTTL = 10 * time.Second

// PollInterval and PollWindow govern the lock-contention polling fallback:
// a caller that loses the lock race polls Get at PollInterval up to
// PollWindow before giving up and doing the work itself.
const (
	PollInterval = 50 * time.Millisecond
	PollWindow   = 3 * time.Second
)

// PlacesCache is the contract the search engine depends on. Implementations
// must be safe for concurrent use by many goroutines.
type PlacesCache interface {
	// Get returns the cached places for key, ErrMiss if absent, or
	// ErrCorrupted if the stored value cannot be decoded. A transient
	// backend failure is returned as *TransientError; callers treat it
	// identically to ErrMiss.
	Get(ctx context.Context, key string) ([]Place, error)

	// Set stores places under key with the given TTL. A transient failure
	// is logged by the caller and otherwise ignored: cache writes are
	// fire-and-forget and never retried.
	Set(ctx context.Context, key string, places []Place, ttl time.Duration) error

	// AcquireLock attempts to set key's lease atomically. On success it
	// returns a lease token the caller must present to ReleaseLock. On
	// contention it returns ErrLockHeld immediately; polling is the
	// caller's responsibility (see AwaitFreshValue).
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (leaseToken string, err error)

	// ReleaseLock deletes key's lease iff its current value equals
	// leaseToken (compare-and-delete). Releasing a lease you do not hold
	// is a no-op, never an error.
	ReleaseLock(ctx context.Context, key, leaseToken string) error
}

// lockKey returns the lease key for a cell token.
func lockKey(cellToken string) string {
	return cellToken + ":lock"
}

// AwaitFreshValue polls Get(key) at PollInterval until it returns a hit, a
// corrupted value, or PollWindow elapses, whichever comes first. A caller
// that lost the lock race waits for the winner to populate the key before
// giving up and doing the work itself.
func AwaitFreshValue(ctx context.Context, c PlacesCache, key string) ([]Place, error) {
	deadline := time.Now().Add(PollWindow)
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		places, err := c.Get(ctx, key)
		if err == nil {
			return places, nil
		}
		if err != ErrMiss && !isTransient(err) {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, ErrMiss
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func isTransient(err error) bool {
	_, ok := err.(*TransientError)
	return ok
}
