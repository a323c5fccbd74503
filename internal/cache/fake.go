package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FakeCache is an in-memory PlacesCache for tests: same interface as the
// production backend, no network.
type FakeCache struct {
	mu      sync.Mutex
	values  map[string]fakeEntry
	locks   map[string]string
	corrupt map[string]bool

	// GetCalls counts Get invocations per key, for tests that want to
	// inspect read traffic.
	GetCalls map[string]int
}

type fakeEntry struct {
	places  []Place
	expires time.Time
}

// NewFakeCache returns an empty FakeCache.
func NewFakeCache() *FakeCache {
	return &FakeCache{
		values:   make(map[string]fakeEntry),
		locks:    make(map[string]string),
		corrupt:  make(map[string]bool),
		GetCalls: make(map[string]int),
	}
}

// Poison marks key as corrupted: subsequent Get calls return ErrCorrupted
// until the entry is explicitly replaced, letting tests exercise corrupted-
// value handling without a real decode failure.
func (c *FakeCache) Poison(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.corrupt[key] = true
}

func (c *FakeCache) Get(ctx context.Context, key string) ([]Place, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.GetCalls[key]++

	if c.corrupt[key] {
		return nil, ErrCorrupted
	}

	entry, ok := c.values[key]
	if !ok {
		return nil, ErrMiss
	}
	if !entry.expires.IsZero() && time.Now().After(entry.expires) {
		delete(c.values, key)
		return nil, ErrMiss
	}
	out := make([]Place, len(entry.places))
	copy(out, entry.places)
	return out, nil
}

func (c *FakeCache) Set(ctx context.Context, key string, places []Place, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := make([]Place, len(places))
	copy(stored, places)

	var expires time.Time
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}
	c.values[key] = fakeEntry{places: stored, expires: expires}
	delete(c.corrupt, key)
	return nil
}

func (c *FakeCache) AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, held := c.locks[lockKey(key)]; held {
		return "", ErrLockHeld
	}
	token := uuid.NewString()
	c.locks[lockKey(key)] = token
	return token, nil
}

func (c *FakeCache) ReleaseLock(ctx context.Context, key, leaseToken string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.locks[lockKey(key)] == leaseToken {
		delete(c.locks, lockKey(key))
	}
	return nil
}
