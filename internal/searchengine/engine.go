// Package searchengine implements the recursive S2 tree-walk over the
// places cache and upstream fetcher.
package searchengine

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/geoplaces/geosearch/internal/cache"
	"github.com/geoplaces/geosearch/internal/geo"
)

// DefaultMaxRecursionLevel is the fixed depth walk descends to before
// treating a cell as a leaf. It is configurable rather than hardcoded.
const DefaultMaxRecursionLevel = 16

// CancellationToken lets a worker check, before every suspension point,
// whether its request has been superseded or the session has disconnected.
type CancellationToken interface {
	Cancelled() bool
}

// alwaysActive is the token used when the caller has no supersession
// concept (e.g. direct engine tests).
type alwaysActive struct{}

func (alwaysActive) Cancelled() bool { return false }

// AlwaysActive is a CancellationToken that never cancels.
var AlwaysActive CancellationToken = alwaysActive{}

// Sink receives partial results as the walk discovers them. Implementations
// perform their own cancellation check and transport emit; tests substitute
// an in-memory collector.
type Sink interface {
	OnBatch(places []cache.Place)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(places []cache.Place)

func (f SinkFunc) OnBatch(places []cache.Place) { f(places) }

// Fetcher is the subset of upstream.Fetcher the engine depends on.
type Fetcher interface {
	FetchPlacesForCell(ctx context.Context, cell geo.Cell) ([]cache.Place, error)
}

// Engine is the hierarchical caching search engine.
type Engine struct {
	Cache              cache.PlacesCache
	Fetcher            Fetcher
	MaxRecursionLevel  int
	log                *logrus.Entry
}

// New constructs an Engine. maxRecursionLevel <= 0 uses DefaultMaxRecursionLevel.
func New(c cache.PlacesCache, f Fetcher, maxRecursionLevel int, log *logrus.Entry) *Engine {
	if maxRecursionLevel <= 0 {
		maxRecursionLevel = DefaultMaxRecursionLevel
	}
	return &Engine{Cache: c, Fetcher: f, MaxRecursionLevel: maxRecursionLevel, log: log}
}

// Search computes the covering set for region, walks each covering cell
// concurrently, streams partial batches to sink, and returns the places
// within region.RadiusM of its center.
func (e *Engine) Search(ctx context.Context, region geo.SearchRegion, sink Sink, token CancellationToken) []cache.Place {
	if token == nil {
		token = AlwaysActive
	}

	covering := geo.CoveringSet(region)

	var mu sync.Mutex
	var all []cache.Place
	var wg sync.WaitGroup

	for _, cell := range covering {
		wg.Add(1)
		go func(c geo.Cell) {
			defer wg.Done()
			places := e.searchCoveringCell(ctx, c, sink, token)

			mu.Lock()
			all = append(all, places...)
			mu.Unlock()
		}(cell)
	}
	wg.Wait()

	if token.Cancelled() {
		return nil
	}

	out := make([]cache.Place, 0, len(all))
	for _, p := range all {
		if geo.Haversine(region.Lat, region.Lon, p.Lat, p.Lon) <= region.RadiusM {
			out = append(out, p)
		}
	}
	return out
}

// searchCoveringCell is the single entry point for one covering cell's
// subtree. A lock is acquired here, at the top of the walk, never per
// child: concurrent searches that land on the same covering cell share one
// upstream walk instead of one each. The cell's existing cache entry is
// checked first so a warm cell never takes the lock at all; only a miss
// goes through acquire/walk/set/release, with AwaitFreshValue as the
// contention fallback for callers that lose the race.
func (e *Engine) searchCoveringCell(ctx context.Context, cell geo.Cell, sink Sink, token CancellationToken) []cache.Place {
	places, err := e.Cache.Get(ctx, cell.Token)
	switch {
	case err == nil:
		if !token.Cancelled() {
			sink.OnBatch(places)
		}
		return places
	case err == cache.ErrCorrupted:
		e.log.WithField("cell", cell.Token).Warn("corrupted cache entry treated as miss, not repopulated")
		return e.walk(ctx, cell, sink, token)
	}

	lease, lockErr := e.Cache.AcquireLock(ctx, cell.Token, cache.LockTTL)
	switch {
	case lockErr == cache.ErrLockHeld:
		fresh, waitErr := cache.AwaitFreshValue(ctx, e.Cache, cell.Token)
		if waitErr == nil {
			if !token.Cancelled() {
				sink.OnBatch(fresh)
			}
			return fresh
		}
		e.log.WithField("cell", cell.Token).WithError(waitErr).Debug("lock contention wait failed, walking directly")
		return e.walk(ctx, cell, sink, token)
	case lockErr != nil:
		e.log.WithField("cell", cell.Token).WithError(lockErr).Debug("transient lock acquire failure, walking without lock")
		return e.walk(ctx, cell, sink, token)
	}

	defer func() {
		if relErr := e.Cache.ReleaseLock(ctx, cell.Token, lease); relErr != nil {
			e.log.WithField("cell", cell.Token).WithError(relErr).Debug("transient lock release failure")
		}
	}()

	places = e.walk(ctx, cell, sink, token)
	if setErr := e.Cache.Set(ctx, cell.Token, places, cache.PlaceTTL); setErr != nil {
		e.log.WithField("cell", cell.Token).WithError(setErr).Debug("transient cache set failure, continuing")
	}
	return places
}

// walk recursively descends cell to MaxRecursionLevel, consulting the cache
// at each child and falling back to the upstream fetcher at leaves.
func (e *Engine) walk(ctx context.Context, cell geo.Cell, sink Sink, token CancellationToken) []cache.Place {
	if token.Cancelled() {
		return nil
	}

	if cell.Level >= e.MaxRecursionLevel {
		places, err := e.Fetcher.FetchPlacesForCell(ctx, cell)
		if err != nil {
			e.log.WithField("cell", cell.Token).WithError(err).Debug("upstream fetch failed, treating leaf as empty")
			return nil
		}
		if !token.Cancelled() {
			sink.OnBatch(places)
		}
		return places
	}

	var aggregate []cache.Place
	for _, child := range geo.Children(cell) {
		if token.Cancelled() {
			return aggregate
		}

		places, err := e.Cache.Get(ctx, child.Token)
		switch {
		case err == nil:
			aggregate = append(aggregate, places...)
			if !token.Cancelled() {
				sink.OnBatch(places)
			}
		case err == cache.ErrMiss:
			childPlaces := e.walk(ctx, child, sink, token)
			if err := e.Cache.Set(ctx, child.Token, childPlaces, cache.PlaceTTL); err != nil {
				e.log.WithField("cell", child.Token).WithError(err).Debug("transient cache set failure, continuing")
			}
			aggregate = append(aggregate, childPlaces...)
		case err == cache.ErrCorrupted:
			e.log.WithField("cell", child.Token).Warn("corrupted cache entry treated as miss, not repopulated")
			childPlaces := e.walk(ctx, child, sink, token)
			aggregate = append(aggregate, childPlaces...)
		default:
			e.log.WithField("cell", child.Token).WithError(err).Debug("transient cache get failure, treating as miss")
			childPlaces := e.walk(ctx, child, sink, token)
			if setErr := e.Cache.Set(ctx, child.Token, childPlaces, cache.PlaceTTL); setErr != nil {
				e.log.WithField("cell", child.Token).WithError(setErr).Debug("transient cache set failure, continuing")
			}
			aggregate = append(aggregate, childPlaces...)
		}
	}
	return aggregate
}

