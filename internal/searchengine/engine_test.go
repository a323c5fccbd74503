package searchengine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geoplaces/geosearch/internal/cache"
	"github.com/geoplaces/geosearch/internal/geo"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return logrus.NewEntry(l)
}

// stubFetcher returns a fixed place list for every cell and counts calls,
// mirroring the Python original's stub upstream fixture.
type stubFetcher struct {
	places []cache.Place
	calls  int32
}

func (s *stubFetcher) FetchPlacesForCell(ctx context.Context, cell geo.Cell) ([]cache.Place, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.places, nil
}

type collectingSink struct {
	mu     sync.Mutex
	batches [][]cache.Place
}

func (c *collectingSink) OnBatch(places []cache.Place) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, places)
}

// Scenario D: caching idempotence — two sequential searches produce
// identical result sets, and the second performs zero upstream calls.
func TestSearchCachingIdempotence(t *testing.T) {
	// The stub places sit at the region center so they survive the
	// distance filter.
	fetcher := &stubFetcher{places: []cache.Place{
		{Name: "A", Lat: 38.826589, Lon: -77.302557, State: "VA", Zip: "22030"},
		{Name: "B", Lat: 38.826589, Lon: -77.302557, State: "VA", Zip: "22030"},
		{Name: "C", Lat: 38.826589, Lon: -77.302557, State: "VA", Zip: "22030"},
	}}
	c := cache.NewFakeCache()
	engine := New(c, fetcher, 16, testLogger())
	region := geo.NewSearchRegion(38.826589, -77.302557, 300)

	sink1 := &collectingSink{}
	first := engine.Search(context.Background(), region, sink1, nil)
	require.NotEmpty(t, first)

	callsAfterFirst := atomic.LoadInt32(&fetcher.calls)
	require.Greater(t, callsAfterFirst, int32(0))

	sink2 := &collectingSink{}
	second := engine.Search(context.Background(), region, sink2, nil)

	assert.ElementsMatch(t, first, second)
	assert.Equal(t, callsAfterFirst, atomic.LoadInt32(&fetcher.calls))
}

// Scenario F: filter correctness — only places within radius survive.
func TestSearchFiltersByExactDistance(t *testing.T) {
	region := geo.NewSearchRegion(38.826589, -77.302557, 1000)

	near := offsetPlace(region, 500)
	far := offsetPlace(region, 1500)

	fetcher := &stubFetcher{places: []cache.Place{near, far}}
	c := cache.NewFakeCache()
	engine := New(c, fetcher, 16, testLogger())

	result := engine.Search(context.Background(), region, &collectingSink{}, nil)

	// Every leaf fetch returns both stub places and the engine does not
	// deduplicate across cells, so "near" survives once per upstream call
	// and "far" never does.
	assert.Len(t, result, int(atomic.LoadInt32(&fetcher.calls)))
	assert.Equal(t, near.Name, result[0].Name)
	for _, p := range result {
		assert.Equal(t, near.Name, p.Name)
	}
}

func offsetPlace(region geo.SearchRegion, meters float64) cache.Place {
	// Roughly meters north of the region center; precise enough for the
	// >1000m vs <1000m distinction this test checks.
	dLat := meters / 111320.0
	name := "near"
	if meters > 1000 {
		name = "far"
	}
	return cache.Place{Name: name, Lat: region.Lat + dLat, Lon: region.Lon, State: "VA", Zip: "22030"}
}

// Property 9: a poisoned cache entry is treated as a miss and the engine
// still proceeds, leaving the poison in place.
func TestSearchTreatsCorruptedEntryAsMissWithoutRepopulating(t *testing.T) {
	region := geo.NewSearchRegion(38.826589, -77.302557, 300)
	center := geo.CellFromRegion(region)
	children := geo.Children(center)

	fetcher := &stubFetcher{places: []cache.Place{{Name: "A", State: "VA", Zip: "22030"}}}
	c := cache.NewFakeCache()
	c.Poison(children[0].Token)

	engine := New(c, fetcher, 16, testLogger())
	result := engine.Search(context.Background(), region, &collectingSink{}, nil)

	assert.NotNil(t, result)

	_, err := c.Get(context.Background(), children[0].Token)
	assert.ErrorIs(t, err, cache.ErrCorrupted)
}

// Property 5 / sanity: search never returns a place beyond region.RadiusM.
func TestSearchNeverReturnsPlacesOutsideRadius(t *testing.T) {
	region := geo.NewSearchRegion(38.826589, -77.302557, 300)
	fetcher := &stubFetcher{places: []cache.Place{
		offsetPlace(region, 100),
		offsetPlace(region, 5000),
	}}
	c := cache.NewFakeCache()
	engine := New(c, fetcher, 16, testLogger())

	result := engine.Search(context.Background(), region, &collectingSink{}, nil)
	for _, p := range result {
		d := geo.Haversine(region.Lat, region.Lon, p.Lat, p.Lon)
		assert.LessOrEqual(t, d, region.RadiusM)
	}
}

// slowCountingFetcher counts calls and blocks until release is closed, used
// to force concurrent Search calls to race on the same covering cell's lock.
type slowCountingFetcher struct {
	places  []cache.Place
	calls   int32
	release chan struct{}
}

func (s *slowCountingFetcher) FetchPlacesForCell(ctx context.Context, cell geo.Cell) ([]cache.Place, error) {
	atomic.AddInt32(&s.calls, 1)
	<-s.release
	return s.places, nil
}

// Property 8: single-flight — N concurrent identical searches against a
// cold cache share one upstream call per covering cell, not one per caller.
func TestSearchConcurrentCallsShareSingleUpstreamFetchPerCoveringCell(t *testing.T) {
	region := geo.NewSearchRegion(38.826589, -77.302557, 300)
	center := geo.CellFromRegion(region)
	coveringCells := len(geo.CoveringSet(region))

	fetcher := &slowCountingFetcher{
		places:  []cache.Place{{Name: "A", State: "VA", Zip: "22030"}},
		release: make(chan struct{}),
	}
	c := cache.NewFakeCache()
	engine := New(c, fetcher, center.Level, testLogger())

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			engine.Search(context.Background(), region, &collectingSink{}, nil)
		}()
	}

	// Let every caller reach AcquireLock/AwaitFreshValue before the one
	// upstream call in flight is allowed to complete.
	time.Sleep(20 * time.Millisecond)
	close(fetcher.release)
	wg.Wait()

	assert.LessOrEqual(t, int(atomic.LoadInt32(&fetcher.calls)), coveringCells)
}

// cancelledToken is a CancellationToken that is always cancelled.
type cancelledToken struct{}

func (cancelledToken) Cancelled() bool { return true }

func TestSearchRespectsCancellationToken(t *testing.T) {
	region := geo.NewSearchRegion(38.826589, -77.302557, 300)
	fetcher := &stubFetcher{places: []cache.Place{{Name: "A", State: "VA", Zip: "22030"}}}
	c := cache.NewFakeCache()
	engine := New(c, fetcher, 16, testLogger())

	result := engine.Search(context.Background(), region, &collectingSink{}, cancelledToken{})
	assert.Nil(t, result)
}
