package dispatcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geoplaces/geosearch/internal/cache"
	"github.com/geoplaces/geosearch/internal/geo"
	"github.com/geoplaces/geosearch/internal/searchengine"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return logrus.NewEntry(l)
}

// slowEngine blocks until released, letting tests deterministically
// interleave two requests.
type slowEngine struct {
	release chan struct{}
	result  []cache.Place
}

func (e *slowEngine) Search(ctx context.Context, region geo.SearchRegion, sink searchengine.Sink, token searchengine.CancellationToken) []cache.Place {
	<-e.release
	sink.OnBatch(e.result)
	return e.result
}

type recordingEmitter struct {
	mu        sync.Mutex
	updates   [][]cache.Place
	completes []int
	errors    []string
}

func (e *recordingEmitter) EmitPlacesUpdate(places []cache.Place) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.updates = append(e.updates, places)
}

func (e *recordingEmitter) EmitPlacesComplete(total int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.completes = append(e.completes, total)
}

func (e *recordingEmitter) EmitError(message string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errors = append(e.errors, message)
}

// Scenario E: supersession. A newer location_update cancels the first
// request's in-flight worker; no update/complete for request A is emitted
// after B supersedes it.
func TestSessionSupersessionDropsStaleResults(t *testing.T) {
	engineA := &slowEngine{release: make(chan struct{}), result: []cache.Place{{Name: "stale", State: "VA", Zip: "22030"}}}
	emitter := &recordingEmitter{}

	// Use a session whose engine blocks on the first call then is swapped
	// for a fast one on the second, modeling "A is mid-flight when B arrives".
	seq := &sequencedEngine{engines: []Engine{engineA, fastEngine{result: []cache.Place{{Name: "fresh", State: "MD", Zip: "20740"}}}}}
	s := NewSession(seq, emitter, testLogger())

	regionA := geo.NewSearchRegion(38.83, -77.31, 300)
	regionB := geo.NewSearchRegion(38.90, -77.03, 300)

	s.HandleLocationUpdate(context.Background(), regionA)
	time.Sleep(5 * time.Millisecond)
	s.HandleLocationUpdate(context.Background(), regionB)

	// Release A only after B has already been dispatched and (being fast)
	// has very likely completed.
	time.Sleep(10 * time.Millisecond)
	close(engineA.release)

	s.Wait()

	emitter.mu.Lock()
	defer emitter.mu.Unlock()

	require.Len(t, emitter.completes, 1, "exactly one places_complete for the superseding request")
	for _, batch := range emitter.updates {
		for _, p := range batch {
			assert.NotEqual(t, "stale", p.Name, "no update from the superseded request may be emitted")
		}
	}
}

// sequencedEngine hands out its configured engines in call order, letting a
// test give request A and request B distinct (and independently
// controllable) behavior.
type sequencedEngine struct {
	mu      sync.Mutex
	engines []Engine
	next    int
}

func (s *sequencedEngine) Search(ctx context.Context, region geo.SearchRegion, sink searchengine.Sink, token searchengine.CancellationToken) []cache.Place {
	s.mu.Lock()
	e := s.engines[s.next]
	s.next++
	s.mu.Unlock()
	return e.Search(ctx, region, sink, token)
}

type fastEngine struct {
	result []cache.Place
}

func (e fastEngine) Search(ctx context.Context, region geo.SearchRegion, sink searchengine.Sink, token searchengine.CancellationToken) []cache.Place {
	sink.OnBatch(e.result)
	return e.result
}

func TestSessionDisconnectCancelsWorkers(t *testing.T) {
	engine := &slowEngine{release: make(chan struct{}), result: []cache.Place{{Name: "A", State: "VA", Zip: "22030"}}}
	emitter := &recordingEmitter{}
	s := NewSession(engine, emitter, testLogger())

	s.HandleLocationUpdate(context.Background(), geo.NewSearchRegion(38.9, -77.0, 300))
	s.HandleDisconnect()
	close(engine.release)
	s.Wait()

	emitter.mu.Lock()
	defer emitter.mu.Unlock()
	assert.Empty(t, emitter.completes)
	assert.Empty(t, emitter.updates)
}
