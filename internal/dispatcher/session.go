// Package dispatcher implements the per-client session state machine that
// drives the search engine on a worker and supersedes stale requests.
package dispatcher

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/geoplaces/geosearch/internal/cache"
	"github.com/geoplaces/geosearch/internal/geo"
	"github.com/geoplaces/geosearch/internal/searchengine"
)

// Engine is the subset of searchengine.Engine the dispatcher depends on.
type Engine interface {
	Search(ctx context.Context, region geo.SearchRegion, sink searchengine.Sink, token searchengine.CancellationToken) []cache.Place
}

// Emitter delivers outbound protocol messages to the connected client. A
// transport implementation (internal/transport) owns the actual socket
// write; tests substitute an in-memory collector.
type Emitter interface {
	EmitPlacesUpdate(places []cache.Place)
	EmitPlacesComplete(total int)
	EmitError(message string)
}

// Session is one connected client's state for the lifetime of one
// connection. Not safe to share across connections; the zero value is not
// usable, use NewSession.
type Session struct {
	log     *logrus.Entry
	engine  Engine
	emitter Emitter

	mu               sync.Mutex
	activeRequestID  uint64
	workersWG        sync.WaitGroup
	disconnected     bool
}

// NewSession constructs an idle session bound to engine and emitter.
func NewSession(engine Engine, emitter Emitter, log *logrus.Entry) *Session {
	return &Session{engine: engine, emitter: emitter, log: log}
}

// requestToken implements searchengine.CancellationToken by comparing a
// captured request id against the session's current one, plus the
// session's disconnected flag. A value token avoids a cyclic
// session<->worker reference.
type requestToken struct {
	session   *Session
	requestID uint64
}

func (t requestToken) Cancelled() bool {
	t.session.mu.Lock()
	defer t.session.mu.Unlock()
	return t.session.disconnected || t.session.activeRequestID != t.requestID
}

// HandleLocationUpdate supersedes any in-flight request by incrementing
// activeRequestID, then spawns a new worker for the new request. Returns
// immediately; the worker streams results asynchronously via emitter.
func (s *Session) HandleLocationUpdate(ctx context.Context, region geo.SearchRegion) {
	s.mu.Lock()
	s.activeRequestID++
	requestID := s.activeRequestID
	s.mu.Unlock()

	token := requestToken{session: s, requestID: requestID}

	s.workersWG.Add(1)
	go s.runWorker(ctx, region, token)
}

func (s *Session) runWorker(ctx context.Context, region geo.SearchRegion, token requestToken) {
	defer s.workersWG.Done()

	defer func() {
		if r := recover(); r != nil {
			if !token.Cancelled() {
				s.emitter.EmitError("internal error during search")
			}
			s.log.WithField("panic", r).Error("search worker panicked")
		}
	}()

	sink := searchengine.SinkFunc(func(places []cache.Place) {
		if token.Cancelled() {
			return
		}
		s.emitter.EmitPlacesUpdate(places)
	})

	result := s.engine.Search(ctx, region, sink, token)

	if token.Cancelled() {
		return
	}
	s.emitter.EmitPlacesComplete(len(result))
}

// HandleDisconnect marks the session disconnected, which cancels every
// outstanding worker's token: in-flight work stops emitting at its next
// cancellation check.
func (s *Session) HandleDisconnect() {
	s.mu.Lock()
	s.disconnected = true
	s.mu.Unlock()
}

// Wait blocks until all spawned workers have returned. Used by tests and by
// the transport layer during an orderly shutdown.
func (s *Session) Wait() {
	s.workersWG.Wait()
}

// activeRequestIDSnapshot exposes the current request id for tests that
// assert on supersession without reaching into session internals directly.
func (s *Session) activeRequestIDSnapshot() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeRequestID
}
