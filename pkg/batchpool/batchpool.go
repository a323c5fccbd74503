// Package batchpool recycles the []cache.Place batch slices the dispatcher
// emits on the wire via a sync.Pool, avoiding a fresh allocation per emit.
package batchpool

import (
	"sync"

	"github.com/geoplaces/geosearch/internal/cache"
)

const defaultCapacity = 16

// Pool recycles []cache.Place batches to avoid an allocation on every
// places_update emit.
type Pool struct {
	pool sync.Pool
}

// New returns an empty Pool.
func New() *Pool {
	return &Pool{
		pool: sync.Pool{
			New: func() interface{} {
				return make([]cache.Place, 0, defaultCapacity)
			},
		},
	}
}

// Get returns a zero-length batch with spare capacity.
func (p *Pool) Get() []cache.Place {
	return p.pool.Get().([]cache.Place)[:0]
}

// Put returns batch to the pool after clearing it. Batches larger than a
// few hundred entries are not retained, so one oversized region doesn't
// permanently inflate the pool's steady-state memory.
func (p *Pool) Put(batch []cache.Place) {
	if cap(batch) > 512 {
		return
	}
	p.pool.Put(batch[:0])
}
