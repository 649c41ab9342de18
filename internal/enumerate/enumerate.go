// Package enumerate lists the remote archive URLs for a year of daily PRISM
// data, memoizing listings per distinct query for the life of the process.
package enumerate

import (
	"context"
	"fmt"
	"sync"

	"github.com/couchcryptid/prism-etl/internal/domain"
	"github.com/couchcryptid/prism-etl/internal/remote"
)

// Query identifies one annual directory of daily archives. Queries are
// comparable and serve directly as cache keys.
type Query struct {
	Year      int
	Variable  string
	Stability string
	Scale     string
	Version   string
}

// Glob returns the remote listing pattern for this query.
func (q Query) Glob() string {
	return domain.ArchiveGlob(q.Variable, q.Year, q.Stability, q.Scale, q.Version)
}

// Enumerator lists daily archive URLs with an explicit memo cache: each
// distinct Query hits the remote store exactly once per process, repeated
// queries return the cached listing. No ordering is imposed beyond whatever
// the remote listing returns.
type Enumerator struct {
	store remote.Store

	mu    sync.Mutex
	cache map[Query][]string
}

// New creates an Enumerator backed by the given store.
func New(store remote.Store) *Enumerator {
	return &Enumerator{
		store: store,
		cache: make(map[Query][]string),
	}
}

// List returns every archive URL matching q, from cache when available.
// Listing failures are fatal for the run and are not retried here; retry
// policy belongs to the unpacker's fetch step.
func (e *Enumerator) List(ctx context.Context, q Query) ([]string, error) {
	// The lock is held across the remote call so a query key is listed at
	// most once even under concurrent use.
	e.mu.Lock()
	defer e.mu.Unlock()

	if urls, ok := e.cache[q]; ok {
		return urls, nil
	}

	urls, err := e.store.Glob(ctx, q.Glob())
	if err != nil {
		return nil, fmt.Errorf("list daily archives for %s/%d: %w", q.Variable, q.Year, err)
	}
	e.cache[q] = urls
	return urls, nil
}

// Reset discards all cached listings. Intended for tests.
func (e *Enumerator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache = make(map[Query][]string)
}
