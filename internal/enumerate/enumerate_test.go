package enumerate_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/prism-etl/internal/enumerate"
)

// countingStore records Glob calls and serves canned listings.
type countingStore struct {
	globCalls []string
	listings  map[string][]string
	err       error
}

func (s *countingStore) Glob(_ context.Context, pattern string) ([]string, error) {
	s.globCalls = append(s.globCalls, pattern)
	if s.err != nil {
		return nil, s.err
	}
	return s.listings[pattern], nil
}

func (s *countingStore) Fetch(context.Context, string, string) error { return nil }
func (s *countingStore) Close() error                                { return nil }

func query(year int) enumerate.Query {
	return enumerate.Query{
		Year:      year,
		Variable:  "tmean",
		Stability: "stable",
		Scale:     "4km",
		Version:   "D2",
	}
}

func TestList_BuildsArchiveGlob(t *testing.T) {
	store := &countingStore{listings: map[string][]string{}}
	e := enumerate.New(store)

	_, err := e.List(context.Background(), query(2005))
	require.NoError(t, err)

	require.Len(t, store.globCalls, 1)
	assert.Equal(t, "/daily/tmean/2005/PRISM_tmean_stable_4kmD2_2005*_bil.zip", store.globCalls[0])
}

func TestList_MemoizesPerQuery(t *testing.T) {
	pattern := query(2020).Glob()
	urls := []string{
		"/daily/tmean/2020/PRISM_tmean_stable_4kmD2_20200102_bil.zip",
		"/daily/tmean/2020/PRISM_tmean_stable_4kmD2_20200101_bil.zip",
	}
	store := &countingStore{listings: map[string][]string{pattern: urls}}
	e := enumerate.New(store)

	first, err := e.List(context.Background(), query(2020))
	require.NoError(t, err)
	second, err := e.List(context.Background(), query(2020))
	require.NoError(t, err)

	assert.Equal(t, urls, first)
	assert.Equal(t, urls, second)
	assert.Len(t, store.globCalls, 1, "identical queries must issue exactly one remote listing")
}

func TestList_DistinctQueriesQuerySeparately(t *testing.T) {
	store := &countingStore{listings: map[string][]string{}}
	e := enumerate.New(store)

	_, err := e.List(context.Background(), query(2020))
	require.NoError(t, err)
	_, err = e.List(context.Background(), query(2021))
	require.NoError(t, err)

	q := query(2020)
	q.Variable = "ppt"
	_, err = e.List(context.Background(), q)
	require.NoError(t, err)

	assert.Len(t, store.globCalls, 3)
}

func TestList_ErrorNotCached(t *testing.T) {
	store := &countingStore{err: errors.New("listing unavailable")}
	e := enumerate.New(store)

	_, err := e.List(context.Background(), query(2020))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list daily archives for tmean/2020")

	// A failed listing must not be memoized.
	store.err = nil
	store.listings = map[string][]string{query(2020).Glob(): {"/daily/tmean/2020/a.zip"}}
	urls, err := e.List(context.Background(), query(2020))
	require.NoError(t, err)
	assert.Len(t, urls, 1)
	assert.Len(t, store.globCalls, 2)
}

func TestReset(t *testing.T) {
	store := &countingStore{listings: map[string][]string{}}
	e := enumerate.New(store)

	_, err := e.List(context.Background(), query(2020))
	require.NoError(t, err)

	e.Reset()

	_, err = e.List(context.Background(), query(2020))
	require.NoError(t, err)
	assert.Len(t, store.globCalls, 2)
}

func TestList_EmptyListingIsCached(t *testing.T) {
	store := &countingStore{listings: map[string][]string{}}
	e := enumerate.New(store)

	for range 2 {
		urls, err := e.List(context.Background(), query(1999))
		require.NoError(t, err)
		assert.Empty(t, urls)
	}
	assert.Len(t, store.globCalls, 1)
}
