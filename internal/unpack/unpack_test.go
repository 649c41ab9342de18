package unpack_test

import (
	"archive/zip"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/prism-etl/internal/domain"
	"github.com/couchcryptid/prism-etl/internal/observability"
	"github.com/couchcryptid/prism-etl/internal/unpack"
)

const archiveURL = "/daily/tmean/2005/PRISM_tmean_stable_4kmD2_20050615_bil.zip"

// writeZip builds a zip file containing the given members.
func writeZip(t *testing.T, path string, members map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, content := range members {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

// fileStore serves a single local zip as the remote archive, optionally
// failing the first few fetches.
type fileStore struct {
	src        string
	fetchCalls int
	failures   int
	failWith   error
}

func (s *fileStore) Glob(context.Context, string) ([]string, error) { return nil, nil }
func (s *fileStore) Close() error                                   { return nil }

func (s *fileStore) Fetch(_ context.Context, _ string, localPath string) error {
	s.fetchCalls++
	if s.fetchCalls <= s.failures {
		return s.failWith
	}
	data, err := os.ReadFile(s.src)
	if err != nil {
		return err
	}
	return os.WriteFile(localPath, data, 0o644)
}

func newUnpacker(store *fileStore) *unpack.Unpacker {
	return unpack.New(store, slog.Default(), observability.NewMetricsForTesting())
}

func wellFormedMembers() map[string]string {
	return map[string]string{
		"PRISM_tmean_stable_4kmD2_20050615_bil.bil": "raster body",
		"PRISM_tmean_stable_4kmD2_20050615_bil.hdr": "NROWS 1",
		"PRISM_tmean_stable_4kmD2_20050615_bil.prj": "GEOGCS",
	}
}

func TestWithRaster_YieldsExtractedRaster(t *testing.T) {
	src := filepath.Join(t.TempDir(), "archive.zip")
	writeZip(t, src, wellFormedMembers())
	u := newUnpacker(&fileStore{src: src})

	var seenPath string
	err := u.WithRaster(context.Background(), archiveURL, func(rasterPath string) error {
		seenPath = rasterPath

		data, err := os.ReadFile(rasterPath)
		require.NoError(t, err)
		assert.Equal(t, "raster body", string(data))

		// Sidecars must be extracted next to the raster.
		dir := filepath.Dir(rasterPath)
		for _, sidecar := range []string{"PRISM_tmean_stable_4kmD2_20050615_bil.hdr", "PRISM_tmean_stable_4kmD2_20050615_bil.prj"} {
			_, err := os.Stat(filepath.Join(dir, sidecar))
			assert.NoError(t, err)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, ".bil", filepath.Ext(seenPath))

	_, err = os.Stat(filepath.Dir(seenPath))
	assert.True(t, os.IsNotExist(err), "extraction dir must be removed after scope exit")
}

func TestWithRaster_FlattensArchivePaths(t *testing.T) {
	src := filepath.Join(t.TempDir(), "archive.zip")
	writeZip(t, src, map[string]string{
		"nested/dir/PRISM_tmean_stable_4kmD2_20050615_bil.bil": "raster body",
		"nested/PRISM_tmean_stable_4kmD2_20050615_bil.hdr":     "NROWS 1",
	})
	u := newUnpacker(&fileStore{src: src})

	err := u.WithRaster(context.Background(), archiveURL, func(rasterPath string) error {
		assert.Equal(t, "PRISM_tmean_stable_4kmD2_20050615_bil.bil", filepath.Base(rasterPath))
		_, err := os.Stat(filepath.Join(filepath.Dir(rasterPath), "PRISM_tmean_stable_4kmD2_20050615_bil.hdr"))
		return err
	})
	require.NoError(t, err)
}

func TestWithRaster_NoRasterMember(t *testing.T) {
	scratch := t.TempDir()
	t.Setenv("TMPDIR", scratch)

	src := filepath.Join(t.TempDir(), "archive.zip")
	writeZip(t, src, map[string]string{"readme.txt": "nothing here"})
	u := newUnpacker(&fileStore{src: src})

	called := false
	err := u.WithRaster(context.Background(), archiveURL, func(string) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, called)

	var malformed *domain.MalformedArchiveError
	require.ErrorAs(t, err, &malformed)
	assert.Empty(t, malformed.Rasters)

	entries, err := os.ReadDir(scratch)
	require.NoError(t, err)
	assert.Empty(t, entries, "no residual extraction dirs after failure")
}

func TestWithRaster_MultipleRasterMembers(t *testing.T) {
	src := filepath.Join(t.TempDir(), "archive.zip")
	writeZip(t, src, map[string]string{
		"first.bil":  "a",
		"second.bil": "b",
	})
	u := newUnpacker(&fileStore{src: src})

	err := u.WithRaster(context.Background(), archiveURL, func(string) error { return nil })
	require.Error(t, err)

	var malformed *domain.MalformedArchiveError
	require.ErrorAs(t, err, &malformed)
	assert.Len(t, malformed.Rasters, 2)
}

func TestWithRaster_CleansUpWhenCallbackFails(t *testing.T) {
	src := filepath.Join(t.TempDir(), "archive.zip")
	writeZip(t, src, wellFormedMembers())
	u := newUnpacker(&fileStore{src: src})

	var dir string
	sentinel := errors.New("decode exploded")
	err := u.WithRaster(context.Background(), archiveURL, func(rasterPath string) error {
		dir = filepath.Dir(rasterPath)
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestFetchRetry_TransientThenSuccess(t *testing.T) {
	src := filepath.Join(t.TempDir(), "archive.zip")
	writeZip(t, src, wellFormedMembers())

	store := &fileStore{
		src:      src,
		failures: 2,
		failWith: &domain.TransientError{Op: "ftp retr", Err: errors.New("i/o timeout")},
	}
	u := newUnpacker(store)

	clock := clockwork.NewFakeClock()
	u.SetClock(clock)

	done := make(chan error, 1)
	go func() {
		done <- u.WithRaster(context.Background(), archiveURL, func(string) error { return nil })
	}()

	// First retry waits 30s, second 60s.
	clock.BlockUntil(1)
	clock.Advance(30 * time.Second)
	clock.BlockUntil(1)
	clock.Advance(60 * time.Second)

	require.NoError(t, <-done)
	assert.Equal(t, 3, store.fetchCalls)
}

func TestFetchRetry_Exhausted(t *testing.T) {
	store := &fileStore{
		failures: 3,
		failWith: &domain.TransientError{Op: "ftp retr", Err: errors.New("i/o timeout")},
	}
	u := newUnpacker(store)

	clock := clockwork.NewFakeClock()
	u.SetClock(clock)

	done := make(chan error, 1)
	go func() {
		done <- u.WithRaster(context.Background(), archiveURL, func(string) error { return nil })
	}()

	clock.BlockUntil(1)
	clock.Advance(30 * time.Second)
	clock.BlockUntil(1)
	clock.Advance(60 * time.Second)

	err := <-done
	require.Error(t, err)
	assert.Contains(t, err.Error(), "3 attempts exhausted")
	assert.Equal(t, 3, store.fetchCalls)
}

func TestFetch_PermanentErrorNotRetried(t *testing.T) {
	store := &fileStore{
		failures: 1,
		failWith: errors.New("550 file unavailable"),
	}
	u := newUnpacker(store)

	err := u.WithRaster(context.Background(), archiveURL, func(string) error { return nil })
	require.Error(t, err)
	assert.Equal(t, 1, store.fetchCalls, "permanent failures must not be retried")
}

func TestFetchRetry_ContextCancelledDuringBackoff(t *testing.T) {
	store := &fileStore{
		failures: 3,
		failWith: &domain.TransientError{Op: "ftp retr", Err: errors.New("i/o timeout")},
	}
	u := newUnpacker(store)

	clock := clockwork.NewFakeClock()
	u.SetClock(clock)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- u.WithRaster(ctx, archiveURL, func(string) error { return nil })
	}()

	clock.BlockUntil(1)
	cancel()

	require.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, 1, store.fetchCalls)
}
