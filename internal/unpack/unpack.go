// Package unpack downloads one daily PRISM archive and extracts it into an
// ephemeral directory scoped to a single callback. The BIL raster format
// needs its sidecar files (.hdr, .prj, statistics) in the same directory as
// the raster body, so every archive member is extracted even though only the
// .bil is opened.
package unpack

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/prism-etl/internal/domain"
	"github.com/couchcryptid/prism-etl/internal/observability"
	"github.com/couchcryptid/prism-etl/internal/remote"
)

const (
	fetchAttempts  = 3
	fetchBaseDelay = 30 * time.Second
)

// Unpacker fetches archives with bounded retry and unpacks them into
// callback-scoped temporary directories.
type Unpacker struct {
	store   remote.Store
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New creates an Unpacker reading from the given store.
func New(store remote.Store, logger *slog.Logger, metrics *observability.Metrics) *Unpacker {
	return &Unpacker{
		store:   store,
		clock:   clockwork.NewRealClock(),
		logger:  logger,
		metrics: metrics,
	}
}

// SetClock swaps the time source used for retry backoff. Pass nil to reset to
// real time. Intended for tests.
func (u *Unpacker) SetClock(c clockwork.Clock) {
	if c == nil {
		u.clock = clockwork.NewRealClock()
		return
	}
	u.clock = c
}

// WithRaster downloads the archive at url, extracts it, and invokes fn with
// the path of the single .bil member. The extraction directory and everything
// in it are removed when WithRaster returns, on every exit path; fn must not
// retain the path beyond its own scope.
func (u *Unpacker) WithRaster(ctx context.Context, url string, fn func(rasterPath string) error) error {
	dir, err := os.MkdirTemp("", "prism-unpack-*")
	if err != nil {
		return fmt.Errorf("create extraction dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			u.logger.Warn("remove extraction dir", "dir", dir, "error", err)
		}
	}()

	// Download to a local file first, then unzip. More reliable than
	// streaming the remote archive straight into the zip reader.
	archivePath := filepath.Join(dir, path.Base(url))
	if err := u.fetchWithRetry(ctx, url, archivePath); err != nil {
		return err
	}

	rasterPath, err := extract(archivePath, dir)
	if err != nil {
		return err
	}
	u.logger.Debug("unpacked archive", "url", url, "raster", filepath.Base(rasterPath))

	return fn(rasterPath)
}

// fetchWithRetry downloads url to localPath, retrying transient failures up
// to fetchAttempts times with exponential backoff (30s, then 60s). Permanent
// failures, such as a missing remote file, return immediately.
func (u *Unpacker) fetchWithRetry(ctx context.Context, url, localPath string) error {
	delay := fetchBaseDelay
	for attempt := 1; ; attempt++ {
		start := u.clock.Now()
		err := u.store.Fetch(ctx, url, localPath)
		u.metrics.FetchDuration.Observe(u.clock.Since(start).Seconds())
		if err == nil {
			u.metrics.ArchivesFetched.Inc()
			return nil
		}
		if !domain.IsTransient(err) {
			return fmt.Errorf("fetch %s: %w", url, err)
		}
		if attempt == fetchAttempts {
			return fmt.Errorf("fetch %s: %d attempts exhausted: %w", url, attempt, err)
		}

		u.logger.Warn("transient fetch failure, retrying",
			"url", url,
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
		u.metrics.FetchRetries.Inc()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-u.clock.After(delay):
		}
		delay *= 2
	}
}

// extract writes every member of the archive into dir, flattening any
// internal directory structure to bare filenames, and returns the path of
// the single .bil member. Zero or multiple .bil members make the archive
// malformed.
func extract(archivePath, dir string) (string, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return "", fmt.Errorf("open archive %s: %w", filepath.Base(archivePath), err)
	}
	defer zr.Close()

	var rasters []string
	var rasterPath string
	for _, member := range zr.File {
		if member.FileInfo().IsDir() {
			continue
		}
		name := path.Base(member.Name)
		outPath := filepath.Join(dir, name)
		if err := writeMember(member, outPath); err != nil {
			return "", err
		}
		if strings.EqualFold(path.Ext(name), ".bil") {
			rasters = append(rasters, name)
			rasterPath = outPath
		}
	}

	if len(rasters) != 1 {
		return "", &domain.MalformedArchiveError{
			Archive: filepath.Base(archivePath),
			Rasters: rasters,
		}
	}
	return rasterPath, nil
}

func writeMember(member *zip.File, outPath string) error {
	rc, err := member.Open()
	if err != nil {
		return fmt.Errorf("open archive member %s: %w", member.Name, err)
	}
	defer rc.Close()

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", outPath, err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close() //nolint:errcheck // already failing
		return fmt.Errorf("write %s: %w", outPath, err)
	}
	return out.Close()
}
