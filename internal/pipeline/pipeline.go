// Package pipeline drives a complete ingest run: enumerate the daily archives
// for the requested years, process each day into an intermediate file, then
// combine the intermediates into one consolidated store.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/prism-etl/internal/domain"
	"github.com/couchcryptid/prism-etl/internal/enumerate"
	"github.com/couchcryptid/prism-etl/internal/observability"
	"github.com/couchcryptid/prism-etl/internal/raster"
	"github.com/couchcryptid/prism-etl/internal/store"
	"github.com/couchcryptid/prism-etl/internal/unpack"
)

// Notifier publishes ingest progress to an external system. Implementations
// must be safe for sequential use from the run goroutine.
type Notifier interface {
	DayIngested(ctx context.Context, event domain.IngestEvent) error
	RunCompleted(ctx context.Context, summary domain.RunSummary) error
}

// Options configures one pipeline run.
type Options struct {
	Years     []int
	Variable  string
	Output    string // consolidated store directory
	Scale     string
	Version   string
	Stability string
	Bounds    domain.Bounds
	TargetCRS string // empty disables reprojection

	// SkipFailedDays makes a failed day a warning instead of a run failure.
	SkipFailedDays bool

	// CombineWorkers bounds the parallel intermediate decoders in the
	// combine step.
	CombineWorkers int
}

// Pipeline runs the download-unpack-normalize-consolidate flow.
type Pipeline struct {
	enumerator *enumerate.Enumerator
	unpacker   *unpack.Unpacker
	notifier   Notifier
	logger     *slog.Logger
	metrics    *observability.Metrics
	opts       Options

	ready atomic.Bool
}

// New creates a Pipeline. notifier may be nil when event publishing is
// disabled.
func New(enumerator *enumerate.Enumerator, unpacker *unpack.Unpacker, notifier Notifier, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Pipeline {
	if opts.CombineWorkers <= 0 {
		opts.CombineWorkers = 4
	}
	return &Pipeline{
		enumerator: enumerator,
		unpacker:   unpacker,
		notifier:   notifier,
		logger:     logger,
		metrics:    metrics,
		opts:       opts,
	}
}

// CheckReadiness reports whether the pipeline has listed its work and begun
// processing. Used by the readiness endpoint.
func (p *Pipeline) CheckReadiness(context.Context) error {
	if !p.ready.Load() {
		return fmt.Errorf("pipeline has not enumerated its archives yet")
	}
	return nil
}

// Run executes the full pipeline. Days are processed strictly one at a time;
// only the combine step fans out. The consolidated store is written before
// any intermediate is deleted, so a crash mid-run never leaves a partial
// store as the only copy of downloaded data.
func (p *Pipeline) Run(ctx context.Context) error {
	p.metrics.RunActive.Set(1)
	defer p.metrics.RunActive.Set(0)
	start := time.Now()

	urls, err := p.enumerateAll(ctx)
	if err != nil {
		return err
	}
	if len(urls) == 0 {
		return fmt.Errorf("no daily archives found for %s in years %v", p.opts.Variable, p.opts.Years)
	}
	p.ready.Store(true)
	p.logger.Info("enumerated daily archives", "variable", p.opts.Variable, "years", p.opts.Years, "count", len(urls))

	scratch, err := os.MkdirTemp("", "prism-etl-*")
	if err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	// Registered before the consolidated store is written, so the scratch
	// intermediates outlive the write on every path.
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			p.logger.Warn("remove scratch dir", "dir", scratch, "error", err)
		}
	}()

	var intermediates []string
	var skipped []string
	for _, url := range urls {
		dayStart := time.Now()
		intermediate, err := p.processDay(ctx, scratch, url)
		p.metrics.DayProcessingDuration.Observe(time.Since(dayStart).Seconds())
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !p.opts.SkipFailedDays {
				return err
			}
			p.logger.Warn("skipping failed day", "url", url, "error", err)
			p.metrics.DaysSkipped.Inc()
			skipped = append(skipped, url)
			p.notifyDay(ctx, url, domain.StatusSkipped, err)
			continue
		}
		p.metrics.DaysProcessed.Inc()
		intermediates = append(intermediates, intermediate)
		p.notifyDay(ctx, url, domain.StatusIngested, nil)
	}

	if len(intermediates) == 0 {
		return fmt.Errorf("all %d days failed, nothing to consolidate", len(urls))
	}

	combineStart := time.Now()
	dataset, err := p.combine(ctx, intermediates)
	if err != nil {
		return err
	}
	if err := store.WriteZarr(p.opts.Output, dataset); err != nil {
		return fmt.Errorf("write consolidated store: %w", err)
	}
	p.metrics.CombineDuration.Observe(time.Since(combineStart).Seconds())

	p.logger.Info("run complete",
		"output", p.opts.Output,
		"days", len(intermediates),
		"skipped", len(skipped),
		"duration", time.Since(start).Round(time.Second),
	)
	p.notifyRun(ctx, domain.RunSummary{
		Variable:        p.opts.Variable,
		Years:           p.opts.Years,
		DaysProcessed:   len(intermediates),
		SkippedSources:  skipped,
		Output:          p.opts.Output,
		DurationSeconds: time.Since(start).Seconds(),
		CompletedAt:     time.Now().UTC(),
	})
	return nil
}

// enumerateAll lists every year's archives and returns them sorted, so runs
// are deterministic regardless of remote listing order.
func (p *Pipeline) enumerateAll(ctx context.Context) ([]string, error) {
	var urls []string
	for _, year := range p.opts.Years {
		q := enumerate.Query{
			Year:      year,
			Variable:  p.opts.Variable,
			Stability: p.opts.Stability,
			Scale:     p.opts.Scale,
			Version:   p.opts.Version,
		}
		yearURLs, err := p.enumerator.List(ctx, q)
		if err != nil {
			return nil, err
		}
		urls = append(urls, yearURLs...)
	}
	sort.Strings(urls)
	return urls, nil
}

// processDay runs one archive through fetch, unpack, decode, normalize, and
// intermediate persistence, returning the intermediate file path.
func (p *Pipeline) processDay(ctx context.Context, scratch, url string) (string, error) {
	intermediate := filepath.Join(scratch, intermediateName(url))
	err := p.unpacker.WithRaster(ctx, url, func(rasterPath string) error {
		frame, err := raster.Decode(rasterPath)
		if err != nil {
			return fmt.Errorf("decode %s: %w", filepath.Base(rasterPath), err)
		}
		frame.Name = p.opts.Variable
		frame.SourceLocation = url

		normalized, err := domain.Normalize(frame, p.opts.Bounds, p.opts.TargetCRS)
		if err != nil {
			return fmt.Errorf("normalize %s: %w", path.Base(url), err)
		}
		return store.WriteIntermediate(intermediate, normalized)
	})
	if err != nil {
		return "", err
	}
	p.logger.Debug("day persisted", "url", url, "intermediate", filepath.Base(intermediate))
	return intermediate, nil
}

// combine decodes the intermediates with a bounded worker pool and merges
// them into a single time-ordered dataset.
func (p *Pipeline) combine(ctx context.Context, intermediates []string) (*store.Dataset, error) {
	frames := make([]domain.NormalizedFrame, len(intermediates))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.CombineWorkers)
	for i, intermediate := range intermediates {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			frame, err := store.ReadIntermediate(intermediate)
			if err != nil {
				return err
			}
			frames[i] = frame
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return store.Combine(frames)
}

func (p *Pipeline) notifyDay(ctx context.Context, url, status string, dayErr error) {
	if p.notifier == nil {
		return
	}
	event := domain.IngestEvent{
		Variable:   p.opts.Variable,
		Source:     url,
		Status:     status,
		OccurredAt: time.Now().UTC(),
	}
	if t, err := domain.TimeFromFilename(url); err == nil {
		event.Date = t
	}
	if dayErr != nil {
		event.Error = dayErr.Error()
	}
	if err := p.notifier.DayIngested(ctx, event); err != nil {
		p.logger.Warn("publish day event", "url", url, "error", err)
		p.metrics.EventsPublished.WithLabelValues("day", "error").Inc()
		return
	}
	p.metrics.EventsPublished.WithLabelValues("day", "success").Inc()
}

func (p *Pipeline) notifyRun(ctx context.Context, summary domain.RunSummary) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.RunCompleted(ctx, summary); err != nil {
		p.logger.Warn("publish run summary", "error", err)
		p.metrics.EventsPublished.WithLabelValues("run", "error").Inc()
		return
	}
	p.metrics.EventsPublished.WithLabelValues("run", "success").Inc()
}

// intermediateName maps an archive URL to its per-day intermediate filename.
func intermediateName(url string) string {
	return strings.TrimSuffix(path.Base(url), path.Ext(url)) + ".nc"
}
