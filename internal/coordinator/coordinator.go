// Package coordinator orchestrates a crawl run: sitemap fetch, reconciliation
// and the background status pass.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitemap-job-crawler/internal/crawler"
	"github.com/JakeFAU/sitemap-job-crawler/internal/metrics"
)

const publishTimeout = 10 * time.Second

// ErrClosed is returned by Start after Close.
var ErrClosed = errors.New("coordinator closed")

// SitemapSource downloads and parses sitemaps.
type SitemapSource interface {
	Download(ctx context.Context, url string) ([]byte, error)
	Parse(body []byte) ([]crawler.SitemapEntry, error)
}

// Reconciler inserts unseen sitemap entries.
type Reconciler interface {
	Apply(ctx context.Context, candidates []crawler.SitemapEntry) (int, error)
}

// StatusRunner performs one status pass.
type StatusRunner interface {
	Run(ctx context.Context) crawler.RunReport
}

// Archiver stores raw sitemap bodies.
type Archiver interface {
	Store(ctx context.Context, runID string, body []byte) (string, error)
}

// Config controls the coordinator.
type Config struct {
	SitemapURL string
	// Topic receives a crawler.RunEvent when a run finishes.
	Topic string
}

// Deps are the collaborators of a Coordinator. Archiver and Publisher are optional.
type Deps struct {
	Sitemap    SitemapSource
	Reconciler Reconciler
	Status     StatusRunner
	Archiver   Archiver
	Publisher  crawler.Publisher
	IDs        crawler.IDGenerator
	Clock      crawler.Clock
}

// Coordinator owns the state of the most recent crawl run. At most one run is
// in flight per instance.
type Coordinator struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	current crawler.RunSnapshot
	done    chan struct{}
}

// New constructs a Coordinator. Background passes run until Close.
func New(deps Deps, cfg Config, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		deps:   deps,
		cfg:    cfg,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start fetches the sitemap and reconciles it on the caller's context, then
// launches the status pass in the background and returns immediately.
//
// If a run is already in flight, Start returns its snapshot together with
// crawler.ErrRunInProgress. A sitemap or reconciliation failure finishes the
// run as failed and is returned.
func (c *Coordinator) Start(ctx context.Context) (crawler.RunSnapshot, error) {
	c.mu.Lock()
	if c.closed {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap, ErrClosed
	}
	if c.current.Running {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap, crawler.ErrRunInProgress
	}
	runID, err := c.deps.IDs.NewID()
	if err != nil {
		c.mu.Unlock()
		return crawler.RunSnapshot{}, fmt.Errorf("allocate run id: %w", err)
	}
	startedAt := c.deps.Clock.Now()
	c.current = crawler.RunSnapshot{
		RunID:     runID,
		Running:   true,
		StartedAt: &startedAt,
		Report:    crawler.RunReport{Outcome: crawler.RunOutcomeRunning},
	}
	c.done = make(chan struct{})
	c.wg.Add(1)
	c.mu.Unlock()

	logger := c.logger.With(zap.String("run_id", runID), zap.String("url", c.cfg.SitemapURL))
	logger.Info("crawl run started")

	entries, err := c.loadSitemap(ctx, runID, logger)
	if err != nil {
		return c.fail(runID, startedAt, crawler.RunReport{}, err, logger)
	}
	report := crawler.RunReport{SitemapEntries: len(entries), Outcome: crawler.RunOutcomeRunning}

	inserted, err := c.deps.Reconciler.Apply(ctx, entries)
	report.Inserted = inserted
	metrics.ObserveReconcile(len(entries), inserted)
	if err != nil {
		return c.fail(runID, startedAt, report, fmt.Errorf("reconcile: %w", err), logger)
	}

	c.mu.Lock()
	c.current.Report = report
	c.mu.Unlock()

	go c.runStatus(runID, startedAt, report, logger)

	return c.Status(), nil
}

func (c *Coordinator) loadSitemap(ctx context.Context, runID string, logger *zap.Logger) ([]crawler.SitemapEntry, error) {
	body, err := c.deps.Sitemap.Download(ctx, c.cfg.SitemapURL)
	if err != nil {
		return nil, fmt.Errorf("fetch sitemap: %w", err)
	}
	if c.deps.Archiver != nil {
		if uri, err := c.deps.Archiver.Store(ctx, runID, body); err != nil {
			logger.Warn("sitemap archive failed", zap.Error(err))
		} else {
			logger.Debug("sitemap archived", zap.String("uri", uri))
		}
	}
	entries, err := c.deps.Sitemap.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("parse sitemap: %w", err)
	}
	return entries, nil
}

func (c *Coordinator) runStatus(runID string, startedAt time.Time, base crawler.RunReport, logger *zap.Logger) {
	defer c.wg.Done()
	metrics.SetStatusPassInFlight(true)
	defer metrics.SetStatusPassInFlight(false)

	pass := c.deps.Status.Run(c.ctx)
	pass.SitemapEntries = base.SitemapEntries
	pass.Inserted = base.Inserted
	c.finish(runID, startedAt, pass, logger)
}

func (c *Coordinator) fail(
	runID string,
	startedAt time.Time,
	report crawler.RunReport,
	err error,
	logger *zap.Logger,
) (crawler.RunSnapshot, error) {
	defer c.wg.Done()
	report.Outcome = crawler.RunOutcomeFailed
	report.Error = err.Error()
	logger.Error("crawl run failed", zap.Error(err))
	snap := c.finish(runID, startedAt, report, logger)
	return snap, err
}

func (c *Coordinator) finish(runID string, startedAt time.Time, report crawler.RunReport, logger *zap.Logger) crawler.RunSnapshot {
	finishedAt := c.deps.Clock.Now()

	c.mu.Lock()
	c.current.Running = false
	c.current.Done = true
	c.current.FinishedAt = &finishedAt
	c.current.Report = report
	snap := c.snapshotLocked()
	close(c.done)
	c.mu.Unlock()

	metrics.ObserveRun(string(report.Outcome), finishedAt.Sub(startedAt))
	logger.Info("crawl run finished",
		zap.String("outcome", string(report.Outcome)),
		zap.Int("inserted", report.Inserted),
		zap.Int("checked", report.Checked),
	)
	c.publish(crawler.RunEvent{
		RunID:      runID,
		SitemapURL: c.cfg.SitemapURL,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		Report:     report,
	}, logger)
	return snap
}

func (c *Coordinator) publish(event crawler.RunEvent, logger *zap.Logger) {
	if c.deps.Publisher == nil || c.cfg.Topic == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	id, err := c.deps.Publisher.Publish(ctx, c.cfg.Topic, event)
	if err != nil {
		logger.Warn("publish run event failed", zap.Error(err))
		return
	}
	logger.Debug("run event published", zap.String("message_id", id))
}

// Status returns a copy of the current run state. Done is false before the
// first run and while a run is in flight.
func (c *Coordinator) Status() crawler.RunSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Done reports whether the most recent run has finished.
func (c *Coordinator) Done() bool {
	return c.Status().Done
}

// Wait blocks until the current run finishes or ctx ends. With no run
// started it returns immediately.
func (c *Coordinator) Wait(ctx context.Context) (crawler.RunSnapshot, error) {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return c.Status(), nil
	}
	select {
	case <-done:
		return c.Status(), nil
	case <-ctx.Done():
		return c.Status(), fmt.Errorf("wait for crawl run: %w", ctx.Err())
	}
}

// Close cancels any in-flight status pass and waits for it to finish.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancel()
	c.wg.Wait()
}

func (c *Coordinator) snapshotLocked() crawler.RunSnapshot {
	snap := c.current
	if snap.StartedAt != nil {
		ts := *snap.StartedAt
		snap.StartedAt = &ts
	}
	if snap.FinishedAt != nil {
		ts := *snap.FinishedAt
		snap.FinishedAt = &ts
	}
	return snap
}
