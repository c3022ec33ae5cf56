// Package worker runs the status pass that re-checks every stored job page.
package worker

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitemap-job-crawler/internal/crawler"
	"github.com/JakeFAU/sitemap-job-crawler/internal/metrics"
)

// Mode selects how the status pass walks the job list.
type Mode string

const (
	// ModeSequential checks jobs one at a time and stops at the first failure.
	ModeSequential Mode = "sequential"
	// ModeParallel checks jobs with a bounded pool and keeps going past failures.
	ModeParallel Mode = "parallel"
)

// Config controls StatusUpdater behavior.
type Config struct {
	Mode          Mode
	Workers       int
	TitleSelector string
}

// StatusUpdater walks all stored jobs, fetches each page and records whether
// the posting is still live.
type StatusUpdater struct {
	store   crawler.JobStore
	fetcher crawler.Fetcher
	limiter crawler.Limiter
	clock   crawler.Clock
	cfg     Config
	logger  *zap.Logger
}

// NewStatusUpdater constructs a StatusUpdater. limiter may be nil.
func NewStatusUpdater(
	store crawler.JobStore,
	fetcher crawler.Fetcher,
	limiter crawler.Limiter,
	clock crawler.Clock,
	cfg Config,
	logger *zap.Logger,
) *StatusUpdater {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeSequential
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.TitleSelector == "" {
		cfg.TitleSelector = DefaultTitleSelector
	}
	return &StatusUpdater{
		store:   store,
		fetcher: fetcher,
		limiter: limiter,
		clock:   clock,
		cfg:     cfg,
		logger:  logger,
	}
}

type result int

const (
	resultActive result = iota + 1
	resultInactive
)

// Run performs one status pass. It always returns a finished report; the
// counters reflect every job processed before any abort.
func (u *StatusUpdater) Run(ctx context.Context) crawler.RunReport {
	jobs, err := u.store.ListJobs(ctx)
	if err != nil {
		u.logger.Error("list jobs failed", zap.Error(err))
		return crawler.RunReport{
			Outcome: crawler.RunOutcomeFailed,
			Error:   fmt.Sprintf("list jobs: %v", err),
		}
	}

	u.logger.Info("status pass started",
		zap.Int("jobs", len(jobs)),
		zap.String("mode", string(u.cfg.Mode)),
	)
	var report crawler.RunReport
	if u.cfg.Mode == ModeParallel {
		report = u.runParallel(ctx, jobs)
	} else {
		report = u.runSequential(ctx, jobs)
	}
	u.logger.Info("status pass finished",
		zap.String("outcome", string(report.Outcome)),
		zap.Int("checked", report.Checked),
		zap.Int("activated", report.Activated),
		zap.Int("deactivated", report.Deactivated),
		zap.Int("failed", report.Failed),
		zap.Int("unchecked", report.Unchecked),
	)
	return report
}

func (u *StatusUpdater) runSequential(ctx context.Context, jobs []crawler.JobRecord) crawler.RunReport {
	report := crawler.RunReport{Total: len(jobs)}
	for i, job := range jobs {
		if err := ctx.Err(); err != nil {
			return abort(report, len(jobs)-i, fmt.Errorf("status pass canceled: %w", err))
		}
		res, err := u.check(ctx, job)
		if err != nil {
			report.Failed++
			return abort(report, len(jobs)-i-1, err)
		}
		tally(&report, res)
	}
	report.Outcome = crawler.RunOutcomeSucceeded
	return report
}

func (u *StatusUpdater) runParallel(ctx context.Context, jobs []crawler.JobRecord) crawler.RunReport {
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		firstErr error
		report   = crawler.RunReport{Total: len(jobs)}
	)

	queue := make(chan crawler.JobRecord)
	for i := 0; i < u.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range queue {
				res, err := u.check(ctx, job)
				mu.Lock()
				if err != nil {
					report.Failed++
					if firstErr == nil {
						firstErr = err
					}
				} else {
					tally(&report, res)
				}
				mu.Unlock()
			}
		}()
	}

	dispatched := 0
dispatch:
	for _, job := range jobs {
		select {
		case <-ctx.Done():
			break dispatch
		case queue <- job:
			dispatched++
		}
	}
	close(queue)
	wg.Wait()

	if dispatched < len(jobs) {
		return abort(report, len(jobs)-dispatched, fmt.Errorf("status pass canceled: %w", ctx.Err()))
	}
	if report.Failed > 0 {
		report.Outcome = crawler.RunOutcomePartial
		report.Error = fmt.Sprintf("%d of %d checks failed; first: %v", report.Failed, report.Total, firstErr)
		return report
	}
	report.Outcome = crawler.RunOutcomeSucceeded
	return report
}

// check fetches one job page and writes the resulting status.
func (u *StatusUpdater) check(ctx context.Context, job crawler.JobRecord) (result, error) {
	logger := u.logger.With(zap.Int64("job_id", job.ID), zap.String("url", job.Loc))

	if u.limiter != nil {
		if err := u.limiter.Wait(ctx, job.Loc); err != nil {
			return 0, fmt.Errorf("job %d: %w", job.ID, err)
		}
	}

	resp, err := u.fetcher.Fetch(ctx, crawler.FetchRequest{URL: job.Loc})
	if err != nil {
		metrics.ObserveStatusCheck(job.Loc, metrics.CheckError, resp.Duration)
		logger.Warn("job page fetch failed", zap.Error(err))
		return 0, fmt.Errorf("fetch job %d: %w", job.ID, err)
	}
	logger = logger.With(zap.Int("status", resp.StatusCode), zap.Bool("headless", resp.UsedHeadless))

	title, present, err := Classify(resp.Body, u.cfg.TitleSelector)
	if err != nil {
		metrics.ObserveStatusCheck(job.Loc, metrics.CheckError, resp.Duration)
		return 0, fmt.Errorf("job %d: %w", job.ID, err)
	}

	if !present {
		if err := u.store.MarkInactive(ctx, job.ID); err != nil {
			return 0, fmt.Errorf("store job %d status: %w", job.ID, err)
		}
		metrics.ObserveStatusCheck(job.Loc, metrics.CheckInactive, resp.Duration)
		logger.Debug("job inactive")
		return resultInactive, nil
	}

	if err := u.store.MarkActive(ctx, job.ID, title, u.clock.Now()); err != nil {
		return 0, fmt.Errorf("store job %d status: %w", job.ID, err)
	}
	metrics.ObserveStatusCheck(job.Loc, metrics.CheckActive, resp.Duration)
	logger.Debug("job active", zap.String("title", title))
	return resultActive, nil
}

func tally(report *crawler.RunReport, res result) {
	report.Checked++
	switch res {
	case resultActive:
		report.Activated++
	case resultInactive:
		report.Deactivated++
	}
}

func abort(report crawler.RunReport, unchecked int, err error) crawler.RunReport {
	report.Unchecked = unchecked
	report.Outcome = crawler.RunOutcomeAborted
	report.Error = err.Error()
	return report
}
