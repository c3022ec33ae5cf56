// Package scheduler triggers crawl runs on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitemap-job-crawler/internal/crawler"
)

const defaultStartTimeout = 2 * time.Minute

// Starter begins a crawl run.
type Starter interface {
	Start(ctx context.Context) (crawler.RunSnapshot, error)
}

// Scheduler owns a cron instance with a single crawl entry.
type Scheduler struct {
	cron         *cron.Cron
	entry        cron.EntryID
	starter      Starter
	startTimeout time.Duration
	logger       *zap.Logger
}

// New parses spec and registers the crawl entry. The cron is not started.
func New(spec string, starter Starter, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	s := &Scheduler{
		cron:         c,
		starter:      starter,
		startTimeout: defaultStartTimeout,
		logger:       logger,
	}
	id, err := c.AddFunc(spec, s.Trigger)
	if err != nil {
		return nil, fmt.Errorf("schedule crawl %q: %w", spec, err)
	}
	s.entry = id
	return s, nil
}

// Start runs the cron in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("crawl schedule started", zap.Time("next", s.Next()))
}

// Stop halts the cron and waits for a running trigger to return.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop scheduler: %w", ctx.Err())
	}
}

// Next returns the next activation time, or zero before Start.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entry).Next
}

// Trigger starts one crawl run. Overlap with an in-flight run is logged and skipped.
func (s *Scheduler) Trigger() {
	ctx, cancel := context.WithTimeout(context.Background(), s.startTimeout)
	defer cancel()

	snap, err := s.starter.Start(ctx)
	switch {
	case errors.Is(err, crawler.ErrRunInProgress):
		s.logger.Info("scheduled crawl skipped, run in progress", zap.String("run_id", snap.RunID))
	case err != nil:
		s.logger.Error("scheduled crawl failed", zap.String("run_id", snap.RunID), zap.Error(err))
	default:
		s.logger.Info("scheduled crawl started", zap.String("run_id", snap.RunID))
	}
}
