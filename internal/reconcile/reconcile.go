// Package reconcile merges sitemap candidates into the job store.
//
// Reconciliation only ever adds records: ids already stored are left alone,
// and ids missing from a later sitemap are never deactivated here.
package reconcile

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitemap-job-crawler/internal/crawler"
)

// Diff returns candidates whose id is not in existingIDs, in candidate order.
// Repeated candidate ids are returned once.
func Diff(candidates []crawler.SitemapEntry, existingIDs []int64) []crawler.SitemapEntry {
	seen := make(map[int64]struct{}, len(existingIDs)+len(candidates))
	for _, id := range existingIDs {
		seen[id] = struct{}{}
	}
	missing := make([]crawler.SitemapEntry, 0)
	for _, c := range candidates {
		if _, ok := seen[c.ID]; ok {
			continue
		}
		seen[c.ID] = struct{}{}
		missing = append(missing, c)
	}
	return missing
}

// Engine applies Diff results to a JobStore.
type Engine struct {
	store  crawler.JobStore
	logger *zap.Logger
}

// New builds an Engine.
func New(store crawler.JobStore, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{store: store, logger: logger}
}

// Apply inserts every candidate not yet stored and returns how many were created.
// Candidates inserted concurrently by someone else are skipped.
func (e *Engine) Apply(ctx context.Context, candidates []crawler.SitemapEntry) (int, error) {
	existing, err := e.store.ListJobIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("load existing job ids: %w", err)
	}

	inserted := 0
	for _, entry := range Diff(candidates, existing) {
		if err := ctx.Err(); err != nil {
			return inserted, fmt.Errorf("reconcile interrupted: %w", err)
		}
		err := e.store.InsertJob(ctx, crawler.NewJobRecord(entry))
		switch {
		case errors.Is(err, crawler.ErrDuplicateJob):
			e.logger.Debug("job already present", zap.Int64("job_id", entry.ID))
		case err != nil:
			return inserted, fmt.Errorf("insert job %d: %w", entry.ID, err)
		default:
			inserted++
		}
	}

	e.logger.Info("reconciled sitemap",
		zap.Int("candidates", len(candidates)),
		zap.Int("existing", len(existing)),
		zap.Int("inserted", inserted),
	)
	return inserted, nil
}
