package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/sitemap-job-crawler/internal/clock/system"
	"github.com/JakeFAU/sitemap-job-crawler/internal/crawler"
	collyfetcher "github.com/JakeFAU/sitemap-job-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/sitemap-job-crawler/internal/storage/memory"
)

const (
	activePage   = `<html><body><h1 itemprop="title">Backend Engineer</h1></body></html>`
	inactivePage = `<html><body><p>This job is no longer available.</p></body></html>`
)

type fakeFetcher struct {
	mu     sync.Mutex
	bodies map[string]string
	errs   map[string]error
	calls  []string
}

func (f *fakeFetcher) Fetch(_ context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req.URL)
	f.mu.Unlock()
	if err, ok := f.errs[req.URL]; ok {
		return crawler.FetchResponse{}, err
	}
	body, ok := f.bodies[req.URL]
	if !ok {
		return crawler.FetchResponse{}, &crawler.NetworkError{URL: req.URL, StatusCode: http.StatusNotFound}
	}
	return crawler.FetchResponse{
		URL:        req.URL,
		StatusCode: http.StatusOK,
		Body:       []byte(body),
		Duration:   time.Millisecond,
	}, nil
}

func (f *fakeFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type countingLimiter struct {
	mu    sync.Mutex
	waits int
}

func (l *countingLimiter) Wait(context.Context, string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.waits++
	return nil
}

func jobURL(id int64) string {
	return fmt.Sprintf("https://jobs.example.com/job/%d", id)
}

func seedStore(t *testing.T, ids ...int64) *memory.JobStore {
	t.Helper()
	store := memory.NewJobStore()
	for _, id := range ids {
		require.NoError(t, store.InsertJob(context.Background(),
			crawler.NewJobRecord(crawler.SitemapEntry{ID: id, Loc: jobURL(id)})))
	}
	return store
}

func mustFind(t *testing.T, store crawler.JobStore, id int64) crawler.JobRecord {
	t.Helper()
	job, found, err := store.FindJob(context.Background(), id)
	require.NoError(t, err)
	require.True(t, found)
	return job
}

var runStart = time.Date(2024, 9, 1, 8, 0, 0, 0, time.UTC)

func TestSequentialAbortsOnFetchFailure(t *testing.T) {
	t.Parallel()

	store := seedStore(t, 1, 2, 3)
	fetcher := &fakeFetcher{
		bodies: map[string]string{jobURL(1): activePage, jobURL(3): activePage},
		errs:   map[string]error{jobURL(2): &crawler.NetworkError{URL: jobURL(2), Err: errors.New("connection reset")}},
	}
	u := NewStatusUpdater(store, fetcher, nil, system.NewManual(runStart), Config{}, zap.NewNop())

	report := u.Run(context.Background())

	require.Equal(t, crawler.RunOutcomeAborted, report.Outcome)
	require.Equal(t, 3, report.Total)
	require.Equal(t, 1, report.Checked)
	require.Equal(t, 1, report.Failed)
	require.Equal(t, 1, report.Unchecked)
	require.Contains(t, report.Error, "fetch job 2")
	require.Equal(t, []string{jobURL(1), jobURL(2)}, fetcher.Calls())

	a := mustFind(t, store, 1)
	require.NotNil(t, a.Title)
	require.Equal(t, "Backend Engineer", *a.Title)
	for _, id := range []int64{2, 3} {
		job := mustFind(t, store, id)
		require.True(t, job.IsActive)
		require.Nil(t, job.Title)
		require.Nil(t, job.Updated)
	}
}

func TestDeactivationKeepsTitle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := seedStore(t, 7)
	earlier := runStart.Add(-24 * time.Hour)
	require.NoError(t, store.MarkActive(ctx, 7, "Old Title", earlier))

	fetcher := &fakeFetcher{bodies: map[string]string{jobURL(7): inactivePage}}
	report := NewStatusUpdater(store, fetcher, nil, system.NewManual(runStart), Config{}, nil).Run(ctx)

	require.Equal(t, crawler.RunOutcomeSucceeded, report.Outcome)
	require.Equal(t, 1, report.Deactivated)
	job := mustFind(t, store, 7)
	require.False(t, job.IsActive)
	require.Equal(t, "Old Title", *job.Title)
	require.Equal(t, earlier, *job.Updated)
}

func TestActivationRefreshesTitleAndTimestamp(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := seedStore(t, 8)
	require.NoError(t, store.MarkInactive(ctx, 8))

	clk := system.NewManual(runStart)
	clk.Advance(time.Second)
	fetcher := &fakeFetcher{bodies: map[string]string{jobURL(8): activePage}}
	report := NewStatusUpdater(store, fetcher, nil, clk, Config{}, nil).Run(ctx)

	require.Equal(t, crawler.RunOutcomeSucceeded, report.Outcome)
	require.Equal(t, 1, report.Activated)
	job := mustFind(t, store, 8)
	require.True(t, job.IsActive)
	require.Equal(t, "Backend Engineer", *job.Title)
	require.NotNil(t, job.Updated)
	require.False(t, job.Updated.Before(runStart))
}

func TestParallelContinuesPastFailures(t *testing.T) {
	t.Parallel()

	store := seedStore(t, 1, 2, 3, 4)
	fetcher := &fakeFetcher{
		bodies: map[string]string{jobURL(1): activePage, jobURL(3): inactivePage, jobURL(4): activePage},
		errs:   map[string]error{jobURL(2): &crawler.NetworkError{URL: jobURL(2), Timeout: true}},
	}
	limiter := &countingLimiter{}
	u := NewStatusUpdater(store, fetcher, limiter, system.NewManual(runStart),
		Config{Mode: ModeParallel, Workers: 3}, nil)

	report := u.Run(context.Background())

	require.Equal(t, crawler.RunOutcomePartial, report.Outcome)
	require.Equal(t, 4, report.Total)
	require.Equal(t, 3, report.Checked)
	require.Equal(t, 2, report.Activated)
	require.Equal(t, 1, report.Deactivated)
	require.Equal(t, 1, report.Failed)
	require.Zero(t, report.Unchecked)
	require.Contains(t, report.Error, "1 of 4")
	require.Len(t, fetcher.Calls(), 4)
	require.Equal(t, 4, limiter.waits)

	require.False(t, mustFind(t, store, 3).IsActive)
	require.Nil(t, mustFind(t, store, 2).Updated)
}

func TestParallelSingleWorkerKeepsGoing(t *testing.T) {
	t.Parallel()

	store := seedStore(t, 1, 2, 3)
	fetcher := &fakeFetcher{
		bodies: map[string]string{jobURL(1): activePage, jobURL(3): activePage},
		errs:   map[string]error{jobURL(2): &crawler.NetworkError{URL: jobURL(2), Err: errors.New("connection reset")}},
	}
	report := NewStatusUpdater(store, fetcher, nil, system.NewManual(runStart),
		Config{Mode: ModeParallel, Workers: 1}, nil).Run(context.Background())

	require.Equal(t, crawler.RunOutcomePartial, report.Outcome)
	require.Equal(t, 2, report.Checked)
	require.Equal(t, 1, report.Failed)
	require.Zero(t, report.Unchecked)
	require.Equal(t, []string{jobURL(1), jobURL(2), jobURL(3)}, fetcher.Calls())
	require.NotNil(t, mustFind(t, store, 3).Title)
}

func TestParallelAllSucceed(t *testing.T) {
	t.Parallel()

	store := seedStore(t, 1, 2)
	fetcher := &fakeFetcher{bodies: map[string]string{jobURL(1): activePage, jobURL(2): activePage}}
	report := NewStatusUpdater(store, fetcher, nil, system.NewManual(runStart),
		Config{Mode: ModeParallel, Workers: 2}, nil).Run(context.Background())

	require.Equal(t, crawler.RunOutcomeSucceeded, report.Outcome)
	require.Equal(t, 2, report.Activated)
}

type failingWrites struct {
	*memory.JobStore
}

func (failingWrites) MarkActive(context.Context, int64, string, time.Time) error {
	return errors.New("read-only replica")
}

func TestStoreWriteFailureAborts(t *testing.T) {
	t.Parallel()

	store := failingWrites{seedStore(t, 1, 2)}
	fetcher := &fakeFetcher{bodies: map[string]string{jobURL(1): activePage, jobURL(2): activePage}}
	report := NewStatusUpdater(store, fetcher, nil, system.NewManual(runStart), Config{}, nil).Run(context.Background())

	require.Equal(t, crawler.RunOutcomeAborted, report.Outcome)
	require.Equal(t, 1, report.Failed)
	require.Equal(t, 1, report.Unchecked)
	require.Contains(t, report.Error, "read-only replica")
}

type listFailure struct {
	*memory.JobStore
}

func (listFailure) ListJobs(context.Context) ([]crawler.JobRecord, error) {
	return nil, errors.New("db down")
}

func TestListFailureReportsFailed(t *testing.T) {
	t.Parallel()

	report := NewStatusUpdater(listFailure{memory.NewJobStore()}, &fakeFetcher{}, nil, system.New(), Config{}, nil).
		Run(context.Background())
	require.Equal(t, crawler.RunOutcomeFailed, report.Outcome)
	require.Contains(t, report.Error, "db down")
}

func TestCanceledBeforeStart(t *testing.T) {
	t.Parallel()

	store := seedStore(t, 1, 2, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetcher := &fakeFetcher{}
	report := NewStatusUpdater(store, fetcher, nil, system.New(), Config{}, nil).Run(ctx)
	require.Equal(t, crawler.RunOutcomeAborted, report.Outcome)
	require.Equal(t, 3, report.Unchecked)
	require.Empty(t, fetcher.Calls())
}

func TestEmptyStoreSucceeds(t *testing.T) {
	t.Parallel()

	report := NewStatusUpdater(memory.NewJobStore(), &fakeFetcher{}, nil, system.New(), Config{}, nil).
		Run(context.Background())
	require.Equal(t, crawler.RunOutcomeSucceeded, report.Outcome)
	require.Zero(t, report.Total)
}

func TestStatusPassOverHTTP(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/job/10", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, activePage)
	})
	mux.HandleFunc("/job/11", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, inactivePage)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx := context.Background()
	store := memory.NewJobStore()
	for _, id := range []int64{10, 11} {
		loc := fmt.Sprintf("%s/job/%d", srv.URL, id)
		require.NoError(t, store.InsertJob(ctx, crawler.NewJobRecord(crawler.SitemapEntry{ID: id, Loc: loc})))
	}

	fetcher := collyfetcher.New(collyfetcher.Config{UserAgent: "status-test", Timeout: 2 * time.Second})
	report := NewStatusUpdater(store, fetcher, nil, system.New(), Config{}, nil).Run(ctx)

	require.Equal(t, crawler.RunOutcomeSucceeded, report.Outcome)
	require.True(t, mustFind(t, store, 10).IsActive)
	require.False(t, mustFind(t, store, 11).IsActive)
}

type renderedFetcher struct{}

func (renderedFetcher) Fetch(_ context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	return crawler.FetchResponse{
		URL:          req.URL,
		StatusCode:   http.StatusOK,
		Body:         []byte(activePage),
		UsedHeadless: true,
	}, nil
}

func TestCheckLogsFetchMode(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.DebugLevel)
	store := seedStore(t, 5)
	report := NewStatusUpdater(store, renderedFetcher{}, nil, system.NewManual(runStart),
		Config{}, zap.New(core)).Run(context.Background())
	require.Equal(t, crawler.RunOutcomeSucceeded, report.Outcome)

	entries := logs.FilterMessage("job active").AllUntimed()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, true, fields["headless"])
	require.Equal(t, int64(http.StatusOK), fields["status"])
	require.Equal(t, int64(5), fields["job_id"])
}
