package reconcile

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitemap-job-crawler/internal/crawler"
	"github.com/JakeFAU/sitemap-job-crawler/internal/storage/memory"
)

func entries(ids ...int64) []crawler.SitemapEntry {
	out := make([]crawler.SitemapEntry, 0, len(ids))
	for _, id := range ids {
		out = append(out, crawler.SitemapEntry{ID: id, Loc: "https://jobs.example.com/job/" + strconv.FormatInt(id, 10)})
	}
	return out
}

func TestDiff(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		cands    []crawler.SitemapEntry
		existing []int64
		want     []int64
	}{
		{"all new", entries(1, 2, 3), nil, []int64{1, 2, 3}},
		{"some existing", entries(10, 11, 12), []int64{10}, []int64{11, 12}},
		{"none new", entries(4, 5), []int64{5, 4, 9}, nil},
		{"repeated candidate", entries(7, 7, 8), nil, []int64{7, 8}},
		{"empty", nil, []int64{1}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Diff(tt.cands, tt.existing)
			ids := make([]int64, 0, len(got))
			for _, e := range got {
				ids = append(ids, e.ID)
			}
			if tt.want == nil {
				require.Empty(t, ids)
				return
			}
			require.Equal(t, tt.want, ids)
		})
	}
}

func TestApplyInsertsOnlyNew(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewJobStore()
	title := "Kept"
	existing := crawler.JobRecord{ID: 10, Loc: "https://jobs.example.com/job/10", Title: &title, IsActive: false}
	require.NoError(t, store.InsertJob(ctx, existing))

	engine := New(store, nil)
	inserted, err := engine.Apply(ctx, entries(10, 11, 12))
	require.NoError(t, err)
	require.Equal(t, 2, inserted)

	jobs, err := store.ListJobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 3)

	// The pre-existing record is untouched.
	require.Equal(t, int64(10), jobs[0].ID)
	require.False(t, jobs[0].IsActive)
	require.Equal(t, "Kept", *jobs[0].Title)

	for _, j := range jobs[1:] {
		require.True(t, j.IsActive)
		require.Nil(t, j.Title)
		require.Nil(t, j.Updated)
	}
}

func TestApplyIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewJobStore()
	engine := New(store, nil)

	first, err := engine.Apply(ctx, entries(1, 2, 3))
	require.NoError(t, err)
	require.Equal(t, 3, first)

	before, err := store.ListJobs(ctx)
	require.NoError(t, err)

	second, err := engine.Apply(ctx, entries(1, 2, 3))
	require.NoError(t, err)
	require.Zero(t, second)

	after, err := store.ListJobs(ctx)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestApplyNeverDeactivatesAbsent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewJobStore()
	engine := New(store, nil)

	_, err := engine.Apply(ctx, entries(1, 2))
	require.NoError(t, err)
	_, err = engine.Apply(ctx, entries(2))
	require.NoError(t, err)

	job, found, err := store.FindJob(ctx, 1)
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, job.IsActive)
}

type racingStore struct {
	*memory.JobStore
	duplicate int64
	failOn    int64
}

func (s *racingStore) InsertJob(ctx context.Context, job crawler.JobRecord) error {
	switch job.ID {
	case s.duplicate:
		return crawler.ErrDuplicateJob
	case s.failOn:
		return errors.New("disk full")
	}
	return s.JobStore.InsertJob(ctx, job)
}

func TestApplyTreatsConcurrentInsertAsSkipped(t *testing.T) {
	t.Parallel()

	store := &racingStore{JobStore: memory.NewJobStore(), duplicate: 2}
	inserted, err := New(store, nil).Apply(context.Background(), entries(1, 2, 3))
	require.NoError(t, err)
	require.Equal(t, 2, inserted)
}

func TestApplyStopsOnStoreError(t *testing.T) {
	t.Parallel()

	store := &racingStore{JobStore: memory.NewJobStore(), failOn: 2}
	inserted, err := New(store, nil).Apply(context.Background(), entries(1, 2, 3))
	require.ErrorContains(t, err, "disk full")
	require.Equal(t, 1, inserted)
}

type brokenStore struct{ *memory.JobStore }

func (brokenStore) ListJobIDs(context.Context) ([]int64, error) {
	return nil, errors.New("connection refused")
}

func TestApplyListFailure(t *testing.T) {
	t.Parallel()

	_, err := New(brokenStore{memory.NewJobStore()}, nil).Apply(context.Background(), entries(1))
	require.ErrorContains(t, err, "load existing job ids")
}
