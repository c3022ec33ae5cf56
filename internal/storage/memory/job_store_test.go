package memory

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitemap-job-crawler/internal/crawler"
)

func seed(t *testing.T, store *JobStore, ids ...int64) {
	t.Helper()
	for _, id := range ids {
		entry := crawler.SitemapEntry{ID: id, Loc: "https://jobs.example.com/job/" + strconv.FormatInt(id, 10)}
		require.NoError(t, store.InsertJob(context.Background(), crawler.NewJobRecord(entry)))
	}
}

func TestJobStoreLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewJobStore()
	seed(t, store, 12, 10, 11)

	ids, err := store.ListJobIDs(ctx)
	require.NoError(t, err)
	require.Equal(t, []int64{10, 11, 12}, ids)

	err = store.InsertJob(ctx, crawler.JobRecord{ID: 10, Loc: "other"})
	require.ErrorIs(t, err, crawler.ErrDuplicateJob)

	updated := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.MarkActive(ctx, 11, "Engineer", updated))
	require.NoError(t, store.MarkInactive(ctx, 11))

	job, found, err := store.FindJob(ctx, 11)
	require.NoError(t, err)
	require.True(t, found)
	require.False(t, job.IsActive)
	require.NotNil(t, job.Title)
	require.Equal(t, "Engineer", *job.Title)
	require.Equal(t, updated, *job.Updated)

	inactive, err := store.ListJobsByActive(ctx, false)
	require.NoError(t, err)
	require.Len(t, inactive, 1)
	require.Equal(t, int64(11), inactive[0].ID)

	active, err := store.ListJobsByActive(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 2)
	require.Equal(t, int64(10), active[0].ID)
	require.Equal(t, int64(12), active[1].ID)
}

func TestJobStoreFindMissing(t *testing.T) {
	t.Parallel()

	_, found, err := NewJobStore().FindJob(context.Background(), 99)
	require.NoError(t, err)
	require.False(t, found)
}

func TestJobStoreReturnsCopies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewJobStore()
	seed(t, store, 1)
	require.NoError(t, store.MarkActive(ctx, 1, "Original", time.Now()))

	jobs, err := store.ListJobs(ctx)
	require.NoError(t, err)
	*jobs[0].Title = "mutated"

	job, _, err := store.FindJob(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "Original", *job.Title)
}

func TestJobStoreRandomActiveJobs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewJobStore()
	seed(t, store, 1, 2, 3, 4, 5)
	require.NoError(t, store.MarkInactive(ctx, 3))

	got, err := store.RandomActiveJobs(ctx, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for _, job := range got {
		require.True(t, job.IsActive)
		require.NotEqual(t, int64(3), job.ID)
	}

	all, err := store.RandomActiveJobs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, all, 4)

	none, err := store.RandomActiveJobs(ctx, 0)
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestJobStoreMarkMissing(t *testing.T) {
	t.Parallel()

	store := NewJobStore()
	require.Error(t, store.MarkInactive(context.Background(), 7))
	require.Error(t, store.MarkActive(context.Background(), 7, "x", time.Now()))
}
