package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitemap-job-crawler/internal/crawler"
)

var columns = []string{"id", "loc", "title", "is_active", "updated"}

func newMockStore(t *testing.T) (*JobStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewJobStoreWithPool(mock, "")
	require.NoError(t, err)
	return store, mock
}

func TestNewJobStoreWithPoolRejectsBadTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewJobStoreWithPool(mock, "urls; DROP TABLE urls")
	require.ErrorContains(t, err, "invalid table name")

	_, err = NewJobStoreWithPool(nil, "urls")
	require.Error(t, err)
}

func TestNewJobStoreRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := NewJobStore(context.Background(), Config{})
	require.ErrorContains(t, err, "storage.dsn")
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS urls").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListJobs(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	title := "Engineer"
	updated := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
	var nilTitle *string
	var nilTime *time.Time
	mock.ExpectQuery("SELECT id, loc, title, is_active, updated FROM urls ORDER BY id").
		WillReturnRows(mock.NewRows(columns).
			AddRow(int64(10), "https://jobs.example.com/job/10", nilTitle, true, nilTime).
			AddRow(int64(11), "https://jobs.example.com/job/11", &title, false, &updated))

	jobs, err := store.ListJobs(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	require.Equal(t, int64(10), jobs[0].ID)
	require.Nil(t, jobs[0].Title)
	require.Nil(t, jobs[0].Updated)
	require.True(t, jobs[0].IsActive)
	require.Equal(t, "Engineer", *jobs[1].Title)
	require.Equal(t, updated, *jobs[1].Updated)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListJobsByActive(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	var nilTitle *string
	var nilTime *time.Time
	mock.ExpectQuery("WHERE is_active = \\$1 ORDER BY id").
		WithArgs(false).
		WillReturnRows(mock.NewRows(columns).
			AddRow(int64(3), "https://jobs.example.com/job/3", nilTitle, false, nilTime))

	jobs, err := store.ListJobsByActive(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.False(t, jobs[0].IsActive)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRandomActiveJobs(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	var nilTitle *string
	var nilTime *time.Time
	mock.ExpectQuery("ORDER BY random\\(\\) LIMIT \\$1").
		WithArgs(3).
		WillReturnRows(mock.NewRows(columns).
			AddRow(int64(7), "https://jobs.example.com/job/7", nilTitle, true, nilTime))

	jobs, err := store.RandomActiveJobs(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	empty, err := store.RandomActiveJobs(context.Background(), 0)
	require.NoError(t, err)
	require.Empty(t, empty)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListJobIDs(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT id FROM urls ORDER BY id").
		WillReturnRows(mock.NewRows([]string{"id"}).AddRow(int64(10)).AddRow(int64(12)))

	ids, err := store.ListJobIDs(context.Background())
	require.NoError(t, err)
	require.Equal(t, []int64{10, 12}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListJobIDsQueryError(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT id FROM urls").WillReturnError(errors.New("connection reset"))

	_, err := store.ListJobIDs(context.Background())
	require.ErrorContains(t, err, "list job ids")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindJob(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	var nilTitle *string
	var nilTime *time.Time
	mock.ExpectQuery("FROM urls WHERE id = \\$1").
		WithArgs(int64(10)).
		WillReturnRows(mock.NewRows(columns).
			AddRow(int64(10), "https://jobs.example.com/job/10", nilTitle, true, nilTime))
	mock.ExpectQuery("FROM urls WHERE id = \\$1").
		WithArgs(int64(99)).
		WillReturnRows(mock.NewRows(columns))

	job, found, err := store.FindJob(context.Background(), 10)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "https://jobs.example.com/job/10", job.Loc)

	_, found, err = store.FindJob(context.Background(), 99)
	require.NoError(t, err)
	require.False(t, found)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertJob(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	job := crawler.NewJobRecord(crawler.SitemapEntry{ID: 10, Loc: "https://jobs.example.com/job/10"})
	var nilTitle *string
	var nilTime *time.Time

	mock.ExpectExec("INSERT INTO urls").
		WithArgs(job.ID, job.Loc, nilTitle, true, nilTime).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO urls").
		WithArgs(job.ID, job.Loc, nilTitle, true, nilTime).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	require.NoError(t, store.InsertJob(context.Background(), job))
	err := store.InsertJob(context.Background(), job)
	require.ErrorIs(t, err, crawler.ErrDuplicateJob)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkActiveAndInactive(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec("UPDATE urls SET is_active = TRUE").
		WithArgs(int64(10), "Engineer", at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE urls SET is_active = FALSE").
		WithArgs(int64(11)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE urls SET is_active = FALSE").
		WithArgs(int64(12)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, store.MarkActive(context.Background(), 10, "Engineer", at))
	require.NoError(t, store.MarkInactive(context.Background(), 11))
	require.ErrorContains(t, store.MarkInactive(context.Background(), 12), "not found")
	require.NoError(t, mock.ExpectationsWereMet())
}
