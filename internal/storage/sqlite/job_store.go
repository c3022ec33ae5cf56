// Package sqlite provides a single-file JobStore backed by SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	// Registers the "sqlite3" database/sql driver.
	_ "github.com/mattn/go-sqlite3"

	"github.com/JakeFAU/sitemap-job-crawler/internal/crawler"
)

const defaultTable = "urls"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config selects the database file and table.
type Config struct {
	Path  string
	Table string
}

// JobStore persists job rows in SQLite.
type JobStore struct {
	db    *sql.DB
	table string
}

// Open opens (creating if needed) the database at cfg.Path and ensures the schema.
func Open(ctx context.Context, cfg Config) (*JobStore, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("storage.path is required")
	}
	table := cfg.Table
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}

	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", cfg.Path, err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", cfg.Path, err)
	}

	s := &JobStore{db: db, table: table}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *JobStore) ensureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id INTEGER PRIMARY KEY,
	loc TEXT NOT NULL,
	title TEXT NULL,
	is_active INTEGER NOT NULL DEFAULT 1,
	updated TIMESTAMP NULL
)`, s.table)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

func (s *JobStore) selectColumns() string {
	return fmt.Sprintf("SELECT id, loc, title, is_active, updated FROM %s", s.table)
}

// ListJobs returns every row ordered by id.
func (s *JobStore) ListJobs(ctx context.Context) ([]crawler.JobRecord, error) {
	return s.queryJobs(ctx, s.selectColumns()+" ORDER BY id")
}

// ListJobsByActive returns rows with the given is_active flag.
func (s *JobStore) ListJobsByActive(ctx context.Context, active bool) ([]crawler.JobRecord, error) {
	return s.queryJobs(ctx, s.selectColumns()+" WHERE is_active = ? ORDER BY id", active)
}

// RandomActiveJobs samples up to limit active rows.
func (s *JobStore) RandomActiveJobs(ctx context.Context, limit int) ([]crawler.JobRecord, error) {
	if limit <= 0 {
		return []crawler.JobRecord{}, nil
	}
	return s.queryJobs(ctx, s.selectColumns()+" WHERE is_active = 1 ORDER BY random() LIMIT ?", limit)
}

// ListJobIDs returns all ids in ascending order.
func (s *JobStore) ListJobIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT id FROM %s ORDER BY id", s.table))
	if err != nil {
		return nil, fmt.Errorf("list job ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan job id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job ids: %w", err)
	}
	return ids, nil
}

// FindJob loads one row, reporting found=false when absent.
func (s *JobStore) FindJob(ctx context.Context, id int64) (crawler.JobRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, s.selectColumns()+" WHERE id = ?", id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return crawler.JobRecord{}, false, nil
	}
	if err != nil {
		return crawler.JobRecord{}, false, fmt.Errorf("find job %d: %w", id, err)
	}
	return job, true, nil
}

// InsertJob adds a row; an existing id yields crawler.ErrDuplicateJob.
func (s *JobStore) InsertJob(ctx context.Context, job crawler.JobRecord) error {
	query := fmt.Sprintf(`INSERT INTO %s (id, loc, title, is_active, updated)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (id) DO NOTHING`, s.table)
	res, err := s.db.ExecContext(ctx, query, job.ID, job.Loc, nullString(job.Title), job.IsActive, nullTime(job.Updated))
	if err != nil {
		return fmt.Errorf("insert job %d: %w", job.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert job %d: %w", job.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("insert job %d: %w", job.ID, crawler.ErrDuplicateJob)
	}
	return nil
}

// MarkInactive clears is_active and keeps title and updated.
func (s *JobStore) MarkInactive(ctx context.Context, id int64) error {
	return s.update(ctx, id, fmt.Sprintf("UPDATE %s SET is_active = 0 WHERE id = ?", s.table), id)
}

// MarkActive sets is_active, title and updated.
func (s *JobStore) MarkActive(ctx context.Context, id int64, title string, updated time.Time) error {
	query := fmt.Sprintf("UPDATE %s SET is_active = 1, title = ?, updated = ? WHERE id = ?", s.table)
	return s.update(ctx, id, query, title, updated.UTC(), id)
}

func (s *JobStore) update(ctx context.Context, id int64, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update job %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("update job %d: not found", id)
	}
	return nil
}

// Close closes the database handle.
func (s *JobStore) Close() error {
	return s.db.Close()
}

func (s *JobStore) queryJobs(ctx context.Context, query string, args ...any) ([]crawler.JobRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	jobs := []crawler.JobRecord{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (crawler.JobRecord, error) {
	var (
		job     crawler.JobRecord
		title   sql.NullString
		updated sql.NullTime
	)
	if err := row.Scan(&job.ID, &job.Loc, &title, &job.IsActive, &updated); err != nil {
		return crawler.JobRecord{}, err
	}
	if title.Valid {
		job.Title = &title.String
	}
	if updated.Valid {
		ts := updated.Time.UTC()
		job.Updated = &ts
	}
	return job, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
