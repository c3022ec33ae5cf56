// Package postgres provides the Postgres-backed JobStore.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/sitemap-job-crawler/internal/crawler"
)

const defaultTable = "urls"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for job rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// JobStore reads and writes job rows in Postgres.
type JobStore struct {
	pool  pool
	table string
}

// NewJobStore connects to Postgres using cfg.
func NewJobStore(ctx context.Context, cfg Config) (*JobStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &JobStore{pool: p, table: table}, nil
}

// NewJobStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewJobStoreWithPool(p pool, table string) (*JobStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &JobStore{pool: p, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// EnsureSchema creates the job table when it does not exist.
func (s *JobStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id BIGINT PRIMARY KEY,
	loc TEXT NOT NULL,
	title TEXT NULL,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	updated TIMESTAMPTZ NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
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
	return s.queryJobs(ctx, s.selectColumns()+" WHERE is_active = $1 ORDER BY id", active)
}

// RandomActiveJobs samples up to limit active rows.
func (s *JobStore) RandomActiveJobs(ctx context.Context, limit int) ([]crawler.JobRecord, error) {
	if limit <= 0 {
		return []crawler.JobRecord{}, nil
	}
	return s.queryJobs(ctx, s.selectColumns()+" WHERE is_active = TRUE ORDER BY random() LIMIT $1", limit)
}

// ListJobIDs returns all ids in ascending order.
func (s *JobStore) ListJobIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf("SELECT id FROM %s ORDER BY id", s.table))
	if err != nil {
		return nil, fmt.Errorf("list job ids: %w", err)
	}
	defer rows.Close()

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

// FindJob loads a single row, reporting found=false when absent.
func (s *JobStore) FindJob(ctx context.Context, id int64) (crawler.JobRecord, bool, error) {
	row := s.pool.QueryRow(ctx, s.selectColumns()+" WHERE id = $1", id)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
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
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO NOTHING`, s.table)
	tag, err := s.pool.Exec(ctx, query, job.ID, job.Loc, job.Title, job.IsActive, job.Updated)
	if err != nil {
		return fmt.Errorf("insert job %d: %w", job.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("insert job %d: %w", job.ID, crawler.ErrDuplicateJob)
	}
	return nil
}

// MarkInactive clears is_active and keeps title and updated.
func (s *JobStore) MarkInactive(ctx context.Context, id int64) error {
	query := fmt.Sprintf("UPDATE %s SET is_active = FALSE WHERE id = $1", s.table)
	return s.update(ctx, id, query, id)
}

// MarkActive sets is_active, title and updated.
func (s *JobStore) MarkActive(ctx context.Context, id int64, title string, updated time.Time) error {
	query := fmt.Sprintf("UPDATE %s SET is_active = TRUE, title = $2, updated = $3 WHERE id = $1", s.table)
	return s.update(ctx, id, query, id, title, updated)
}

func (s *JobStore) update(ctx context.Context, id int64, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update job %d: not found", id)
	}
	return nil
}

// Close releases the underlying pool.
func (s *JobStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func (s *JobStore) queryJobs(ctx context.Context, query string, args ...any) ([]crawler.JobRecord, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

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

func scanJob(row pgx.Row) (crawler.JobRecord, error) {
	var job crawler.JobRecord
	if err := row.Scan(&job.ID, &job.Loc, &job.Title, &job.IsActive, &job.Updated); err != nil {
		return crawler.JobRecord{}, err
	}
	return job, nil
}
