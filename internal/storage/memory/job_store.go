package memory

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/sitemap-job-crawler/internal/crawler"
)

// JobStore keeps job records in a map guarded by a RWMutex.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[int64]crawler.JobRecord
}

// NewJobStore constructs an empty JobStore.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[int64]crawler.JobRecord)}
}

// ListJobs returns every record ordered by id.
func (s *JobStore) ListJobs(_ context.Context) ([]crawler.JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sorted(func(crawler.JobRecord) bool { return true }), nil
}

// ListJobIDs returns every stored id in ascending order.
func (s *JobStore) ListJobIDs(_ context.Context) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int64, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// ListJobsByActive returns records whose is_active flag equals active.
func (s *JobStore) ListJobsByActive(_ context.Context, active bool) ([]crawler.JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sorted(func(j crawler.JobRecord) bool { return j.IsActive == active }), nil
}

// RandomActiveJobs returns up to limit active records in random order.
func (s *JobStore) RandomActiveJobs(_ context.Context, limit int) ([]crawler.JobRecord, error) {
	if limit <= 0 {
		return []crawler.JobRecord{}, nil
	}
	s.mu.RLock()
	active := s.sorted(func(j crawler.JobRecord) bool { return j.IsActive })
	s.mu.RUnlock()

	rand.Shuffle(len(active), func(i, j int) { active[i], active[j] = active[j], active[i] })
	if len(active) > limit {
		active = active[:limit]
	}
	return active, nil
}

// FindJob returns the record for id, or found=false.
func (s *JobStore) FindJob(_ context.Context, id int64) (crawler.JobRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return crawler.JobRecord{}, false, nil
	}
	return clone(job), true, nil
}

// InsertJob adds a new record. Existing ids yield crawler.ErrDuplicateJob.
func (s *JobStore) InsertJob(_ context.Context, job crawler.JobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("insert job %d: %w", job.ID, crawler.ErrDuplicateJob)
	}
	s.jobs[job.ID] = clone(job)
	return nil
}

// MarkInactive clears is_active and leaves title and updated untouched.
func (s *JobStore) MarkInactive(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("mark job %d inactive: not found", id)
	}
	job.IsActive = false
	s.jobs[id] = job
	return nil
}

// MarkActive sets is_active, title and the refresh timestamp.
func (s *JobStore) MarkActive(_ context.Context, id int64, title string, updated time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("mark job %d active: not found", id)
	}
	ts := updated
	job.IsActive = true
	job.Title = &title
	job.Updated = &ts
	s.jobs[id] = job
	return nil
}

// Close is a no-op.
func (s *JobStore) Close() error { return nil }

func (s *JobStore) sorted(keep func(crawler.JobRecord) bool) []crawler.JobRecord {
	out := make([]crawler.JobRecord, 0, len(s.jobs))
	for _, job := range s.jobs {
		if keep(job) {
			out = append(out, clone(job))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func clone(job crawler.JobRecord) crawler.JobRecord {
	if job.Title != nil {
		title := *job.Title
		job.Title = &title
	}
	if job.Updated != nil {
		ts := *job.Updated
		job.Updated = &ts
	}
	return job
}
