package crawler

import (
	"net/http"
	"time"
)

// SitemapEntry is one candidate job descriptor parsed from a sitemap.
type SitemapEntry struct {
	ID    int64             `json:"id"`
	Loc   string            `json:"loc"`
	Extra map[string]string `json:"extra,omitempty"`
}

// JobRecord is the persisted state of one tracked job posting.
type JobRecord struct {
	ID       int64      `json:"id"`
	Loc      string     `json:"loc"`
	Title    *string    `json:"title"`
	IsActive bool       `json:"is_active"`
	Updated  *time.Time `json:"updated"`
}

// NewJobRecord returns the record created on first sighting of a sitemap entry.
func NewJobRecord(entry SitemapEntry) JobRecord {
	return JobRecord{
		ID:       entry.ID,
		Loc:      entry.Loc,
		IsActive: true,
	}
}

// RunOutcome classifies how a crawl run ended.
type RunOutcome string

// Run outcomes reported by the coordinator.
const (
	RunOutcomePending   RunOutcome = ""
	RunOutcomeRunning   RunOutcome = "running"
	RunOutcomeSucceeded RunOutcome = "succeeded"
	RunOutcomeAborted   RunOutcome = "aborted"
	RunOutcomePartial   RunOutcome = "partial"
	RunOutcomeFailed    RunOutcome = "failed"
)

// RunReport summarises one crawl run.
type RunReport struct {
	SitemapEntries int        `json:"sitemap_entries"`
	Inserted       int        `json:"inserted"`
	Total          int        `json:"total"`
	Checked        int        `json:"checked"`
	Activated      int        `json:"activated"`
	Deactivated    int        `json:"deactivated"`
	Failed         int        `json:"failed"`
	Unchecked      int        `json:"unchecked"`
	Outcome        RunOutcome `json:"outcome"`
	Error          string     `json:"error,omitempty"`
}

// RunSnapshot is the externally visible state of the most recent crawl run.
type RunSnapshot struct {
	RunID      string     `json:"run_id,omitempty"`
	Running    bool       `json:"running"`
	Done       bool       `json:"done"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Report     RunReport  `json:"report"`
}

// RunEvent is published once a run finishes.
type RunEvent struct {
	RunID      string    `json:"run_id"`
	SitemapURL string    `json:"sitemap_url"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Report     RunReport `json:"report"`
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}
