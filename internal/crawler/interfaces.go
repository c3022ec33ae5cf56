package crawler

import (
	"context"
	"io"
	"time"
)

// JobStore persists job records. Listings are returned in store order, which
// every backend defines as ascending id.
type JobStore interface {
	ListJobs(ctx context.Context) ([]JobRecord, error)
	ListJobIDs(ctx context.Context) ([]int64, error)
	ListJobsByActive(ctx context.Context, active bool) ([]JobRecord, error)
	RandomActiveJobs(ctx context.Context, limit int) ([]JobRecord, error)
	// FindJob reports found=false with a nil error when no record matches.
	FindJob(ctx context.Context, id int64) (JobRecord, bool, error)
	InsertJob(ctx context.Context, job JobRecord) error
	MarkInactive(ctx context.Context, id int64) error
	MarkActive(ctx context.Context, id int64, title string, updated time.Time) error
	Close() error
}

// Fetcher fetches a URL and returns the body plus metadata. Implementations
// return errors matching ErrNetwork for transport failures and non-2xx codes.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes run events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Limiter paces outbound requests per host.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// Hasher computes digests for archive naming.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
