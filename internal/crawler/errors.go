package crawler

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the pipeline.
var (
	ErrNetwork       = errors.New("network error")
	ErrTimeout       = errors.New("fetch timed out")
	ErrParse         = errors.New("parse error")
	ErrMalformedID   = errors.New("malformed job id")
	ErrDuplicateJob  = errors.New("job already exists")
	ErrRunInProgress = errors.New("crawl run already in progress")
)

// NetworkError describes a failed fetch. It matches ErrNetwork, and ErrTimeout
// when the request exceeded its deadline.
type NetworkError struct {
	URL        string
	StatusCode int
	Timeout    bool
	Err        error
}

func (e *NetworkError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("fetch %s: timed out: %v", e.URL, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	default:
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
}

// Unwrap exposes the underlying cause.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match the sentinel categories.
func (e *NetworkError) Is(target error) bool {
	switch target {
	case ErrNetwork:
		return true
	case ErrTimeout:
		return e.Timeout
	default:
		return false
	}
}

// MalformedIDError reports a sitemap loc whose trailing segment is not numeric.
type MalformedIDError struct {
	Loc     string
	Segment string
}

func (e *MalformedIDError) Error() string {
	return fmt.Sprintf("%v: segment %q of %s is not a numeric id", ErrMalformedID, e.Segment, e.Loc)
}

// Is matches ErrMalformedID.
func (e *MalformedIDError) Is(target error) bool {
	return target == ErrMalformedID
}
