package core

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrTransientUpstream      = errors.New("transient upstream failure")
	ErrMalformedInput         = errors.New("malformed input")
	ErrForbidden              = errors.New("forbidden")
	ErrRateLimited            = errors.New("rate limited")
	ErrPersistenceUnavailable = errors.New("persistence unavailable")
	ErrPartialCrawl           = errors.New("partial crawl discarded")
	ErrHookFailure            = errors.New("hook failure")
	ErrCrawlTimeout           = errors.New("crawl timed out")
	ErrUpstreamUnavailable    = errors.New("upstream unavailable")
	ErrUpstreamRejected       = errors.New("upstream rejected request")
	ErrNotFound               = errors.New("not found")
	ErrAlreadySubscribed      = errors.New("stream already subscribed for wiki")
)

// RateLimitError is returned when the global revert window is exhausted.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter.Round(time.Second))
}

// Is makes RateLimitError match ErrRateLimited.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// UpstreamRejectedError carries the verbatim upstream payload of a failed call
// made after authorization. These calls are never retried.
type UpstreamRejectedError struct {
	Stage   RevertState
	Payload []byte
	Err     error
}

func (e *UpstreamRejectedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream rejected at %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("upstream rejected at %s: %s", e.Stage, string(e.Payload))
}

func (e *UpstreamRejectedError) Unwrap() error {
	return e.Err
}

// Is makes UpstreamRejectedError match ErrUpstreamRejected.
func (e *UpstreamRejectedError) Is(target error) bool {
	return target == ErrUpstreamRejected
}
