package downloader

import (
	"errors"
	"fmt"
)

// Sentinel errors for job admission and processing.
var (
	// ErrInvalidURL indicates the source URL is malformed or too long.
	ErrInvalidURL = errors.New("invalid source URL")

	// ErrInvalidQuality indicates an unknown quality tier.
	ErrInvalidQuality = errors.New("invalid quality tier")

	// ErrUnsupportedPlatform indicates the platform is not in the known set.
	ErrUnsupportedPlatform = errors.New("unsupported platform")

	// ErrPlatformInactive indicates a known platform that is currently disabled.
	ErrPlatformInactive = errors.New("platform inactive")

	// ErrRateLimited indicates the admission gate denied the request.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrNoIdentifier indicates the URL did not resolve to a media identifier.
	ErrNoIdentifier = errors.New("could not resolve media identifier")

	// ErrMetadataUnavailable indicates a best-effort metadata fetch failed.
	// This never fails a job; it is logged and the job proceeds.
	ErrMetadataUnavailable = errors.New("metadata unavailable")

	// ErrTransferFailed indicates the strategy could not retrieve the media.
	ErrTransferFailed = errors.New("transfer failed")

	// ErrTimeout indicates the transfer exceeded its overall deadline.
	ErrTimeout = errors.New("transfer timed out")

	// ErrCancelled indicates the job was cancelled by an external request.
	ErrCancelled = errors.New("download cancelled")

	// ErrStorage indicates the artifact could not be durably written.
	ErrStorage = errors.New("storage failure")

	// ErrNotFound indicates the job or artifact does not exist.
	ErrNotFound = errors.New("not found")

	// ErrPermissionDenied indicates the requester lacks rights to the job.
	ErrPermissionDenied = errors.New("permission denied")
)

// Error wraps job processing errors with context.
type Error struct {
	// Op is the operation that failed (e.g. "Submit", "Transfer").
	Op string

	// Platform is the platform the job targets, if applicable.
	Platform Platform

	// JobID is the job identifier, if one was created.
	JobID string

	// Err is the underlying error.
	Err error
}

func (e *Error) Error() string {
	switch {
	case e.JobID != "":
		return fmt.Sprintf("%s %s: job %s: %v", e.Platform, e.Op, e.JobID, e.Err)
	case e.Platform != "":
		return fmt.Sprintf("%s %s: %v", e.Platform, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsNotFound returns true if the error indicates a missing job or artifact.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRateLimited returns true if the error indicates admission was denied
// by the rate gate.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// IsCancelled returns true if the error indicates external cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

// IsValidation returns true for errors that are rejected before any job
// record is created.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidURL) ||
		errors.Is(err, ErrInvalidQuality) ||
		errors.Is(err, ErrUnsupportedPlatform) ||
		errors.Is(err, ErrPlatformInactive)
}
