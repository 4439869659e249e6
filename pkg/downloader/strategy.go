package downloader

import "context"

// ProgressFunc receives transfer progress as a percentage in [0, 100].
//
// Strategies invoke it zero or more times with monotonically
// non-decreasing values before Transfer returns. Callers must tolerate
// out-of-range values; the orchestrator clamps them.
type ProgressFunc func(percent int)

// Strategy is the per-platform implementation of identifier resolution,
// metadata fetch, and transfer.
//
// Implementations should:
//   - Keep ResolveID pure: pattern matching over the URL, no I/O.
//   - Treat FetchMetadata as best-effort; its failure never fails a job.
//   - Check ctx between discrete steps and abort transfer promptly on
//     cancellation.
type Strategy interface {
	// Platform returns the platform this strategy serves.
	Platform() Platform

	// ResolveID extracts the canonical media identifier from a source URL.
	// Returns ErrNoIdentifier when the URL does not match the platform's
	// recognized patterns.
	ResolveID(rawURL string) (string, error)

	// FetchMetadata retrieves descriptive metadata for a resolved
	// identifier. Returns ErrMetadataUnavailable (possibly wrapped) when
	// the information cannot be obtained.
	FetchMetadata(ctx context.Context, id string) (*Metadata, error)

	// Transfer retrieves the media bytes into the working area and
	// returns the staged artifact. Temporary files are removed on every
	// failure path; on success the caller owns the staged file.
	Transfer(ctx context.Context, id string, quality Quality, progress ProgressFunc) (*StagedArtifact, error)
}

// FetchRequest describes one raw content retrieval for a MediaFetcher.
type FetchRequest struct {
	// URL is the canonical source URL to fetch.
	URL string

	// FormatSelector is the platform- and quality-specific selection
	// expression (e.g. a yt-dlp format string).
	FormatSelector string

	// WorkDir is the working area directory the staged file must be
	// created in.
	WorkDir string

	// BaseName is the file name (without extension) to stage under.
	BaseName string
}

// MediaFetcher performs the raw content retrieval on behalf of a
// strategy. Separating it from the strategy keeps extraction logic
// testable without network or external tooling.
type MediaFetcher interface {
	Fetch(ctx context.Context, req FetchRequest, progress ProgressFunc) (*StagedArtifact, error)
}
